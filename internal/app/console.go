package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dmc-robo/teleop_bridge/internal/config"
	"github.com/dmc-robo/teleop_bridge/internal/motor"
	"github.com/dmc-robo/teleop_bridge/internal/telemetry"
)

// RunConsole is the terminal operator console: it prints inbound telemetry
// and accepts line commands ("stop", "text <msg>", "quit"). It is a viewer
// plus an emergency stop, not a drive surface; continuous teleop lives in the
// web console.
func RunConsole(ctx context.Context, gyroPath string) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	cmdTopic, err := motor.Topic(cfg.RobotID, motor.SuffixMotorCmd)
	if err != nil {
		return err
	}
	oledTopic, err := motor.Topic(cfg.RobotID, motor.SuffixOLEDCmd)
	if err != nil {
		return err
	}

	// Stop-only publisher; the console never publishes motion.
	dog := motor.NewWatchdog(time.Duration(cfg.IdleStopMS) * time.Millisecond)
	pub := motor.NewPublisher(motor.SinkFunc(func(cmd motor.Command) error {
		payload, err := cmd.Marshal()
		if err != nil {
			return err
		}
		token := client.Publish(cmdTopic, 0, false, payload)
		token.Wait()
		return token.Error()
	}), dog, cfg.SpeedUnit, cfg.DeadmanMS, cfg.MaxSpeedMPS)

	// ---- Telemetry subscriptions ----
	if err := subscribe(client, cfg.RobotID, motor.SuffixIMUState, func(payload []byte) {
		v, err := telemetry.DecodeIMU(payload)
		if err != nil {
			log.Printf("console: imu decode failed: %v", err)
			return
		}
		path := gyroPath
		var vec telemetry.Vec3
		var ok bool
		if path != "" {
			vec, ok = telemetry.ExtractVec3(v, path)
		} else {
			path, vec, ok = telemetry.AutodetectVec3(v)
		}
		if !ok {
			fmt.Println("[IMU ] gyro vector not found (set -gyro-path)")
			return
		}
		fmt.Printf("[IMU ] %s x=%+.4f y=%+.4f z=%+.4f\n", path, vec.X, vec.Y, vec.Z)
	}); err != nil {
		return err
	}

	if err := subscribe(client, cfg.RobotID, motor.SuffixCameraMeta, func(payload []byte) {
		meta, err := telemetry.DecodeCameraMeta(payload)
		if err != nil {
			log.Printf("console: camera meta decode failed: %v", err)
			return
		}
		fmt.Printf("[CAM ] %dx%d @ %.1ffps\n", meta.Width, meta.Height, meta.FPS)
	}); err != nil {
		return err
	}

	if err := subscribe(client, cfg.RobotID, motor.SuffixLidarSum, func(payload []byte) {
		sum, err := telemetry.DecodeScanSummary(payload)
		if err != nil {
			log.Printf("console: scan summary decode failed: %v", err)
			return
		}
		fmt.Printf("[LDR ] %d points, nearest %.2fm\n", sum.Points, sum.MinDist)
	}); err != nil {
		return err
	}

	if err := subscribe(client, cfg.RobotID, motor.SuffixGPSSentence, func(payload []byte) {
		fix, ok, err := telemetry.DecodeGPS(string(payload))
		if err != nil {
			log.Printf("console: gps decode failed: %v", err)
			return
		}
		if !ok {
			return
		}
		fmt.Printf("[GPS ] lat=%.6f lon=%.6f speed=%.1fkn course=%.1f valid=%v\n",
			fix.Latitude, fix.Longitude, fix.SpeedKnots, fix.CourseDeg, fix.Valid)
	}); err != nil {
		return err
	}

	// ---- Command loop ----
	lines := readLines(ctx, os.Stdin)

	fmt.Println("commands: stop | text <msg> | quit")

	defer pub.FinalStop(3, 50*time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			log.Println("console: shutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch {
			case line == "quit" || line == "exit":
				return nil
			case line == "stop":
				pub.FinalStop(3, 50*time.Millisecond)
				fmt.Println("stop sent")
			case strings.HasPrefix(line, "text "):
				msg := motor.NewTextMessage(strings.TrimPrefix(line, "text "))
				payload, err := msg.Marshal()
				if err != nil {
					log.Printf("console: text marshal failed: %v", err)
					continue
				}
				token := client.Publish(oledTopic, 0, false, payload)
				token.Wait()
				if token.Error() != nil {
					log.Printf("console: text publish failed: %v", token.Error())
					continue
				}
				fmt.Printf("text sent: %q\n", strings.TrimPrefix(line, "text "))
			case line == "":
			default:
				fmt.Println("commands: stop | text <msg> | quit")
			}
		}
	}
}

// readLines scans r line by line into a channel, closed on EOF or ctx
// cancellation. Selecting on ctx in the sender keeps the scanner goroutine
// from leaking when the consumer has already returned.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// subscribe attaches a payload handler to one robot topic.
func subscribe(client mqtt.Client, robotID, suffix string, handler func([]byte)) error {
	topic, err := motor.Topic(robotID, suffix)
	if err != nil {
		return err
	}
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	log.Printf("console: subscribed to %s", topic)
	return nil
}
