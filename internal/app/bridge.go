// Copyright (c) 2026 DMC Robo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	serial "github.com/jacobsa/go-serial/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/dmc-robo/teleop_bridge/internal/calib"
	"github.com/dmc-robo/teleop_bridge/internal/config"
	"github.com/dmc-robo/teleop_bridge/internal/frame"
	"github.com/dmc-robo/teleop_bridge/internal/journal"
	"github.com/dmc-robo/teleop_bridge/internal/motor"
	"github.com/dmc-robo/teleop_bridge/internal/shape"
)

// finalStopRepeat / finalStopGap: the shutdown zero burst. Repeated so the
// stop survives a lossy link.
const (
	finalStopRepeat = 5
	finalStopGap    = 50 * time.Millisecond
)

// RunBridge runs the serial joystick → motor/cmd bridging session until ctx
// is cancelled. inputPath, when non-empty, replays recorded controller lines
// from a file instead of opening the serial port.
func RunBridge(ctx context.Context, inputPath string) error {
	cfg := config.Get()

	cmdTopic, err := motor.Topic(cfg.RobotID, motor.SuffixMotorCmd)
	if err != nil {
		return err
	}

	// ---- 1) Connect to MQTT broker ----
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDBridge)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("bridge: connected to MQTT broker at %s", cfg.MQTTBroker)

	// ---- 2) Command journal (optional) ----
	var jnl *journal.DB
	if cfg.JournalPath != "" {
		jnl, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer jnl.Close()
		log.Printf("bridge: journaling commands to %s (session %s)", cfg.JournalPath, jnl.Session())
	}

	// ---- 3) Command pipeline ----
	sink := motor.SinkFunc(func(cmd motor.Command) error {
		payload, err := cmd.Marshal()
		if err != nil {
			return err
		}
		if jnl != nil {
			if jerr := jnl.Record(cmd); jerr != nil {
				log.Printf("bridge: journal write failed: %v", jerr)
			}
		}
		token := client.Publish(cmdTopic, 0, false, payload)
		token.Wait()
		return token.Error()
	})

	dog := motor.NewWatchdog(time.Duration(cfg.IdleStopMS) * time.Millisecond)
	pub := motor.NewPublisher(sink, dog, cfg.SpeedUnit, cfg.DeadmanMS, cfg.MaxSpeedMPS)
	engine := calib.NewEngine(cfg.RawFullScale, cfg.CalibrationTolerance,
		time.Duration(cfg.CalibrationSettleMS)*time.Millisecond)

	// The final stop burst must run on every exit path, cancelled or failed.
	defer func() {
		log.Println("bridge: sending final stop")
		pub.FinalStop(finalStopRepeat, finalStopGap)
	}()

	// ---- 4) Open input ----
	var input io.ReadCloser
	if inputPath != "" {
		input, err = os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open replay input: %w", err)
		}
		log.Printf("bridge: replaying controller input from %s", inputPath)
	} else {
		if cfg.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for the bridge")
		}
		serialOpts := serial.OpenOptions{
			PortName:        cfg.SerialPort,
			BaudRate:        uint(cfg.SerialBaud),
			DataBits:        8,
			StopBits:        1,
			MinimumReadSize: 1,
			ParityMode:      serial.PARITY_NONE,
		}
		input, err = serial.Open(serialOpts)
		if err != nil {
			return fmt.Errorf("open serial port %s: %w", cfg.SerialPort, err)
		}
		log.Printf("bridge: serial port opened on %s at %d baud", cfg.SerialPort, cfg.SerialBaud)
	}

	// Closing the input is what unblocks a stuck Read on cancellation.
	go func() {
		<-ctx.Done()
		input.Close()
	}()
	defer input.Close()

	// ---- 5) Optional reset button ----
	if cfg.ResetButtonPin != "" {
		if err := watchResetButton(ctx, cfg.ResetButtonPin, engine); err != nil {
			log.Printf("bridge: reset button unavailable: %v", err)
		}
	}

	// ---- 6) Optional status display ----
	var display *StatusDisplay
	if cfg.StatusDisplayI2CAddr != 0 {
		display, err = OpenStatusDisplay(cfg.StatusDisplayI2CAddr)
		if err != nil {
			log.Printf("bridge: status display unavailable: %v", err)
			display = nil
		}
	}

	src := frame.NewSource(input)

	var wg sync.WaitGroup

	// Serial reader: may block waiting for bytes; never on our own state.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := src.Monitor(ctx); err != nil {
			log.Printf("bridge: serial monitor stopped: %v", err)
		}
	}()

	// Frame consumer: calibration gate, then shaping, then the window.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for f := range src.Frames() {
			l, r, ok := engine.Observe(f.Left, f.Right)
			if !ok {
				continue
			}
			sl, sr := shape.Pair(l, r, cfg.DeadZone, false, false)
			pub.Offer(sl, sr)
		}
	}()

	// Publish tick: fixed cadence, never blocked by the input path.
	wg.Add(1)
	go func() {
		defer wg.Done()
		interval := time.Duration(float64(time.Second) / cfg.PublishHz)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pub.Tick(); err != nil {
					log.Printf("bridge: publish failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Watchdog: can force a zero between publish ticks.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(dog.Threshold() / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := pub.ForceZeroIfStale(); err != nil {
					log.Printf("bridge: forced stop publish failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Status display refresh.
	if display != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer display.Close()
			ticker := time.NewTicker(time.Duration(cfg.StatusDisplayUpdateMS) * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					last, have := pub.Last()
					if err := display.Update(engine.Mode().String(), last, have); err != nil {
						log.Printf("bridge: display update failed: %v", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	wg.Wait()
	log.Printf("bridge: session ended (%d lines dropped by parser)", src.Dropped())
	return nil
}

// watchResetButton configures the calibration reset pin (pull-up, falling
// edge) and re-enters calibration on every press.
func watchResetButton(ctx context.Context, pinName string, engine *calib.Engine) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph init: %w", err)
	}
	pin := gpioreg.ByName(pinName)
	if pin == nil {
		return fmt.Errorf("no such pin %q", pinName)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return fmt.Errorf("configure pin %q: %w", pinName, err)
	}
	log.Printf("bridge: calibration reset button on %s", pinName)

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if pin.WaitForEdge(500 * time.Millisecond) {
				log.Println("bridge: reset button pressed")
				engine.Reset()
			}
		}
	}()
	return nil
}
