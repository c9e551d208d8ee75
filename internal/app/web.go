// Copyright (c) 2026 DMC Robo
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/dmc-robo/teleop_bridge/internal/config"
	"github.com/dmc-robo/teleop_bridge/internal/motor"
	"github.com/dmc-robo/teleop_bridge/internal/shape"
	"github.com/dmc-robo/teleop_bridge/internal/teleop"
	"github.com/dmc-robo/teleop_bridge/internal/telemetry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // operator LAN only
	},
}

// Connection liveness. Short on purpose: a held key on a half-open connection
// (wifi drop, browser crash without FIN) produces no client traffic at all, so
// missing pongs are the only signal that the operator is gone. Browsers answer
// pings automatically; no page-side code is involved.
const (
	wsWriteWait  = time.Second
	wsPongWait   = 2 * time.Second
	wsPingPeriod = 750 * time.Millisecond
)

// wsMessage is what the browser sends over /ws.
type wsMessage struct {
	Type   string `json:"type"`             // "key", "stop", "text"
	Key    string `json:"key,omitempty"`    // browser key, lowercased
	Action string `json:"action,omitempty"` // "down" or "up"
	Text   string `json:"text,omitempty"`
}

// statusFrame is what the server pushes back.
type statusFrame struct {
	Type  string      `json:"type"` // "status"
	VL    float64     `json:"v_l"`
	VR    float64     `json:"v_r"`
	Seq   int64       `json:"seq"`
	Boost bool        `json:"boost"`
	Gyro  *[3]float64 `json:"gyro,omitempty"`
}

// teleopSession is one browser connection on /ws: its composer, boost state,
// and liveness tracking. When the session ends for any reason the composer is
// released, which fires the immediate stop while keys were held.
type teleopSession struct {
	conn     *websocket.Conn
	pub      *motor.Publisher
	composer *teleop.Composer

	deadZone  int
	publishHz float64

	sendText func(string) error
	gyro     func() *[3]float64

	// Zero means the package defaults; tests shorten these.
	pongWait   time.Duration
	pingPeriod time.Duration
}

// run drives the session until the connection dies, stops answering pings, or
// ctx is cancelled.
func (s *teleopSession) run(ctx context.Context) {
	if s.pongWait == 0 {
		s.pongWait = wsPongWait
	}
	if s.pingPeriod == 0 {
		s.pingPeriod = wsPingPeriod
	}

	defer s.conn.Close()
	// Release whatever is still held when the browser goes away.
	defer s.composer.ReleaseAll()

	connCtx, cancel := context.WithCancel(ctx)

	var writeMu sync.Mutex
	writeJSON := func(v any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := s.conn.WriteJSON(v); err != nil {
			log.Printf("web: websocket write error: %v", err)
		}
	}
	ping := func() error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
	}

	// Missing pongs expire the read deadline, which fails the read loop below
	// and tears the session down even though no client data is expected.
	s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})

	var boostMu sync.Mutex
	boost := false

	// Drive publication at the web cadence while any key is held. The pump
	// must be fully stopped before the deferred ReleaseAll emits its zero, or
	// a drained held command could reach the bus after the stop.
	pumpDone := make(chan struct{})
	defer func() {
		cancel()
		<-pumpDone
	}()
	go func() {
		defer close(pumpDone)
		interval := time.Duration(float64(time.Second) / s.publishHz)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		status := time.NewTicker(500 * time.Millisecond)
		defer status.Stop()
		pings := time.NewTicker(s.pingPeriod)
		defer pings.Stop()
		for {
			select {
			case <-ticker.C:
				l, r, active := s.composer.Current()
				if !active {
					continue
				}
				boostMu.Lock()
				b := boost
				boostMu.Unlock()
				sl, sr := shape.Pair(l, r, s.deadZone, b, b)
				s.pub.Offer(sl, sr)
				if err := s.pub.Tick(); err != nil {
					log.Printf("web: publish failed: %v", err)
				}
			case <-status.C:
				last, have := s.pub.Last()
				if !have {
					continue
				}
				boostMu.Lock()
				b := boost
				boostMu.Unlock()
				writeJSON(statusFrame{
					Type: "status", VL: last.VL, VR: last.VR,
					Seq: last.Seq, Boost: b, Gyro: s.gyro(),
				})
			case <-pings.C:
				if err := ping(); err != nil {
					// Connection already dead; unblock the read loop now.
					s.conn.Close()
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	for {
		var msg wsMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			log.Printf("web: websocket read error: %v", err)
			return
		}

		switch msg.Type {
		case "key":
			if msg.Key == "shift" {
				boostMu.Lock()
				boost = msg.Action == "down"
				boostMu.Unlock()
				continue
			}
			k, ok := teleop.DefaultKeymap[msg.Key]
			if !ok {
				continue
			}
			if msg.Action == "down" {
				s.composer.Press(k)
			} else {
				s.composer.Release(k)
			}

		case "stop":
			s.composer.ReleaseAll()
			s.pub.FinalStop(3, 50*time.Millisecond)

		case "text":
			if msg.Text == "" {
				continue
			}
			if err := s.sendText(msg.Text); err != nil {
				log.Printf("web: text publish failed: %v", err)
			}
		}
	}
}

// RunWeb serves the browser teleop console: static page, /api/status, and the
// /ws endpoint whose keydown/keyup stream drives the composer.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	cmdTopic, err := motor.Topic(cfg.RobotID, motor.SuffixMotorCmd)
	if err != nil {
		return err
	}
	oledTopic, err := motor.Topic(cfg.RobotID, motor.SuffixOLEDCmd)
	if err != nil {
		return err
	}

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

	defer pub.FinalStop(3, 50*time.Millisecond)

	// Latest gyro vector, snapshotted for the status frames.
	var (
		telemMu  sync.RWMutex
		lastGyro *[3]float64
	)
	imuTopic, err := motor.Topic(cfg.RobotID, motor.SuffixIMUState)
	if err != nil {
		return err
	}
	token := client.Subscribe(imuTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		v, err := telemetry.DecodeIMU(msg.Payload())
		if err != nil {
			return
		}
		if _, vec, ok := telemetry.AutodetectVec3(v); ok {
			telemMu.Lock()
			lastGyro = &[3]float64{vec.X, vec.Y, vec.Z}
			telemMu.Unlock()
		}
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", imuTopic, token.Error())
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}

		sess := &teleopSession{
			conn: conn,
			pub:  pub,
			composer: teleop.NewComposer(cfg.ComposerStep, cfg.ComposerTurnScale, func() {
				if err := pub.Stop(); err != nil {
					log.Printf("web: stop publish failed: %v", err)
				}
			}),
			deadZone:  cfg.DeadZone,
			publishHz: cfg.WebPublishHz,
			sendText: func(text string) error {
				payload, err := motor.NewTextMessage(text).Marshal()
				if err != nil {
					return err
				}
				t := client.Publish(oledTopic, 0, false, payload)
				t.Wait()
				return t.Error()
			},
			gyro: func() *[3]float64 {
				telemMu.RLock()
				defer telemMu.RUnlock()
				return lastGyro
			},
		}
		sess.run(ctx)
	})

	// JSON API endpoint: latest command + telemetry.
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		last, have := pub.Last()
		if !have {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		telemMu.RLock()
		gyro := lastGyro
		telemMu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(statusFrame{
			Type: "status", VL: last.VL, VR: last.VR, Seq: last.Seq, Gyro: gyro,
		}); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{
		Addr:    cfg.WebListen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("web: HTTP server shutdown error: %v", err)
		}
	}()

	log.Printf("web: listening on %s", cfg.WebListen)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
