// Package motor owns the outgoing command path: the wire-level message, the
// averaging window, the rate-limited publisher, and the deadman watchdog.
package motor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Command is the wire-level motor command published on motor/cmd. This is the
// only structure that crosses to the bus; the consumer stops on its own if
// fresh commands stop arriving within DeadmanMS.
type Command struct {
	VL        float64 `json:"v_l"`
	VR        float64 `json:"v_r"`
	Unit      string  `json:"unit"`
	DeadmanMS int     `json:"deadman_ms"`
	Seq       int64   `json:"seq"`
	TsMS      int64   `json:"ts_ms"`
}

// Zero reports whether the command carries no motion.
func (c Command) Zero() bool {
	return c.VL == 0 && c.VR == 0
}

// Marshal encodes the command as its JSON wire form.
func (c Command) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// TextMessage is the payload published on oled/cmd for the robot's text
// display. Sent on explicit user action only; not rate-limited, not
// deadman-guarded.
type TextMessage struct {
	Text string `json:"text"`
	TsMS int64  `json:"ts_ms"`
}

// NewTextMessage stamps a text payload with the current wall clock.
func NewTextMessage(text string) TextMessage {
	return TextMessage{Text: text, TsMS: time.Now().UnixMilli()}
}

// Marshal encodes the text message as its JSON wire form.
func (t TextMessage) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// Topic suffixes under dmc_robo/<robot_id>/.
const (
	SuffixMotorCmd    = "motor/cmd"
	SuffixOLEDCmd     = "oled/cmd"
	SuffixIMUState    = "imu/state"
	SuffixCameraMeta  = "camera/meta"
	SuffixCameraJPEG  = "camera/image/jpeg"
	SuffixLidarSum    = "lidar/summary"
	SuffixGPSSentence = "gps/nmea"
)

// Topic builds the full bus topic for a robot and suffix.
func Topic(robotID, suffix string) (string, error) {
	if robotID == "" || strings.Contains(robotID, "/") {
		return "", fmt.Errorf("robot id must be non-empty and must not contain '/': %q", robotID)
	}
	return "dmc_robo/" + robotID + "/" + suffix, nil
}
