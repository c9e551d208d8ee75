package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDBridge  string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string

	// Robot identity; all topics live under dmc_robo/<robot_id>/.
	RobotID string

	// Controller serial port
	SerialPort string
	SerialBaud int

	// Calibration
	// RawFullScale is the controller's physical extreme magnitude per axis.
	// An axis counts as fully swept once values within CalibrationTolerance
	// of both extremes have been observed.
	RawFullScale         int
	CalibrationTolerance int
	CalibrationSettleMS  int

	// Command shaping
	DeadZone    int
	MaxSpeedMPS float64
	SpeedUnit   string

	// Publish cadence and safety
	PublishHz    float64
	WebPublishHz float64
	DeadmanMS    int
	IdleStopMS   int

	// Keyboard composer
	ComposerStep      int
	ComposerTurnScale float64

	// Bridge peripherals (optional)
	ResetButtonPin        string
	StatusDisplayI2CAddr  uint16
	StatusDisplayUpdateMS int

	// Command journal ("" disables)
	JournalPath string

	// Web console
	WebListen string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot access it directly.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access.
//
// External code must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns a Config pre-populated with every optional value.
func Defaults() *Config {
	return &Config{
		SerialBaud:            115200,
		RawFullScale:          2000,
		CalibrationTolerance:  50,
		CalibrationSettleMS:   500,
		DeadZone:              40,
		MaxSpeedMPS:           0.5,
		SpeedUnit:             "mps",
		PublishHz:             100,
		WebPublishHz:          20,
		DeadmanMS:             300,
		IdleStopMS:            250,
		ComposerStep:          600,
		ComposerTurnScale:     0.5,
		StatusDisplayUpdateMS: 500,
		WebListen:             ":8080",
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDerived()

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_BRIDGE":
		c.MQTTClientIDBridge = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	case "ROBOT_ID":
		c.RobotID = value

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		baud, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD %q: %w", value, err)
		}
		if baud < 1200 || baud > 2000000 {
			return fmt.Errorf("SERIAL_BAUD must be 1200-2000000, got %d", baud)
		}
		c.SerialBaud = baud

	// Calibration
	case "RAW_FULL_SCALE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid RAW_FULL_SCALE %q: %w", value, err)
		}
		if val < 1 || val > 100000 {
			return fmt.Errorf("RAW_FULL_SCALE must be 1-100000, got %d", val)
		}
		c.RawFullScale = val
	case "CALIBRATION_TOLERANCE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_TOLERANCE %q: %w", value, err)
		}
		if val < 0 {
			return fmt.Errorf("CALIBRATION_TOLERANCE must be >= 0, got %d", val)
		}
		c.CalibrationTolerance = val
	case "CALIBRATION_SETTLE_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_SETTLE_MS %q: %w", value, err)
		}
		if val < 0 {
			return fmt.Errorf("CALIBRATION_SETTLE_MS must be >= 0, got %d", val)
		}
		c.CalibrationSettleMS = val

	// Shaping
	case "DEAD_ZONE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DEAD_ZONE %q: %w", value, err)
		}
		if val < 0 || val > 1000 {
			return fmt.Errorf("DEAD_ZONE must be 0-1000, got %d", val)
		}
		c.DeadZone = val
	case "MAX_SPEED_MPS":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_SPEED_MPS %q: %w", value, err)
		}
		if val <= 0 || val > 5.0 {
			return fmt.Errorf("MAX_SPEED_MPS must be in (0,5], got %v", val)
		}
		c.MaxSpeedMPS = val
	case "SPEED_UNIT":
		c.SpeedUnit = value

	// Cadence and safety
	case "PUBLISH_HZ":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid PUBLISH_HZ %q: %w", value, err)
		}
		if val < 1 || val > 200 {
			return fmt.Errorf("PUBLISH_HZ must be 1-200, got %v", val)
		}
		c.PublishHz = val
	case "WEB_PUBLISH_HZ":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid WEB_PUBLISH_HZ %q: %w", value, err)
		}
		if val < 1 || val > 60 {
			return fmt.Errorf("WEB_PUBLISH_HZ must be 1-60, got %v", val)
		}
		c.WebPublishHz = val
	case "DEADMAN_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DEADMAN_MS %q: %w", value, err)
		}
		if val < 50 || val > 2000 {
			return fmt.Errorf("DEADMAN_MS must be 50-2000, got %d", val)
		}
		c.DeadmanMS = val
	case "IDLE_STOP_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IDLE_STOP_MS %q: %w", value, err)
		}
		if val < 20 || val > 2000 {
			return fmt.Errorf("IDLE_STOP_MS must be 20-2000, got %d", val)
		}
		c.IdleStopMS = val

	// Composer
	case "COMPOSER_STEP":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid COMPOSER_STEP %q: %w", value, err)
		}
		if val < 1 || val > 1000 {
			return fmt.Errorf("COMPOSER_STEP must be 1-1000, got %d", val)
		}
		c.ComposerStep = val
	case "COMPOSER_TURN_SCALE":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid COMPOSER_TURN_SCALE %q: %w", value, err)
		}
		if val < 0 || val > 1 {
			return fmt.Errorf("COMPOSER_TURN_SCALE must be 0-1, got %v", val)
		}
		c.ComposerTurnScale = val

	// Peripherals
	case "RESET_BUTTON_PIN":
		c.ResetButtonPin = value
	case "STATUS_DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid STATUS_DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.StatusDisplayI2CAddr = uint16(addr)
	case "STATUS_DISPLAY_UPDATE_MS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid STATUS_DISPLAY_UPDATE_MS %q: %w", value, err)
		}
		if val < 50 {
			return fmt.Errorf("STATUS_DISPLAY_UPDATE_MS must be >= 50, got %d", val)
		}
		c.StatusDisplayUpdateMS = val

	// Journal
	case "JOURNAL_PATH":
		c.JournalPath = value

	// Web
	case "WEB_LISTEN":
		c.WebListen = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.RobotID == "" {
		return fmt.Errorf("ROBOT_ID is required")
	}
	if strings.Contains(c.RobotID, "/") {
		return fmt.Errorf("ROBOT_ID must not contain '/', got %q", c.RobotID)
	}
	return nil
}

// applyDerived fills in values computed from other settings.
func (c *Config) applyDerived() {
	if c.MQTTClientIDBridge == "" {
		c.MQTTClientIDBridge = c.RobotID + "-bridge"
	}
	if c.MQTTClientIDConsole == "" {
		c.MQTTClientIDConsole = c.RobotID + "-console"
	}
	if c.MQTTClientIDWeb == "" {
		c.MQTTClientIDWeb = c.RobotID + "-web"
	}
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
