package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration values.
type Config struct {
	// Serial
	SerialPort        string // empty: first enumerated port
	SerialBaudRate    int
	SerialDriver      string // "bugst", "jacobsa" or "sim"
	SerialReadTimeout time.Duration

	// MQTT
	MQTTHost      string
	MQTTPort      int
	MQTTUsername  string
	MQTTPassword  string
	MQTTClientID  string
	MQTTKeepAlive time.Duration

	// Topics
	TopicData          string
	TopicControl       string
	TopicStatus        string
	TopicCommandResult string

	DeviceID    string
	HistoryFile string

	// Decoding
	NMEAStrictChecksum bool

	// Web monitor, empty disables it
	WebListenAddr string

	LogDebug bool

	// Manual publish defaults
	ManualLongitude float64
	ManualLatitude  float64
	ManualSpeedMS   float64
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SerialBaudRate:     9600,
		SerialDriver:       "bugst",
		SerialReadTimeout:  time.Second,
		MQTTHost:           "wauclub.com",
		MQTTPort:           1883,
		MQTTUsername:       "device",
		MQTTPassword:       "123456",
		MQTTKeepAlive:      60 * time.Second,
		TopicData:          "student/location",
		TopicControl:       "student/location/control",
		TopicStatus:        "student/location/status",
		TopicCommandResult: "student/location/control/result",
		DeviceID:           "um220_tracker_001",
		HistoryFile:        "history.jsonl",
		ManualLongitude:    121.061722,
		ManualLatitude:     40.885880,
		ManualSpeedMS:      0,
	}
}

// Package-level singleton: InitGlobal sets it once, Get reads it.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file on top of Default. Files ending in
// .yaml or .yml are parsed as a flat YAML mapping of the same keys; anything
// else is KEY=VALUE lines. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = cfg.loadYAML(data)
	default:
		err = cfg.loadKeyValue(data)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadKeyValue(data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}
		if err := c.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// loadYAML accepts keys in any case, e.g. mqtt_host or MQTT_HOST.
func (c *Config) loadYAML(data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("error parsing yaml config: %w", err)
	}
	for k, v := range raw {
		value := ""
		if v != nil {
			value = fmt.Sprint(v)
		}
		if err := c.setValue(strings.ToUpper(k), value); err != nil {
			return fmt.Errorf("yaml config: %w", err)
		}
	}
	return nil
}

// Set applies a single KEY=VALUE override, e.g. from a command-line flag.
func (c *Config) Set(key, value string) error {
	if err := c.setValue(key, value); err != nil {
		return err
	}
	return c.validate()
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD_RATE %q: %w", value, err)
		}
		c.SerialBaudRate = rate
	case "SERIAL_DRIVER":
		v := strings.ToLower(value)
		if v != "bugst" && v != "jacobsa" && v != "sim" {
			return fmt.Errorf("SERIAL_DRIVER must be bugst, jacobsa or sim, got %q", value)
		}
		c.SerialDriver = v
	case "SERIAL_READ_TIMEOUT_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_READ_TIMEOUT_MS %q: %w", value, err)
		}
		c.SerialReadTimeout = time.Duration(ms) * time.Millisecond

	// MQTT
	case "MQTT_HOST":
		c.MQTTHost = value
	case "MQTT_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("MQTT_PORT must be 1-65535, got %d", port)
		}
		c.MQTTPort = port
	case "MQTT_USERNAME":
		c.MQTTUsername = value
	case "MQTT_PASSWORD":
		c.MQTTPassword = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_KEEPALIVE_S":
		s, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_KEEPALIVE_S %q: %w", value, err)
		}
		c.MQTTKeepAlive = time.Duration(s) * time.Second

	// Topics
	case "TOPIC_DATA":
		c.TopicData = value
	case "TOPIC_CONTROL":
		c.TopicControl = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_COMMAND_RESULT":
		c.TopicCommandResult = value

	case "DEVICE_ID":
		c.DeviceID = value
	case "HISTORY_FILE":
		c.HistoryFile = value

	case "NMEA_STRICT_CHECKSUM":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid NMEA_STRICT_CHECKSUM %q: %w", value, err)
		}
		c.NMEAStrictChecksum = b
	case "WEB_LISTEN_ADDR":
		c.WebListenAddr = value
	case "LOG_DEBUG":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_DEBUG %q: %w", value, err)
		}
		c.LogDebug = b

	// Manual publish
	case "MANUAL_LONGITUDE":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MANUAL_LONGITUDE %q: %w", value, err)
		}
		c.ManualLongitude = f
	case "MANUAL_LATITUDE":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MANUAL_LATITUDE %q: %w", value, err)
		}
		c.ManualLatitude = f
	case "MANUAL_SPEED_MS":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MANUAL_SPEED_MS %q: %w", value, err)
		}
		c.ManualSpeedMS = f

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTHost == "" {
		return fmt.Errorf("MQTT_HOST is required")
	}
	if c.SerialBaudRate <= 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE must be positive")
	}
	if c.TopicData == "" {
		return fmt.Errorf("TOPIC_DATA is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("DEVICE_ID is required")
	}
	if c.SerialReadTimeout <= 0 {
		return fmt.Errorf("SERIAL_READ_TIMEOUT_MS must be positive")
	}
	return nil
}

// InitGlobal loads the configuration once; later calls return the first result.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration, or nil before InitGlobal.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
