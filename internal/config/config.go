// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/geofix/internal/position"
)

// EnvPrefix prefixes every environment override, e.g. GEOFIX_MQTT_BROKER.
const EnvPrefix = "GEOFIX_"

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string `yaml:"mqtt_broker" env:"MQTT_BROKER" validate:"required"`
	MQTTClientIDGPS     string `yaml:"mqtt_client_id_gps" env:"MQTT_CLIENT_ID_GPS" validate:"required"`
	MQTTClientIDTracker string `yaml:"mqtt_client_id_tracker" env:"MQTT_CLIENT_ID_TRACKER" validate:"required"`
	MQTTClientIDWeb     string `yaml:"mqtt_client_id_web" env:"MQTT_CLIENT_ID_WEB" validate:"required"`
	MQTTClientIDConsole string `yaml:"mqtt_client_id_console" env:"MQTT_CLIENT_ID_CONSOLE" validate:"required"`

	// Topics
	TopicGPSReading    string `yaml:"topic_gps_reading" env:"TOPIC_GPS_READING" validate:"required"`
	TopicGPSError      string `yaml:"topic_gps_error" env:"TOPIC_GPS_ERROR" validate:"required"`
	TopicGPSPermission string `yaml:"topic_gps_permission" env:"TOPIC_GPS_PERMISSION" validate:"required"`
	TopicPosition      string `yaml:"topic_position" env:"TOPIC_POSITION" validate:"required"`
	TopicRecalibrate   string `yaml:"topic_recalibrate" env:"TOPIC_RECALIBRATE" validate:"required"`

	// GPS
	GPSSerialPort string  `yaml:"gps_serial_port" env:"GPS_SERIAL_PORT" validate:"required"`
	GPSBaudRate   int     `yaml:"gps_baud_rate" env:"GPS_BAUD_RATE" validate:"gt=0"`
	GPSUERE       float64 `yaml:"gps_uere" env:"GPS_UERE" validate:"gt=0"` // meters per unit of HDOP

	// Position filter
	FilterSmoothingAlpha  float64 `yaml:"filter_smoothing_alpha" env:"FILTER_SMOOTHING_ALPHA" validate:"gt=0,lte=1"`
	FilterMaxAccuracyM    float64 `yaml:"filter_max_accuracy_m" env:"FILTER_MAX_ACCURACY_M" validate:"gt=0"`
	FilterStationarySpeed float64 `yaml:"filter_stationary_speed" env:"FILTER_STATIONARY_SPEED" validate:"gte=0"` // m/s
	FilterStationaryRun   int     `yaml:"filter_stationary_run" env:"FILTER_STATIONARY_RUN" validate:"gte=1"`
	FilterMinMoveM        float64 `yaml:"filter_min_move_m" env:"FILTER_MIN_MOVE_M" validate:"gte=0"`

	// Timing, milliseconds
	StaleAfter         int `yaml:"stale_after_ms" env:"STALE_AFTER_MS" validate:"gt=0"`
	WatchTimeout       int `yaml:"watch_timeout_ms" env:"WATCH_TIMEOUT_MS" validate:"gt=0"`
	WatchMaxAge        int `yaml:"watch_max_age_ms" env:"WATCH_MAX_AGE_MS" validate:"gte=0"`
	RecalibrateTimeout int `yaml:"recalibrate_timeout_ms" env:"RECALIBRATE_TIMEOUT_MS" validate:"gt=0"`

	// Web Server
	WebServerPort int `yaml:"web_server_port" env:"WEB_SERVER_PORT" validate:"gt=0,lte=65535"`

	// Mock locator
	MockOriginLat float64 `yaml:"mock_origin_lat" env:"MOCK_ORIGIN_LAT" validate:"gte=-90,lte=90"`
	MockOriginLon float64 `yaml:"mock_origin_lon" env:"MOCK_ORIGIN_LON" validate:"gte=-180,lte=180"`
	MockInterval  int     `yaml:"mock_interval_ms" env:"MOCK_INTERVAL_MS" validate:"gt=0"`
}

// Package-level unexported variables for the singleton: InitGlobal sets
// globalConfig once, Get reads it under configMu.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	filter := position.DefaultConfig()
	return &Config{
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDGPS:     "geofix-gps-producer",
		MQTTClientIDTracker: "geofix-tracker",
		MQTTClientIDWeb:     "geofix-web",
		MQTTClientIDConsole: "geofix-console",

		TopicGPSReading:    "geofix/gps/reading",
		TopicGPSError:      "geofix/gps/error",
		TopicGPSPermission: "geofix/gps/permission",
		TopicPosition:      "geofix/position",
		TopicRecalibrate:   "geofix/position/recalibrate",

		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,
		GPSUERE:       5.0,

		FilterSmoothingAlpha:  filter.SmoothingAlpha,
		FilterMaxAccuracyM:    filter.MaxAccuracyMeters,
		FilterStationarySpeed: filter.StationarySpeed,
		FilterStationaryRun:   filter.StationaryRun,
		FilterMinMoveM:        filter.MinMoveMeters,

		StaleAfter:         int(filter.StaleAfter / time.Millisecond),
		WatchTimeout:       int(filter.WatchTimeout / time.Millisecond),
		WatchMaxAge:        int(filter.WatchMaxAge / time.Millisecond),
		RecalibrateTimeout: int(filter.RecalibrateTimeout / time.Millisecond),

		WebServerPort: 8080,

		MockOriginLat: 52.5200,
		MockOriginLon: 13.4050,
		MockInterval:  1000,
	}
}

// Load reads the configuration file and returns a Config struct. Files
// ending in .yml or .yaml are parsed as YAML, anything else as KEY=VALUE
// lines. Environment variables prefixed with GEOFIX_ override file values.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML config: %w", err)
		}
	default:
		if err := cfg.parseKeyValue(data); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseKeyValue(data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
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
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_TRACKER":
		c.MQTTClientIDTracker = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_GPS_READING":
		c.TopicGPSReading = value
	case "TOPIC_GPS_ERROR":
		c.TopicGPSError = value
	case "TOPIC_GPS_PERMISSION":
		c.TopicGPSPermission = value
	case "TOPIC_POSITION":
		c.TopicPosition = value
	case "TOPIC_RECALIBRATE":
		c.TopicRecalibrate = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		return parseInt(key, value, &c.GPSBaudRate)
	case "GPS_UERE":
		return parseFloat(key, value, &c.GPSUERE)

	// Position filter
	case "FILTER_SMOOTHING_ALPHA":
		return parseFloat(key, value, &c.FilterSmoothingAlpha)
	case "FILTER_MAX_ACCURACY_M":
		return parseFloat(key, value, &c.FilterMaxAccuracyM)
	case "FILTER_STATIONARY_SPEED":
		return parseFloat(key, value, &c.FilterStationarySpeed)
	case "FILTER_STATIONARY_RUN":
		return parseInt(key, value, &c.FilterStationaryRun)
	case "FILTER_MIN_MOVE_M":
		return parseFloat(key, value, &c.FilterMinMoveM)

	// Timing
	case "STALE_AFTER_MS":
		return parseInt(key, value, &c.StaleAfter)
	case "WATCH_TIMEOUT_MS":
		return parseInt(key, value, &c.WatchTimeout)
	case "WATCH_MAX_AGE_MS":
		return parseInt(key, value, &c.WatchMaxAge)
	case "RECALIBRATE_TIMEOUT_MS":
		return parseInt(key, value, &c.RecalibrateTimeout)

	// Web Server
	case "WEB_SERVER_PORT":
		return parseInt(key, value, &c.WebServerPort)

	// Mock locator
	case "MOCK_ORIGIN_LAT":
		return parseFloat(key, value, &c.MockOriginLat)
	case "MOCK_ORIGIN_LON":
		return parseFloat(key, value, &c.MockOriginLon)
	case "MOCK_INTERVAL_MS":
		return parseInt(key, value, &c.MockInterval)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseInt(key, value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseFloat(key, value string, dst *float64) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

// validate checks field bounds and that the filter settings are usable.
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Filter().Validate(); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}
	return nil
}

// Filter returns the position filter settings.
func (c *Config) Filter() position.Config {
	return position.Config{
		SmoothingAlpha:     c.FilterSmoothingAlpha,
		MaxAccuracyMeters:  c.FilterMaxAccuracyM,
		StationarySpeed:    c.FilterStationarySpeed,
		StationaryRun:      c.FilterStationaryRun,
		MinMoveMeters:      c.FilterMinMoveM,
		StaleAfter:         time.Duration(c.StaleAfter) * time.Millisecond,
		WatchTimeout:       time.Duration(c.WatchTimeout) * time.Millisecond,
		WatchMaxAge:        time.Duration(c.WatchMaxAge) * time.Millisecond,
		RecalibrateTimeout: time.Duration(c.RecalibrateTimeout) * time.Millisecond,
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
