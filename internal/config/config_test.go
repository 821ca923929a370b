// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relabs-tech/geofix/internal/position"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_KeyValue(t *testing.T) {
	path := writeConfig(t, "geofix_config.txt", `
# broker
MQTT_BROKER=tcp://broker:1883
GPS_SERIAL_PORT=/dev/ttyUSB0
GPS_BAUD_RATE=38400
FILTER_SMOOTHING_ALPHA=0.25
FILTER_MIN_MOVE_M=3.5
STALE_AFTER_MS=10000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "tcp://broker:1883" || cfg.GPSSerialPort != "/dev/ttyUSB0" || cfg.GPSBaudRate != 38400 {
		t.Errorf("cfg = %+v", cfg)
	}

	f := cfg.Filter()
	if f.SmoothingAlpha != 0.25 || f.MinMoveMeters != 3.5 || f.StaleAfter != 10*time.Second {
		t.Errorf("filter = %+v", f)
	}
	// untouched keys keep their defaults
	if f.MaxAccuracyMeters != position.DefaultMaxAccuracyMeters || f.StationaryRun != position.DefaultStationaryRun {
		t.Errorf("filter defaults lost: %+v", f)
	}
}

func TestLoad_DefaultsMatchFilter(t *testing.T) {
	if got, want := Default().Filter(), position.DefaultConfig(); got != want {
		t.Errorf("Default().Filter() = %+v, want %+v", got, want)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "geofix.yml", `
mqtt_broker: tcp://yaml:1883
filter_stationary_run: 5
web_server_port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "tcp://yaml:1883" || cfg.FilterStationaryRun != 5 || cfg.WebServerPort != 9090 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "geofix_config.txt", "MQTT_BROKER=tcp://file:1883\n")
	t.Setenv("GEOFIX_MQTT_BROKER", "tcp://env:1883")
	t.Setenv("GEOFIX_FILTER_MIN_MOVE_M", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "tcp://env:1883" {
		t.Errorf("broker = %q, want env override", cfg.MQTTBroker)
	}
	if cfg.FilterMinMoveM != 8 {
		t.Errorf("min move = %v, want 8", cfg.FilterMinMoveM)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"unknown key", "c.txt", "NOPE=1\n", "unknown config key"},
		{"malformed line", "c.txt", "MQTT_BROKER\n", "invalid config line 1"},
		{"bad number", "c.txt", "GPS_BAUD_RATE=fast\n", "invalid GPS_BAUD_RATE"},
		{"alpha out of range", "c.txt", "FILTER_SMOOTHING_ALPHA=1.5\n", "invalid config"},
		{"empty broker", "c.txt", "MQTT_BROKER=\n", "invalid config"},
		{"bad yaml", "c.yaml", "mqtt_broker: [[[", "invalid YAML"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}
