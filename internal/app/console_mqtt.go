// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/geofix/internal/gps"
	"github.com/relabs-tech/geofix/internal/position"
)

// formatState renders a state as a single console line.
func formatState(s position.State) string {
	var b strings.Builder
	if s.HasFix {
		fmt.Fprintf(&b, "[POS ]  lat=%.6f lon=%.6f acc=%.1fm", s.Latitude, s.Longitude, s.AccuracyMeters)
	} else {
		b.WriteString("[POS ]  no fix")
	}
	fmt.Fprintf(&b, " perm=%s", s.Permission)
	if s.Loading {
		b.WriteString(" loading")
	}
	if s.Stale {
		b.WriteString(" STALE")
	}
	if s.Error != "" {
		fmt.Fprintf(&b, " error=%q", s.Error)
	}
	return b.String()
}

func formatFix(f gps.Fix) string {
	speed := "?"
	if f.SpeedMPS != nil {
		speed = fmt.Sprintf("%.1f", *f.SpeedMPS)
	}
	return fmt.Sprintf(
		"[GPS ]  time=%s date=%s lat=%.6f lon=%.6f acc=%.1fm speed=%sm/s course=%.1f° sats=%d validity=%s",
		f.Time, f.Date, f.Latitude, f.Longitude, f.AccuracyM, speed, f.CourseDeg, f.Satellites, f.Validity,
	)
}

// RunConsoleMQTT prints raw GPS fixes and tracker states as they arrive.
func RunConsoleMQTT() error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// Subscribe to raw GPS fixes
	gpsToken := client.Subscribe(cfg.TopicGPSReading, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f gps.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: gps unmarshal error: %v", err)
			return
		}
		fmt.Println(formatFix(f))
	})
	gpsToken.Wait()
	if gpsToken.Error() != nil {
		return gpsToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicGPSReading)

	// Subscribe to GPS errors
	errToken := client.Subscribe(cfg.TopicGPSError, 0, func(_ mqtt.Client, msg mqtt.Message) {
		fmt.Printf("[ERR ]  %s\n", msg.Payload())
	})
	errToken.Wait()
	if errToken.Error() != nil {
		return errToken.Error()
	}

	// Subscribe to tracker state
	posToken := client.Subscribe(cfg.TopicPosition, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s position.State
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: state unmarshal error: %v", err)
			return
		}
		fmt.Println(formatState(s))
	})
	posToken.Wait()
	if posToken.Error() != nil {
		return posToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPosition)

	sig := waitForSignal()
	log.Printf("console: received %v, shutting down", sig)
	return nil
}
