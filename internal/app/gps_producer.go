// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/relabs-tech/geofix/internal/gps"
	"github.com/relabs-tech/geofix/internal/locator"
	"github.com/relabs-tech/geofix/internal/position"
)

const serialRetryInterval = 5 * time.Second

// gpsProducer turns NMEA lines into reading, error and permission messages.
type gpsProducer struct {
	pub    Publisher
	topics locator.Topics
	asm    *gps.Assembler

	perm  position.PermissionState
	noFix bool
}

func newGPSProducer(pub Publisher, topics locator.Topics, uere float64) *gpsProducer {
	asm := gps.NewAssembler()
	asm.UERE = uere
	return &gpsProducer{pub: pub, topics: topics, asm: asm}
}

// RunGPSProducer opens the GPS serial port, assembles fixes from NMEA
// sentences and publishes them to MQTT. The port is reopened whenever it
// fails; the retained permission topic tells trackers whether it could be
// opened at all.
func RunGPSProducer() error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	p := newGPSProducer(client, locator.Topics{
		Reading:    cfg.TopicGPSReading,
		Error:      cfg.TopicGPSError,
		Permission: cfg.TopicGPSPermission,
	}, cfg.GPSUERE)

	for {
		port, err := gps.OpenSerial(cfg.GPSSerialPort, cfg.GPSBaudRate)
		if perr := p.setPermission(gps.PermissionFromOpenError(err)); perr != nil {
			log.Printf("gps: %v", perr)
		}
		if err != nil {
			log.Printf("gps: %v, retrying in %s", err, serialRetryInterval)
			p.reportError(position.CodePositionUnavailable)
			time.Sleep(serialRetryInterval)
			continue
		}
		log.Printf("gps: serial port opened on %s at %d baud", cfg.GPSSerialPort, cfg.GPSBaudRate)

		err = p.run(port)
		port.Close()
		log.Printf("gps: read error: %v, reopening in %s", err, serialRetryInterval)
		p.reportError(position.CodePositionUnavailable)
		time.Sleep(serialRetryInterval)
	}
}

// run feeds every line from r until it fails.
func (p *gpsProducer) run(r io.Reader) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if herr := p.handleLine(line); herr != nil {
				log.Printf("gps: %v", herr)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (p *gpsProducer) handleLine(line string) error {
	fix, ok, err := p.asm.Feed(line)
	if errors.Is(err, gps.ErrNoFix) {
		if !p.noFix {
			p.noFix = true
			p.reportError(position.CodePositionUnavailable)
		}
		return nil
	}
	if !ok {
		return nil
	}
	p.noFix = false

	payload, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("fix JSON marshal error: %w", err)
	}
	// retained so a tracker that starts later has a cached reading
	return publish(p.pub, p.topics.Reading, true, payload)
}

func (p *gpsProducer) setPermission(perm position.PermissionState) error {
	if perm == p.perm {
		return nil
	}
	if err := publish(p.pub, p.topics.Permission, true, string(perm)); err != nil {
		return err
	}
	log.Printf("gps: permission is now %s", perm)
	p.perm = perm
	return nil
}

func (p *gpsProducer) reportError(code position.ErrorCode) {
	if err := publish(p.pub, p.topics.Error, false, code.String()); err != nil {
		log.Printf("gps: %v", err)
	}
}
