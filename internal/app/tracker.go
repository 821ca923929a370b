// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/geofix/internal/locator"
	"github.com/relabs-tech/geofix/internal/position"
)

// tracker republishes every controller state on the position topic.
type tracker struct {
	ctrl  *position.Controller
	pub   Publisher
	topic string

	updates chan position.State
	done    chan struct{}
	cancel  func()
}

func newTracker(ctrl *position.Controller, pub Publisher, topic string) *tracker {
	t := &tracker{
		ctrl:    ctrl,
		pub:     pub,
		topic:   topic,
		updates: make(chan position.State, 1),
		done:    make(chan struct{}),
	}
	// the current state goes out first, then every change; listeners run
	// under the controller lock, so only the newest pending state is kept
	t.cancel = ctrl.Observe(func(s position.State) {
		select {
		case t.updates <- s:
		default:
			select {
			case <-t.updates:
			default:
			}
			t.updates <- s
		}
	})
	go t.loop()
	return t
}

func (t *tracker) loop() {
	defer close(t.done)
	for s := range t.updates {
		if err := t.publishState(s); err != nil {
			log.Printf("tracker: %v", err)
		}
	}
}

func (t *tracker) publishState(s position.State) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("state JSON marshal error: %w", err)
	}
	return publish(t.pub, t.topic, true, payload)
}

func (t *tracker) handleRecalibrate(_ mqtt.Client, _ mqtt.Message) {
	log.Println("tracker: recalibration requested")
	t.ctrl.Recalibrate()
}

// stop detaches from the controller and waits for the last publish.
func (t *tracker) stop() {
	t.cancel()
	close(t.updates)
	<-t.done
}

// RunTracker consumes the GPS producer's readings, runs them through the
// position controller and publishes the resulting state (retained) until
// interrupted.
func RunTracker() error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg, cfg.MQTTClientIDTracker)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	loc := locator.NewMQTT(client, locator.Topics{
		Reading:    cfg.TopicGPSReading,
		Error:      cfg.TopicGPSError,
		Permission: cfg.TopicGPSPermission,
	})
	if err := loc.Connect(); err != nil {
		return err
	}
	defer loc.Close()

	ctrl, err := position.NewController(loc, cfg.Filter())
	if err != nil {
		return err
	}
	defer ctrl.Close()

	t := newTracker(ctrl, client, cfg.TopicPosition)
	defer t.stop()

	token := client.Subscribe(cfg.TopicRecalibrate, 0, t.handleRecalibrate)
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("tracker: subscribed to %s", cfg.TopicRecalibrate)

	ctrl.Start(context.Background())

	sig := waitForSignal()
	log.Printf("tracker: received %v, shutting down", sig)
	return nil
}
