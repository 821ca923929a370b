// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/geofix/internal/config"
)

// Publisher is the part of mqtt.Client the producers need.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// loadedConfig returns the global configuration or an error when
// config.InitGlobal was never called.
func loadedConfig() (*config.Config, error) {
	cfg := config.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}
	return cfg, nil
}

// connectMQTT connects to the configured broker with auto-reconnect.
func connectMQTT(cfg *config.Config, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.MQTTBroker, token.Error())
	}
	log.Printf("%s: connected to MQTT broker at %s", clientID, cfg.MQTTBroker)
	return client, nil
}

// publish sends payload and waits for the broker to acknowledge it.
func publish(p Publisher, topic string, retained bool, payload interface{}) error {
	token := p.Publish(topic, 0, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	return <-sigCh
}
