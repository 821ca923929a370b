// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/geofix/internal/app"
	"github.com/relabs-tech/geofix/internal/config"
)

func main() {
	log.Println("starting geofix tracker (MQTT readings → position state)")

	// Load configuration
	if err := config.InitGlobal("geofix_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunTracker(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
