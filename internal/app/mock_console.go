// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/geofix/internal/geo"
	"github.com/relabs-tech/geofix/internal/locator"
	"github.com/relabs-tech/geofix/internal/position"
)

// RunMockConsole runs the position controller over a simulated walk and
// prints every state change together with the distance back to the start.
func RunMockConsole() error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	origin := geo.Point{Lat: cfg.MockOriginLat, Lon: cfg.MockOriginLon}
	loc := locator.NewMock(origin, time.Duration(cfg.MockInterval)*time.Millisecond)

	ctrl, err := position.NewController(loc, cfg.Filter())
	if err != nil {
		return err
	}
	defer ctrl.Close()

	prox := position.NewProximity(ctrl)
	defer prox.Close()
	prox.SetTarget(origin.Lat, origin.Lon)

	states := make(chan position.State, 16)
	ctrl.Subscribe(func(s position.State) {
		select {
		case states <- s:
		default:
		}
	})
	ctrl.Start(context.Background())

	stop := make(chan struct{})
	go func() {
		sig := waitForSignal()
		log.Printf("console: received %v, shutting down", sig)
		close(stop)
	}()

	for {
		select {
		case s := <-states:
			line := formatState(s)
			if d, ok := prox.Distance(); ok {
				line += fmt.Sprintf("  home=%.1fm", d)
			}
			fmt.Println(line)
		case <-stop:
			return nil
		}
	}
}
