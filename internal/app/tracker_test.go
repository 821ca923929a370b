// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/relabs-tech/geofix/internal/geo"
	"github.com/relabs-tech/geofix/internal/locator"
	"github.com/relabs-tech/geofix/internal/position"
)

func TestTracker_PublishesStates(t *testing.T) {
	loc := locator.NewMock(geo.Point{Lat: 52.52, Lon: 13.405}, 5*time.Millisecond)
	ctrl, err := position.NewController(loc, position.DefaultConfig(),
		position.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	pub := newFakePublisher()
	tr := newTracker(ctrl, pub, "geofix/position")
	ctrl.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-pub.sent:
			if m.topic != "geofix/position" || !m.retained {
				t.Fatalf("published %+v", m)
			}
			var s position.State
			if err := json.Unmarshal([]byte(m.payload), &s); err != nil {
				t.Fatal(err)
			}
			if s.HasFix {
				tr.stop()
				return
			}
		case <-deadline:
			t.Fatal("no state with a fix was published")
		}
	}
}

func TestTracker_RecalibrateMessage(t *testing.T) {
	loc := locator.NewMock(geo.Point{Lat: 52.52, Lon: 13.405}, time.Hour)
	ctrl, err := position.NewController(loc, position.DefaultConfig(),
		position.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()
	ctrl.Start(context.Background())

	tr := newTracker(ctrl, newFakePublisher(), "geofix/position")
	defer tr.stop()

	tr.handleRecalibrate(nil, fakeMessage{payload: []byte("recalibrate")})
	if s := ctrl.State(); !s.Loading || s.Error != "" {
		t.Errorf("state after recalibrate = %+v", s)
	}
}

func TestTracker_PublishesCurrentStateFirst(t *testing.T) {
	loc := locator.NewMock(geo.Point{Lat: 52.52, Lon: 13.405}, time.Hour)
	ctrl, err := position.NewController(loc, position.DefaultConfig(),
		position.WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	pub := newFakePublisher()
	tr := newTracker(ctrl, pub, "geofix/position")

	select {
	case m := <-pub.sent:
		var s position.State
		if err := json.Unmarshal([]byte(m.payload), &s); err != nil {
			t.Fatal(err)
		}
		if s != ctrl.State() {
			t.Errorf("published %+v, want current state %+v", s, ctrl.State())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("current state was not published before any change")
	}

	tr.stop()
	if n := len(pub.on("geofix/position")); n != 1 {
		t.Errorf("published %d states without a change, want 1", n)
	}
}
