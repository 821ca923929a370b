// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import "fmt"

// Recalibrate requests one fresh, high-accuracy fix that bypasses the
// platform's cached-fix allowance. The result goes through the same gate
// pipeline as continuous readings. Effects are observed through State.
func (c *Controller) Recalibrate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.Permission == PermissionUnsupported || !c.loc.Supported() {
		return
	}

	c.recalGen++
	gen := c.recalGen
	c.state.Loading = true
	c.state.Error = ""
	c.state.Stale = false
	c.emitLocked()

	c.loc.RequestOnce(
		func(r RawReading) { c.onRecalibrated(r) },
		func(code ErrorCode) { c.onRecalibrationFailed(gen, code) },
		WatchOptions{
			HighAccuracy: true,
			MaxAge:       0,
			Timeout:      c.cfg.RecalibrateTimeout,
		},
	)
}

func (c *Controller) onRecalibrated(r RawReading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	out := c.acceptLocked(r)
	if !out.Verdict.Alive() {
		c.state.Loading = false
	}

	// a fix after a denial means access was granted again
	if out.Verdict.Alive() && c.started && !c.watching {
		c.logger.Println("position: recalibration succeeded without a watch, restarting it")
		c.startWatchLocked()
	}
	c.emitLocked()
}

func (c *Controller) onRecalibrationFailed(gen uint64, code ErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.recalGen {
		return
	}

	err := fmt.Errorf("%w: %w", ErrRecalibrationFailed, Classify(code))
	c.logger.Printf("position: %v", err)
	c.state.Error = err.Error()
	c.state.Loading = false
	c.emitLocked()
}
