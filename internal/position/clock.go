// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import "time"

// Timer is a pending deferred call.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred calls. Tests replace it to fire timers without
// waiting.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}
