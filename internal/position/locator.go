// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"context"
	"time"
)

// WatchOptions tunes a location request.
type WatchOptions struct {
	HighAccuracy bool
	// MaxAge is how old a cached fix may be. Zero asks for a fresh fix.
	MaxAge  time.Duration
	Timeout time.Duration
}

// WatchID identifies a continuous subscription.
type WatchID int

// Locator is the platform location capability.
//
// Implementations deliver callbacks asynchronously: they must never invoke
// onReading or onError from inside Watch or RequestOnce, and ClearWatch must
// not wait for in-flight callbacks to return.
type Locator interface {
	// Supported reports whether the platform can produce locations at all.
	Supported() bool
	// Watch starts a continuous subscription.
	Watch(onReading func(RawReading), onError func(ErrorCode), opts WatchOptions) WatchID
	// ClearWatch stops a subscription. Unknown or already cleared ids are
	// ignored.
	ClearWatch(id WatchID)
	// RequestOnce asks for a single fix.
	RequestOnce(onReading func(RawReading), onError func(ErrorCode), opts WatchOptions)
}

// PermissionQuerier is implemented by locators that can report the current
// permission without subscribing.
type PermissionQuerier interface {
	QueryPermission(ctx context.Context) (PermissionState, error)
}

// PermissionNotifier is implemented by locators that announce permission
// changes. The returned cancel func is idempotent and must not block on
// in-flight notifications.
type PermissionNotifier interface {
	OnPermissionChange(fn func(PermissionState)) (cancel func())
}
