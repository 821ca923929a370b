// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/geofix/internal/position"
)

// PermissionWait bounds how long QueryPermission waits for the retained
// permission message after subscribing.
const PermissionWait = 2 * time.Second

// ErrNoPermissionReport is returned by QueryPermission when the producer
// never reported a permission state.
var ErrNoPermissionReport = errors.New("locator: no permission report from producer")

// Topics names the MQTT topics a GPS producer publishes on.
type Topics struct {
	Reading    string // JSON reading (gps.Fix or position.RawReading)
	Error      string // plain error code, e.g. "timeout"
	Permission string // retained plain permission state, e.g. "granted"
}

type mqttWatch struct {
	onReading func(position.RawReading)
	onError   func(position.ErrorCode)
	timeout   time.Duration
	timer     *time.Timer
}

type mqttRequest struct {
	onReading func(position.RawReading)
	onError   func(position.ErrorCode)
	timer     *time.Timer
}

// MQTT is a Locator fed by a remote GPS producer over MQTT.
type MQTT struct {
	client mqtt.Client
	topics Topics
	now    func() time.Time

	mu        sync.Mutex
	last      *position.RawReading
	lastAt    time.Time
	perm      position.PermissionState
	permReady chan struct{}
	nextID    position.WatchID
	watches   map[position.WatchID]*mqttWatch
	pending   map[*mqttRequest]struct{}
	listeners map[int]func(position.PermissionState)
	nextLis   int
}

// NewMQTT creates a locator on an already connected client. Call Connect
// to subscribe to the producer topics.
func NewMQTT(client mqtt.Client, topics Topics) *MQTT {
	return &MQTT{
		client:    client,
		topics:    topics,
		now:       time.Now,
		permReady: make(chan struct{}),
		watches:   map[position.WatchID]*mqttWatch{},
		pending:   map[*mqttRequest]struct{}{},
		listeners: map[int]func(position.PermissionState){},
	}
}

// Connect subscribes to the reading, error and permission topics.
func (l *MQTT) Connect() error {
	subs := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{l.topics.Reading, l.handleReading},
		{l.topics.Error, l.handleError},
		{l.topics.Permission, l.handlePermission},
	}
	for _, s := range subs {
		token := l.client.Subscribe(s.topic, 0, s.handler)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", s.topic, token.Error())
		}
		log.Printf("locator: subscribed to %s", s.topic)
	}
	return nil
}

// Close unsubscribes and stops every watch and pending request.
func (l *MQTT) Close() {
	l.client.Unsubscribe(l.topics.Reading, l.topics.Error, l.topics.Permission)

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, w := range l.watches {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(l.watches, id)
	}
	for r := range l.pending {
		r.timer.Stop()
		delete(l.pending, r)
	}
}

func (l *MQTT) Supported() bool { return l.client != nil }

func (l *MQTT) Watch(onReading func(position.RawReading), onError func(position.ErrorCode), opts position.WatchOptions) position.WatchID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	id := l.nextID
	w := &mqttWatch{onReading: onReading, onError: onError, timeout: opts.Timeout}
	if w.timeout > 0 {
		w.timer = time.AfterFunc(w.timeout, func() { l.watchTimedOut(id) })
	}
	l.watches[id] = w

	if r, ok := l.cachedLocked(opts.MaxAge); ok {
		go onReading(r)
	}
	return id
}

func (l *MQTT) ClearWatch(id position.WatchID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.watches[id]; ok {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(l.watches, id)
	}
}

func (l *MQTT) RequestOnce(onReading func(position.RawReading), onError func(position.ErrorCode), opts position.WatchOptions) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if r, ok := l.cachedLocked(opts.MaxAge); ok {
		go onReading(r)
		return
	}
	if l.perm == position.PermissionDenied {
		go onError(position.CodePermissionDenied)
		return
	}

	req := &mqttRequest{onReading: onReading, onError: onError}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = position.DefaultRecalibrateTimeout
	}
	req.timer = time.AfterFunc(timeout, func() {
		l.mu.Lock()
		_, ok := l.pending[req]
		delete(l.pending, req)
		l.mu.Unlock()
		if ok {
			onError(position.CodeTimeout)
		}
	})
	l.pending[req] = struct{}{}
}

// QueryPermission returns the producer's retained permission state, waiting
// up to PermissionWait for it to arrive.
func (l *MQTT) QueryPermission(ctx context.Context) (position.PermissionState, error) {
	ctx, cancel := context.WithTimeout(ctx, PermissionWait)
	defer cancel()

	select {
	case <-l.permReady:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.perm, nil
	case <-ctx.Done():
		return position.PermissionPrompt, ErrNoPermissionReport
	}
}

func (l *MQTT) OnPermissionChange(fn func(position.PermissionState)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextLis++
	id := l.nextLis
	l.listeners[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

func (l *MQTT) cachedLocked(maxAge time.Duration) (position.RawReading, bool) {
	if l.last == nil || maxAge <= 0 {
		return position.RawReading{}, false
	}
	if l.now().Sub(l.lastAt) > maxAge {
		return position.RawReading{}, false
	}
	return *l.last, true
}

func (l *MQTT) watchTimedOut(id position.WatchID) {
	l.mu.Lock()
	w, ok := l.watches[id]
	if ok {
		w.timer.Reset(w.timeout)
	}
	l.mu.Unlock()

	if ok {
		w.onError(position.CodeTimeout)
	}
}

func (l *MQTT) handleReading(_ mqtt.Client, msg mqtt.Message) {
	var r position.RawReading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		log.Printf("locator: reading unmarshal error: %v", err)
		return
	}

	l.mu.Lock()
	l.last = &r
	// age counts from when the fix was taken; a retained fix may be hours old
	l.lastAt = r.Timestamp
	if l.lastAt.IsZero() {
		l.lastAt = l.now()
	}
	if msg.Retained() {
		// replayed by the broker; only fills the cache
		l.mu.Unlock()
		return
	}

	var deliver []func(position.RawReading)
	for _, w := range l.watches {
		if w.timer != nil {
			w.timer.Reset(w.timeout)
		}
		deliver = append(deliver, w.onReading)
	}
	for req := range l.pending {
		req.timer.Stop()
		delete(l.pending, req)
		deliver = append(deliver, req.onReading)
	}
	l.mu.Unlock()

	for _, fn := range deliver {
		fn(r)
	}
}

func (l *MQTT) handleError(_ mqtt.Client, msg mqtt.Message) {
	if msg.Retained() {
		return
	}
	code, ok := position.ParseErrorCode(strings.TrimSpace(string(msg.Payload())))
	if !ok {
		log.Printf("locator: unknown error code %q", msg.Payload())
		return
	}

	l.mu.Lock()
	var deliver []func(position.ErrorCode)
	for _, w := range l.watches {
		deliver = append(deliver, w.onError)
	}
	for req := range l.pending {
		req.timer.Stop()
		delete(l.pending, req)
		deliver = append(deliver, req.onError)
	}
	l.mu.Unlock()

	for _, fn := range deliver {
		fn(code)
	}
}

func (l *MQTT) handlePermission(_ mqtt.Client, msg mqtt.Message) {
	p, ok := position.ParsePermissionState(strings.TrimSpace(string(msg.Payload())))
	if !ok {
		log.Printf("locator: unknown permission %q", msg.Payload())
		return
	}

	l.mu.Lock()
	select {
	case <-l.permReady:
	default:
		close(l.permReady)
	}
	changed := l.perm != p
	l.perm = p
	var notify []func(position.PermissionState)
	if changed {
		for _, fn := range l.listeners {
			notify = append(notify, fn)
		}
	}
	l.mu.Unlock()

	for _, fn := range notify {
		fn(p)
	}
}
