// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct{ err error }

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	fail bool
	sent chan published
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{sent: make(chan published, 64)}
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return fakeToken{err: errors.New("broker gone")}
	}
	var s string
	switch v := payload.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	}
	m := published{topic: topic, retained: retained, payload: s}
	p.msgs = append(p.msgs, m)
	select {
	case p.sent <- m:
	default:
	}
	return fakeToken{}
}

func (p *fakePublisher) on(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeMessage struct {
	mqtt.Message
	payload []byte
}

func (m fakeMessage) Payload() []byte { return m.payload }
