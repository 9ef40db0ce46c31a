// Zaparoo Uplink
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Uplink.
//
// Zaparoo Uplink is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Uplink is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Uplink.  If not, see <http://www.gnu.org/licenses/>.

// Package uplink implements the command submission pipeline that validates
// a payload (or derives one from a Wi-Fi scan), claims the shared serial
// channel and drives the modem handshake to transmit it.
package uplink

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/syncutil"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/wifi"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultSettleDelay is the pause after closing the channel before it may be
// reopened.
const DefaultSettleDelay = 1 * time.Second

// Source says how a request's payload is produced.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceScan     Source = "scan"
)

// Request is a single property write.
type Request struct {
	Raw    string
	Source Source
}

// Explicit requests transmission of a raw property value.
func Explicit(raw string) Request {
	return Request{Source: SourceExplicit, Raw: raw}
}

// FromScan requests transmission of a Wi-Fi fingerprint.
func FromScan() Request {
	return Request{Source: SourceScan}
}

// Event reports the outcome of one submission.
type Event struct {
	Time   time.Time    `json:"time"`
	Err    error        `json:"-"`
	ID     string       `json:"id"`
	Source Source       `json:"source"`
	Bytes  ByteSequence `json:"bytes"`
}

// Kind returns the error kind of a failed submission.
func (e Event) Kind() string {
	return Kind(e.Err)
}

// Submitter is the capability the host adapters call into.
type Submitter interface {
	Submit(ctx context.Context, req Request) (ByteSequence, error)
	Value() ByteSequence
}

// Options configures a Pipeline.
type Options struct {
	Port        string
	SettleDelay time.Duration
	StepTimeout time.Duration
	SendTimeout time.Duration
}

// Pipeline serialises submissions onto the hardware channel.
type Pipeline struct {
	clock     clockwork.Clock
	scanner   wifi.Scanner
	lock      *ChannelLock
	factory   DriverFactory
	listeners []func(Event)
	property  Property
	opts      Options
	mu        syncutil.RWMutex // protects listeners
}

// NewPipeline builds a pipeline. scanner may be nil, in which case scan
// requests fail with ErrNoAccessPointsFound. A nil clock uses the real
// clock. A negative settle delay disables it; zero uses the default.
func NewPipeline(
	lock *ChannelLock,
	factory DriverFactory,
	scanner wifi.Scanner,
	clock clockwork.Clock,
	opts Options,
) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	return &Pipeline{
		lock:    lock,
		factory: factory,
		scanner: scanner,
		clock:   clock,
		opts:    opts,
	}
}

// OnEvent registers fn to be called after every submission, once the
// channel lock has been released.
func (p *Pipeline) OnEvent(fn func(Event)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Value returns the last accepted payload.
func (p *Pipeline) Value() ByteSequence {
	return p.property.Value()
}

// SetValue is the host property entry point for a raw value.
func (p *Pipeline) SetValue(ctx context.Context, raw string) (ByteSequence, error) {
	return p.Submit(ctx, Explicit(raw))
}

// Submit resolves the request to a payload, claims the channel and runs a
// handshake session. It never waits for a busy channel and never retries.
func (p *Pipeline) Submit(ctx context.Context, req Request) (ByteSequence, error) {
	ev := Event{ID: uuid.NewString(), Source: req.Source}
	logger := log.With().Str("submission", ev.ID).Str("source", string(req.Source)).Logger()

	payload, err := p.run(ctx, ev.ID, req)
	ev.Time = p.clock.Now()
	ev.Bytes = payload
	ev.Err = err

	if err != nil {
		logger.Error().Err(err).Str("kind", Kind(err)).Msg("uplink: submission rejected")
	} else {
		p.property.set(payload, ev.Time)
		logger.Info().Stringer("bytes", payload).Msg("uplink: submission accepted")
	}

	p.emit(ev)

	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *Pipeline) run(ctx context.Context, id string, req Request) (ByteSequence, error) {
	// resolve before touching the lock so bad requests never contend for it
	payload, err := p.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := p.lock.Acquire(); err != nil {
		return payload, err
	}

	sess := NewSession(id, p.factory, SessionOptions{
		Port:        p.opts.Port,
		StepTimeout: p.opts.StepTimeout,
		SendTimeout: p.opts.SendTimeout,
	})
	defer p.releaseWhenIdle(id, sess)

	err = sess.Run(ctx, payload)

	if sess.Opened() && p.opts.SettleDelay > 0 {
		<-p.clock.After(p.opts.SettleDelay)
	}

	return payload, err
}

// releaseWhenIdle frees the channel once no step of sess can still touch
// the hardware. A step stuck past its grace period keeps the lock held
// until it returns.
func (p *Pipeline) releaseWhenIdle(id string, sess *Session) {
	release := func() {
		if err := p.lock.Release(); err != nil {
			log.Error().Err(err).Str("submission", id).Msg("uplink: failed to release channel lock")
		}
	}

	idle := sess.Idle()
	select {
	case <-idle:
		release()
	default:
		log.Warn().Str("submission", id).Msg("uplink: holding channel lock until stalled step returns")
		go func() {
			<-idle
			release()
			log.Info().Str("submission", id).Msg("uplink: stalled step returned, channel lock released")
		}()
	}
}

func (p *Pipeline) resolve(ctx context.Context, req Request) (ByteSequence, error) {
	switch req.Source {
	case SourceScan:
		if p.scanner == nil {
			return nil, fmt.Errorf("%w: no scanner configured", ErrNoAccessPointsFound)
		}
		scan, err := p.scanner.Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: scan failed: %w", ErrNoAccessPointsFound, err)
		}
		log.Debug().Int("count", len(scan)).Msg("uplink: wifi scan complete")
		return EncodeFingerprint(scan)
	case SourceExplicit, "":
		return Parse(req.Raw)
	default:
		return nil, fmt.Errorf("%w: unknown request source %q", ErrInvalidInput, req.Source)
	}
}

func (p *Pipeline) emit(ev Event) {
	p.mu.RLock()
	listeners := make([]func(Event), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
