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

package uplink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Driver is the hardware collaborator that owns one open channel to the
// modem. A Driver is used by exactly one session and closed at its end.
type Driver interface {
	// WaitPortReady blocks until the channel reports ready.
	WaitPortReady(ctx context.Context) error
	// CheckModuleIsAlive probes the attached modem.
	CheckModuleIsAlive(ctx context.Context) error
	// SendBytes transmits the payload and returns how many bytes the modem
	// accepted.
	SendBytes(ctx context.Context, payload ByteSequence) (int, error)
	// Close releases the channel.
	Close() error
}

// DriverFactory opens the channel for the configured port.
type DriverFactory func(ctx context.Context, port string) (Driver, error)

// Default step limits.
const (
	DefaultStepTimeout = 10 * time.Second
	DefaultSendTimeout = 30 * time.Second
)

// SessionOptions configures a handshake session.
type SessionOptions struct {
	Port string
	// StepTimeout bounds each hardware step before the send.
	StepTimeout time.Duration
	// SendTimeout bounds the send step, which also covers the radio
	// transmission on most modems.
	SendTimeout time.Duration
}

// Session drives one payload through the modem handshake:
// Init, PortOpen, PortReady, ModuleAlive, BytesSent, Closed.
type Session struct {
	driver Driver
	// stray is closed when a step that outlived its timeout returns
	stray   <-chan struct{}
	factory DriverFactory
	id      string
	opts    SessionOptions
	state   stateTracker
	mu      syncutil.Mutex // protects driver, stray, closing, stalled
	closing bool
	// stalled is set when the open step timed out with the factory still
	// running
	stalled bool
}

// NewSession creates a session in StateInit. Zero timeouts use the defaults.
func NewSession(id string, factory DriverFactory, opts SessionOptions) *Session {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = DefaultStepTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	return &Session{
		id:      id,
		factory: factory,
		opts:    opts,
	}
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state.get()
}

// Opened reports whether the session ever held, or may have been about to
// hold, the hardware channel.
func (s *Session) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver != nil || s.stalled
}

// Idle returns a channel that is closed once no step of this session is
// still running. It only stays open after Run when a step ignored both its
// timeout and the grace period that followed.
func (s *Session) Idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stray != nil {
		return s.stray
	}
	done := make(chan struct{})
	close(done)
	return done
}

type step struct {
	run     func(ctx context.Context) error
	kind    error
	to      State
	timeout time.Duration
	// detached steps ignore caller cancellation and only stop on their own
	// timeout
	detached bool
}

// Run executes every transition in order and always finishes in
// StateClosed. The first failing step aborts the rest; its error is
// returned after the channel is closed.
func (s *Session) Run(ctx context.Context, payload ByteSequence) error {
	steps := []step{
		{to: StatePortOpen, kind: ErrDriverUnavailable, timeout: s.opts.StepTimeout, run: s.open},
		{to: StatePortReady, kind: ErrPortNotReady, timeout: s.opts.StepTimeout, run: s.waitReady},
		{to: StateModuleAlive, kind: ErrModuleNotResponding, timeout: s.opts.StepTimeout, run: s.checkAlive},
		{
			to: StateBytesSent, kind: ErrSendIncomplete, timeout: s.opts.SendTimeout, detached: true,
			run: func(ctx context.Context) error { return s.send(ctx, payload) },
		},
	}

	var runErr error
	for _, st := range steps {
		pending, err := s.runStep(ctx, st)
		if err != nil {
			log.Debug().Err(err).Str("session", s.id).
				Stringer("state", s.State()).Msg("uplink: session step failed")
			if pending != nil {
				s.awaitStray(st, pending)
			}
			runErr = err
			break
		}
		s.transition(st.to)
	}

	s.close()
	return runErr
}

// awaitStray gives a step that outlived its timeout one more step timeout
// to return, so the channel is not closed or reopened underneath it.
func (s *Session) awaitStray(st step, pending <-chan struct{}) {
	if st.to == StatePortOpen {
		s.mu.Lock()
		s.stalled = true
		s.mu.Unlock()
	}

	timer := time.NewTimer(s.opts.StepTimeout)
	defer timer.Stop()
	select {
	case <-pending:
	case <-timer.C:
		log.Warn().Str("session", s.id).Stringer("state", s.State()).
			Msgf("uplink: step to %s still running after timeout", st.to)
		s.mu.Lock()
		s.stray = pending
		s.mu.Unlock()
	}
}

func (s *Session) transition(to State) {
	from := s.State()
	if !s.state.set(to) {
		// unreachable while steps are sequenced by Run
		log.Error().Str("session", s.id).Msgf("uplink: invalid transition %s -> %s", from, to)
		return
	}
	log.Debug().Str("session", s.id).Msgf("uplink: %s -> %s", from, to)
}

// runStep runs one transition under its timeout. If the step gives up
// before its function returns, pending is closed when it finally does.
func (*Session) runStep(ctx context.Context, st step) (pending <-chan struct{}, err error) {
	parent := ctx
	if st.detached {
		parent = context.WithoutCancel(ctx)
	}
	stepCtx, cancel := context.WithTimeout(parent, st.timeout)
	defer cancel()
	if err := stepCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", st.kind, err)
	}

	done := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		done <- st.run(stepCtx)
	}()

	select {
	case err = <-done:
	case <-stepCtx.Done():
		err = stepCtx.Err()
		pending = finished
	}
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, st.kind) {
		return pending, err
	}
	return pending, fmt.Errorf("%w: %w", st.kind, err)
}

func (s *Session) open(ctx context.Context) error {
	d, err := s.factory(ctx, s.opts.Port)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDriverUnavailable, s.opts.Port, err)
	}
	if d == nil {
		return fmt.Errorf("%w: %s: no driver returned", ErrDriverUnavailable, s.opts.Port)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		// open outlived its step timeout and the session already moved on
		_ = d.Close()
		return fmt.Errorf("%w: %s: opened after session closed", ErrDriverUnavailable, s.opts.Port)
	}
	s.driver = d
	return nil
}

func (s *Session) current() Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver
}

func (s *Session) waitReady(ctx context.Context) error {
	if err := s.current().WaitPortReady(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrPortNotReady, err)
	}
	return nil
}

func (s *Session) checkAlive(ctx context.Context) error {
	if err := s.current().CheckModuleIsAlive(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrModuleNotResponding, err)
	}
	return nil
}

func (s *Session) send(ctx context.Context, payload ByteSequence) error {
	n, err := s.current().SendBytes(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: module accepted %d of %d bytes: %w", ErrSendIncomplete, n, len(payload), err)
	}
	if n < len(payload) {
		return fmt.Errorf("%w: module accepted %d of %d bytes", ErrSendIncomplete, n, len(payload))
	}
	return nil
}

// close releases the driver, if any. Failures are logged and never change
// the session outcome.
func (s *Session) close() {
	s.mu.Lock()
	s.closing = true
	d := s.driver
	s.mu.Unlock()

	if d != nil {
		if err := d.Close(); err != nil {
			log.Warn().Err(fmt.Errorf("%w: %w", ErrCloseFailed, err)).
				Str("session", s.id).Msg("uplink: failed to close channel")
		}
	}
	s.transition(StateClosed)
}
