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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(f *driverFactory) *Session {
	return NewSession("test", f.Open, SessionOptions{
		Port:        "/dev/ttyUSB0",
		StepTimeout: time.Second,
		SendTimeout: time.Second,
	})
}

func TestSession_Success(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	s := newTestSession(&driverFactory{drivers: []*fakeDriver{d}})
	assert.Equal(t, StateInit, s.State())

	err := s.Run(context.Background(), ByteSequence{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, StateClosed, s.State())
	assert.True(t, s.Opened())
	assert.Equal(t, []string{"ready", "alive", "send", "close"}, d.Calls())
	assert.Equal(t, []ByteSequence{{1, 2, 3}}, d.Sent())
}

func TestSession_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup     func(d *fakeDriver)
		wantErr   error
		name      string
		wantCalls []string
	}{
		{
			name:      "port not ready",
			setup:     func(d *fakeDriver) { d.readyErr = errors.New("no dsr") },
			wantErr:   ErrPortNotReady,
			wantCalls: []string{"ready", "close"},
		},
		{
			name:      "module not responding",
			setup:     func(d *fakeDriver) { d.aliveErr = errors.New("no OK") },
			wantErr:   ErrModuleNotResponding,
			wantCalls: []string{"ready", "alive", "close"},
		},
		{
			name:      "partial send",
			setup:     func(d *fakeDriver) { d.accepted = 2 },
			wantErr:   ErrSendIncomplete,
			wantCalls: []string{"ready", "alive", "send", "close"},
		},
		{
			name:      "send error",
			setup:     func(d *fakeDriver) { d.sendErr = errors.New("ERROR") },
			wantErr:   ErrSendIncomplete,
			wantCalls: []string{"ready", "alive", "send", "close"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newFakeDriver()
			tt.setup(d)
			s := newTestSession(&driverFactory{drivers: []*fakeDriver{d}})

			err := s.Run(context.Background(), ByteSequence{1, 2, 3})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateClosed, s.State())
			assert.Equal(t, tt.wantCalls, d.Calls())
		})
	}
}

func TestSession_DriverUnavailable(t *testing.T) {
	t.Parallel()

	s := newTestSession(&driverFactory{err: errors.New("no such file")})

	err := s.Run(context.Background(), ByteSequence{1})
	require.ErrorIs(t, err, ErrDriverUnavailable)
	assert.Contains(t, err.Error(), "/dev/ttyUSB0")
	assert.False(t, s.Opened())
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_CloseFailureDoesNotChangeOutcome(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.closeErr = errors.New("port vanished")
	s := newTestSession(&driverFactory{drivers: []*fakeDriver{d}})

	require.NoError(t, s.Run(context.Background(), ByteSequence{9}))
	assert.Equal(t, StateClosed, s.State())

	d2 := newFakeDriver()
	d2.aliveErr = errors.New("silent")
	d2.closeErr = errors.New("port vanished")
	s2 := newTestSession(&driverFactory{drivers: []*fakeDriver{d2}})

	err := s2.Run(context.Background(), ByteSequence{9})
	require.ErrorIs(t, err, ErrModuleNotResponding)
	assert.NotErrorIs(t, err, ErrCloseFailed)
}

func TestSession_StepTimeout(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.blockReady = true
	s := NewSession("test", (&driverFactory{drivers: []*fakeDriver{d}}).Open, SessionOptions{
		StepTimeout: 20 * time.Millisecond,
	})

	err := s.Run(context.Background(), ByteSequence{1})
	require.ErrorIs(t, err, ErrPortNotReady)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"ready", "close"}, d.Calls())
}

func TestSession_OpenFinishingAfterTimeoutIsClosed(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	slowOpen := func(ctx context.Context, _ string) (Driver, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return d, nil
	}
	s := NewSession("test", slowOpen, SessionOptions{StepTimeout: 30 * time.Millisecond})

	err := s.Run(context.Background(), ByteSequence{1})
	require.ErrorIs(t, err, ErrDriverUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the late open was waited for and its handle closed before Run returned
	assert.Equal(t, []string{"close"}, d.Calls())
	assert.True(t, s.Opened())
	assert.Equal(t, StateClosed, s.State())

	select {
	case <-s.Idle():
	default:
		t.Fatal("session should be idle")
	}
}

func TestSession_OpenStuckPastGracePeriod(t *testing.T) {
	t.Parallel()

	f := newHangingFactory()
	s := NewSession("test", f.Open, SessionOptions{StepTimeout: 20 * time.Millisecond})

	err := s.Run(context.Background(), ByteSequence{1})
	require.ErrorIs(t, err, ErrDriverUnavailable)
	assert.True(t, s.Opened(), "a stalled open counts as opened")
	assert.Equal(t, StateClosed, s.State())

	idle := s.Idle()
	select {
	case <-idle:
		t.Fatal("session must not be idle while the open is still running")
	default:
	}

	close(f.release)
	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatal("session did not become idle")
	}

	require.Eventually(t, func() bool {
		drivers := f.Drivers()
		return len(drivers) == 1 && len(drivers[0].Calls()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"close"}, f.Drivers()[0].Calls())
}

func TestSession_CancelledBeforeOpen(t *testing.T) {
	t.Parallel()

	f := &driverFactory{}
	s := newTestSession(f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, ByteSequence{1})
	require.ErrorIs(t, err, ErrDriverUnavailable)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.Opened())
	assert.Equal(t, StateClosed, s.State())
}

func TestSession_CancelledBeforeSend(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.blockReady = true
	s := newTestSession(&driverFactory{drivers: []*fakeDriver{d}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, ByteSequence{1})
	}()

	require.Eventually(t, func() bool {
		return len(d.Calls()) > 0
	}, time.Second, time.Millisecond)
	cancel()

	err := <-done
	require.ErrorIs(t, err, ErrPortNotReady)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.Sent())
	assert.Equal(t, []string{"ready", "close"}, d.Calls())
}

func TestSession_SendIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	d := newFakeDriver()
	d.sendStarted = make(chan struct{})
	d.sendRelease = make(chan struct{})
	s := newTestSession(&driverFactory{drivers: []*fakeDriver{d}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, ByteSequence{1, 2})
	}()

	<-d.sendStarted
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(d.sendRelease)

	require.NoError(t, <-done)
	assert.Equal(t, []ByteSequence{{1, 2}}, d.Sent())
}

func TestIsValidTransition(t *testing.T) {
	t.Parallel()

	order := []State{StateInit, StatePortOpen, StatePortReady, StateModuleAlive, StateBytesSent, StateClosed}
	for i := range len(order) - 1 {
		assert.True(t, IsValidTransition(order[i], order[i+1]), "%s -> %s", order[i], order[i+1])
		assert.True(t, IsValidTransition(order[i], StateClosed), "%s -> Closed", order[i])
	}

	assert.False(t, IsValidTransition(StateInit, StatePortReady), "skipping")
	assert.False(t, IsValidTransition(StatePortOpen, StateBytesSent), "skipping")
	assert.False(t, IsValidTransition(StateModuleAlive, StatePortReady), "backwards")
	assert.False(t, IsValidTransition(StateClosed, StateInit), "closed is terminal")
	assert.False(t, IsValidTransition(StateClosed, StateClosed), "closed is terminal")
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Init", StateInit.String())
	assert.Equal(t, "ModuleAlive", StateModuleAlive.String())
	assert.Equal(t, "Closed", StateClosed.String())
	assert.Equal(t, "Unknown", State(42).String())
}
