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
	"bytes"
	"context"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/syncutil"
)

// fakeDriver records calls and returns scripted results.
type fakeDriver struct {
	readyErr error
	aliveErr error
	sendErr  error
	closeErr error
	// blockReady makes WaitPortReady wait for the context
	blockReady bool
	// sendStarted is closed when SendBytes is entered, if set
	sendStarted chan struct{}
	// sendRelease makes SendBytes wait until it is closed, if set
	sendRelease chan struct{}
	sent        []ByteSequence
	calls       []string
	// accepted overrides the byte count reported by SendBytes when >= 0
	accepted int
	mu       syncutil.Mutex
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{accepted: -1}
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDriver) Sent() []ByteSequence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ByteSequence(nil), d.sent...)
}

func (d *fakeDriver) WaitPortReady(ctx context.Context) error {
	d.record("ready")
	if d.blockReady {
		<-ctx.Done()
		return ctx.Err()
	}
	return d.readyErr
}

func (d *fakeDriver) CheckModuleIsAlive(_ context.Context) error {
	d.record("alive")
	return d.aliveErr
}

func (d *fakeDriver) SendBytes(ctx context.Context, payload ByteSequence) (int, error) {
	d.record("send")
	if d.sendStarted != nil {
		close(d.sendStarted)
	}
	if d.sendRelease != nil {
		select {
		case <-d.sendRelease:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if d.sendErr != nil {
		return 0, d.sendErr
	}
	d.mu.Lock()
	d.sent = append(d.sent, bytes.Clone(payload))
	d.mu.Unlock()
	if d.accepted >= 0 {
		return d.accepted, nil
	}
	return len(payload), nil
}

func (d *fakeDriver) Close() error {
	d.record("close")
	return d.closeErr
}

// driverFactory hands out drivers and counts how many sessions opened one.
type driverFactory struct {
	err     error
	drivers []*fakeDriver
	opened  int
	mu      syncutil.Mutex
}

func (f *driverFactory) Open(_ context.Context, _ string) (Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.opened >= len(f.drivers) {
		f.drivers = append(f.drivers, newFakeDriver())
	}
	d := f.drivers[f.opened]
	f.opened++
	return d, nil
}

func (f *driverFactory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// hangingFactory blocks every open until release is closed, ignoring the
// context, and tracks how many opens overlap.
type hangingFactory struct {
	release  chan struct{}
	drivers  []*fakeDriver
	active   int
	maxOpens int
	mu       syncutil.Mutex
}

func newHangingFactory() *hangingFactory {
	return &hangingFactory{release: make(chan struct{})}
}

func (f *hangingFactory) Open(_ context.Context, _ string) (Driver, error) {
	f.mu.Lock()
	f.active++
	f.maxOpens = max(f.maxOpens, f.active)
	f.mu.Unlock()

	<-f.release

	d := newFakeDriver()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	f.drivers = append(f.drivers, d)
	return d, nil
}

func (f *hangingFactory) MaxConcurrentOpens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpens
}

func (f *hangingFactory) Drivers() []*fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeDriver(nil), f.drivers...)
}
