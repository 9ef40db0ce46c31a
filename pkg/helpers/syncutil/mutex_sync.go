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

//go:build !deadlock

// Package syncutil wraps the sync mutexes so that lock-order bugs between the
// pipeline, its listeners and the API hub can be caught in development by
// building with -tags=deadlock.
package syncutil

import "sync"

// DeadlockEnabled is true if the deadlock detector is enabled.
const DeadlockEnabled = false

// A Mutex is a mutual exclusion lock.
//
//nolint:gocritic // this is the wrapper
type Mutex struct {
	sync.Mutex //nolint:forbidigo // wrapped here only
}

// An RWMutex is a reader/writer mutual exclusion lock.
//
//nolint:gocritic // this is the wrapper
type RWMutex struct {
	sync.RWMutex //nolint:forbidigo // wrapped here only
}
