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

import "sync/atomic"

// State is a handshake session state.
type State int32

const (
	// StateInit is a fresh session with no hardware handle.
	StateInit State = iota
	// StatePortOpen means the driver holds the serial port.
	StatePortOpen
	// StatePortReady means the port reported ready.
	StatePortReady
	// StateModuleAlive means the modem answered the liveness probe.
	StateModuleAlive
	// StateBytesSent means the modem accepted the whole payload.
	StateBytesSent
	// StateClosed is terminal, the hardware handle has been released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StatePortOpen:
		return "PortOpen"
	case StatePortReady:
		return "PortReady"
	case StateModuleAlive:
		return "ModuleAlive"
	case StateBytesSent:
		return "BytesSent"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// IsValidTransition checks a state change. Sessions only move one step
// forward, except that any live state may abort straight to Closed.
func IsValidTransition(from, to State) bool {
	if from == StateClosed {
		return false
	}
	if to == StateClosed {
		return true
	}
	return to == from+1
}

// stateTracker holds a session state that may be read from other goroutines.
type stateTracker struct {
	state int32
}

func (t *stateTracker) get() State {
	return State(atomic.LoadInt32(&t.state))
}

// set moves to newState if the transition is valid.
func (t *stateTracker) set(newState State) bool {
	for {
		current := State(atomic.LoadInt32(&t.state))
		if !IsValidTransition(current, newState) {
			return false
		}
		if atomic.CompareAndSwapInt32(&t.state, int32(current), int32(newState)) {
			return true
		}
	}
}
