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

import "errors"

// Submission error kinds. Every error returned by the pipeline wraps exactly
// one of these, so callers can match with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNoAccessPointsFound = errors.New("no access points found")
	ErrChannelBusy         = errors.New("channel busy")
	ErrDriverUnavailable   = errors.New("driver unavailable")
	ErrPortNotReady        = errors.New("port not ready")
	ErrModuleNotResponding = errors.New("module not responding")
	ErrSendIncomplete      = errors.New("send incomplete")
	// ErrCloseFailed is only ever logged, it never changes a submission outcome.
	ErrCloseFailed = errors.New("close failed")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "InvalidInput"},
	{ErrNoAccessPointsFound, "NoAccessPointsFound"},
	{ErrChannelBusy, "ChannelBusy"},
	{ErrDriverUnavailable, "DriverUnavailable"},
	{ErrPortNotReady, "PortNotReady"},
	{ErrModuleNotResponding, "ModuleNotResponding"},
	{ErrSendIncomplete, "SendIncomplete"},
	{ErrCloseFailed, "CloseFailed"},
}

// Kind returns the short name of the error kind wrapped by err, or an empty
// string if err is nil or not a submission error.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}

// IsHardwareError reports whether err came from the hardware handshake rather
// than from request resolution or lock contention.
func IsHardwareError(err error) bool {
	return errors.Is(err, ErrDriverUnavailable) ||
		errors.Is(err, ErrPortNotReady) ||
		errors.Is(err, ErrModuleNotResponding) ||
		errors.Is(err, ErrSendIncomplete)
}
