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

package sigfox

import "time"

// AT command set
const (
	CmdAttention = "AT"     // AT -> OK
	CmdSendFrame = "AT$SF=" // AT$SF=<hex payload> -> OK after the frame is on air

	CommandTerminator = "\r"

	RespOK    = "OK"
	RespError = "ERROR"
)

// Communication settings
const (
	DefaultBaudRate = 9600
	ReadTimeout     = 100 * time.Millisecond
	PollInterval    = 100 * time.Millisecond
	DetectTimeout   = 1 * time.Second
	maxLineLength   = 256
)

// AutoPort asks the driver factory to probe for a modem.
const AutoPort = "auto"
