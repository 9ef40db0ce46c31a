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

package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

var AppVersion = "DEVELOPMENT"

const (
	AppName  = "zaparoo-uplink"
	LogFile  = "uplink.log"
	CfgFile  = "uplink.toml"
	LockFile = "zaparoo-uplink.lock"

	// APIRequestTimeout covers a full submission including the send step
	// and settle delay.
	APIRequestTimeout = 2 * time.Minute
)

// ConfigDir is where the config file lives unless CfgEnv is set.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// TempDir holds the log file.
func TempDir() string {
	return filepath.Join(os.TempDir(), AppName)
}

// DefaultLockPath is shared by every process on the host, so it does not
// live under a per-user directory.
func DefaultLockPath() string {
	return filepath.Join(os.TempDir(), LockFile)
}
