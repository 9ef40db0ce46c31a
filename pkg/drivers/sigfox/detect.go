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

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// Detect probes each path with AT and returns the first that answers OK,
// or "" if none do.
func Detect(ctx context.Context, paths []string, mode *serial.Mode, factory SerialPortFactory) string {
	for _, path := range paths {
		if ctx.Err() != nil {
			return ""
		}
		if probe(ctx, path, mode, factory) {
			log.Info().Str("path", path).Msg("sigfox: modem detected")
			return path
		}
	}
	return ""
}

func probe(ctx context.Context, path string, mode *serial.Mode, factory SerialPortFactory) bool {
	d, err := Open(path, mode, factory, nil)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("sigfox: probe open failed")
		return false
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("sigfox: probe close failed")
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, DetectTimeout)
	defer cancel()

	if err := d.CheckModuleIsAlive(probeCtx); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("sigfox: no modem on port")
		return false
	}
	return true
}
