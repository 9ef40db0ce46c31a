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
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// ChannelLock is a marker file guarding the serial channel across processes.
// The marker's existence means the channel is held.
type ChannelLock struct {
	fs   afero.Fs
	path string
}

// NewChannelLock returns a lock using the marker at path. A nil fs uses the
// OS filesystem.
func NewChannelLock(fs afero.Fs, path string) *ChannelLock {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ChannelLock{fs: fs, path: path}
}

// Path returns the marker location.
func (l *ChannelLock) Path() string {
	return l.path
}

// Acquire atomically creates the marker. It fails with ErrChannelBusy if the
// marker already exists or cannot be created.
func (l *ChannelLock) Acquire() error {
	f, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s exists", ErrChannelBusy, l.path)
	} else if err != nil {
		return fmt.Errorf("%w: failed to create lock marker %s: %w", ErrChannelBusy, l.path, err)
	}
	if err := f.Close(); err != nil {
		log.Warn().Err(err).Str("path", l.path).Msg("failed to close lock marker")
	}
	return nil
}

// Release removes the marker. A missing marker is not an error.
func (l *ChannelLock) Release() error {
	err := l.fs.Remove(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock marker %s: %w", l.path, err)
	}
	return nil
}

// Held reports whether the marker currently exists.
func (l *ChannelLock) Held() bool {
	exists, err := afero.Exists(l.fs, l.path)
	return err == nil && exists
}

// ClearStale removes a marker left by a previous run that did not exit
// cleanly. Only call this at start-up, before any command is accepted.
func (l *ChannelLock) ClearStale() error {
	if !l.Held() {
		return nil
	}
	log.Warn().Str("path", l.path).Msg("removing stale channel lock")
	return l.Release()
}
