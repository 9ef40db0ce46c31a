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

package helpers

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"go.bug.st/serial"
)

const udevadmPath = "/usr/bin/udevadm"

// Device name prefixes under /dev that a USB or board UART modem shows up as.
var linuxSerialPrefixes = []string{"ttyUSB", "ttyACM", "ttyAMA", "serial"}

type usbID struct {
	Vid string
	Pid string
}

// Devices that misbehave when probed with AT commands.
var ignoreDevices = func() []usbID {
	// Sinden Lightgun
	ids := []usbID{{Vid: "16c0", Pid: "0f38"}, {Vid: "16c0", Pid: "0f39"}, {Vid: "16c0", Pid: "0f01"}, {Vid: "16c0", Pid: "0f02"}}
	for _, pid := range []string{"0f38", "0f39", "0f01", "0f02", "1094", "1095", "1096", "1097", "1098", "1099", "109a", "109b", "109c", "109d"} {
		ids = append(ids, usbID{Vid: "16d0", Pid: pid})
	}
	return ids
}()

type serialLister struct {
	fs       afero.Fs
	executor command.Executor
	goos     string
}

// GetSerialDeviceList returns serial ports that may have a modem attached,
// sorted by path.
func GetSerialDeviceList() ([]string, error) {
	l := serialLister{fs: afero.NewOsFs(), executor: &command.RealExecutor{}, goos: runtime.GOOS}
	return l.list()
}

func (l serialLister) list() ([]string, error) {
	switch l.goos {
	case "linux":
		return l.linuxList()
	case "darwin":
		return filteredPortsList(func(p string) bool {
			return strings.HasPrefix(p, "/dev/tty.usbserial") || strings.HasPrefix(p, "/dev/tty.usbmodem")
		})
	case "windows":
		return filteredPortsList(func(p string) bool { return strings.HasPrefix(p, "COM") })
	default:
		return filteredPortsList(func(string) bool { return true })
	}
}

func filteredPortsList(keep func(string) bool) ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports list: %w", err)
	}
	devices := make([]string, 0, len(ports))
	for _, p := range ports {
		if keep(p) {
			devices = append(devices, p)
		}
	}
	return devices, nil
}

func (l serialLister) linuxList() ([]string, error) {
	const dir = "/dev"

	if ok, _ := afero.DirExists(l.fs, dir); !ok {
		return []string{}, nil
	}

	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	devices := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !hasAnyPrefix(e.Name(), linuxSerialPrefixes) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if l.ignored(path) {
			log.Debug().Str("path", path).Msg("skipping ignored serial device")
			continue
		}
		devices = append(devices, path)
	}

	sort.Strings(devices)
	return devices, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ignored reports whether udev identifies path as a device on the ignore
// list. Without udevadm nothing is ignored.
func (l serialLister) ignored(path string) bool {
	if !strings.HasPrefix(path, "/dev/") {
		log.Error().Str("path", path).Msg("invalid device path")
		return true
	}
	if ok, _ := afero.Exists(l.fs, udevadmPath); !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := l.executor.Output(ctx, udevadmPath, "info", "--name="+path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("udevadm failed")
		return false
	}

	var id usbID
	for _, line := range strings.Split(string(out), "\n") {
		if v, ok := strings.CutPrefix(line, "E: ID_VENDOR_ID="); ok {
			id.Vid = strings.ToLower(strings.TrimSpace(v))
		} else if v, ok := strings.CutPrefix(line, "E: ID_MODEL_ID="); ok {
			id.Pid = strings.ToLower(strings.TrimSpace(v))
		}
	}
	if id.Vid == "" || id.Pid == "" {
		return false
	}

	for _, v := range ignoreDevices {
		if v == id {
			return true
		}
	}
	return false
}
