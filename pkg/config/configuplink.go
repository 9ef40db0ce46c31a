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
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	AutoPort        = "auto"
	DefaultBaudRate = 9600

	ScannerIW             = "iw"
	ScannerNetworkManager = "networkmanager"
	ScannerNone           = "none"

	DefaultSettleDelay = 1 * time.Second
	DefaultStepTimeout = 10 * time.Second
	DefaultSendTimeout = 30 * time.Second
)

type Device struct {
	Port     string `toml:"port" validate:"serialport"`
	BaudRate int    `toml:"baud_rate" validate:"omitempty,min=1200,max=115200"`
}

type Uplink struct {
	LockFile    string `toml:"lock_file,omitempty"`
	SettleDelay string `toml:"settle_delay,omitempty" validate:"duration"`
	StepTimeout string `toml:"step_timeout,omitempty" validate:"duration"`
	SendTimeout string `toml:"send_timeout,omitempty" validate:"duration"`
}

type WiFi struct {
	Scanner   string `toml:"scanner" validate:"omitempty,oneof=iw networkmanager none"`
	Interface string `toml:"interface,omitempty"`
}

func (c *Instance) DevicePort() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Device.Port == "" {
		return AutoPort
	}
	return c.vals.Device.Port
}

func (c *Instance) SetDevicePort(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Device.Port = port
}

func (c *Instance) BaudRate() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Device.BaudRate == 0 {
		return DefaultBaudRate
	}
	return c.vals.Device.BaudRate
}

// LockFile returns the channel lock marker path.
func (c *Instance) LockFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Uplink.LockFile == "" {
		return DefaultLockPath()
	}
	return c.vals.Uplink.LockFile
}

func (c *Instance) SettleDelay() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration("settle_delay", c.vals.Uplink.SettleDelay, DefaultSettleDelay)
}

func (c *Instance) StepTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration("step_timeout", c.vals.Uplink.StepTimeout, DefaultStepTimeout)
}

func (c *Instance) SendTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration("send_timeout", c.vals.Uplink.SendTimeout, DefaultSendTimeout)
}

func (c *Instance) WiFiScanner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.WiFi.Scanner == "" {
		return ScannerIW
	}
	return c.vals.WiFi.Scanner
}

func (c *Instance) SetWiFiScanner(name string) error {
	switch name {
	case ScannerIW, ScannerNetworkManager, ScannerNone:
	default:
		return fmt.Errorf("unknown wifi scanner %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.WiFi.Scanner = name
	return nil
}

func (c *Instance) WiFiInterface() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.WiFi.Interface
}

// parseDuration falls back to def for empty or invalid values.
func parseDuration(key, val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", val).Msg("invalid duration, using default")
		return def
	}
	return d
}
