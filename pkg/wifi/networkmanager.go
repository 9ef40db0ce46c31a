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

package wifi

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	nmService          = "org.freedesktop.NetworkManager"
	nmPath             = "/org/freedesktop/NetworkManager"
	nmDeviceIface      = "org.freedesktop.NetworkManager.Device"
	nmWirelessIface    = "org.freedesktop.NetworkManager.Device.Wireless"
	nmAccessPointIface = "org.freedesktop.NetworkManager.AccessPoint"
	dbusProperties     = "org.freedesktop.DBus.Properties"

	// NM_DEVICE_TYPE_WIFI
	nmDeviceTypeWifi uint32 = 2
)

var ErrNoWirelessDevice = errors.New("no wireless device found")

// nmClient is the slice of the NetworkManager D-Bus API the scanner uses.
type nmClient interface {
	Devices(ctx context.Context) ([]dbus.ObjectPath, error)
	DeviceProperties(ctx context.Context, dev dbus.ObjectPath) (map[string]dbus.Variant, error)
	AccessPoints(ctx context.Context, dev dbus.ObjectPath) ([]dbus.ObjectPath, error)
	AccessPointProperties(ctx context.Context, ap dbus.ObjectPath) (map[string]dbus.Variant, error)
}

// NetworkManagerScanner reads the access points NetworkManager already knows
// about over the system bus.
type NetworkManagerScanner struct {
	connect func() (nmClient, func() error, error)
	iface   string
}

// NewNetworkManagerScanner returns a scanner for iface, or for the first
// Wi-Fi device if iface is empty.
func NewNetworkManagerScanner(iface string) *NetworkManagerScanner {
	return &NetworkManagerScanner{iface: iface, connect: connectSystemBus}
}

func (s *NetworkManagerScanner) Scan(ctx context.Context) (ScanResult, error) {
	client, closeFn, err := s.connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if err := closeFn(); err != nil {
			log.Debug().Err(err).Msg("wifi: failed to close system bus connection")
		}
	}()

	dev, err := s.findDevice(ctx, client)
	if err != nil {
		return nil, err
	}

	paths, err := client.AccessPoints(ctx, dev)
	if err != nil {
		return nil, fmt.Errorf("failed to list access points: %w", err)
	}

	aps := make([]AccessPoint, 0, len(paths))
	for _, p := range paths {
		props, err := client.AccessPointProperties(ctx, p)
		if err != nil {
			// access points come and go between the list and the read
			log.Debug().Err(err).Str("path", string(p)).Msg("wifi: skipping access point")
			continue
		}
		aps = append(aps, apFromProps(props))
	}

	log.Debug().Str("device", string(dev)).Int("count", len(aps)).Msg("wifi: networkmanager scan read")
	return Rank(aps), nil
}

func (s *NetworkManagerScanner) findDevice(ctx context.Context, client nmClient) (dbus.ObjectPath, error) {
	devices, err := client.Devices(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list network devices: %w", err)
	}

	for _, dev := range devices {
		props, err := client.DeviceProperties(ctx, dev)
		if err != nil {
			log.Debug().Err(err).Str("path", string(dev)).Msg("wifi: skipping device")
			continue
		}
		devType, _ := props["DeviceType"].Value().(uint32)
		if devType != nmDeviceTypeWifi {
			continue
		}
		name, _ := props["Interface"].Value().(string)
		if s.iface == "" || s.iface == name {
			return dev, nil
		}
	}

	if s.iface != "" {
		return "", fmt.Errorf("%w: %s", ErrNoWirelessDevice, s.iface)
	}
	return "", ErrNoWirelessDevice
}

// apFromProps converts AccessPoint properties. Strength is a 0-100 percentage.
func apFromProps(props map[string]dbus.Variant) AccessPoint {
	ssid, _ := props["Ssid"].Value().([]byte)
	hw, _ := props["HwAddress"].Value().(string)
	strength, _ := props["Strength"].Value().(byte)
	freq, _ := props["Frequency"].Value().(uint32)
	return AccessPoint{
		SSID:           string(ssid),
		MACAddress:     hw,
		SignalStrength: int(strength),
		Band:           BandForFrequency(int(freq)),
	}
}

type dbusClient struct {
	conn *dbus.Conn
}

func connectSystemBus() (nmClient, func() error, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, nil, fmt.Errorf("system bus: %w", err)
	}
	return &dbusClient{conn: conn}, conn.Close, nil
}

func (c *dbusClient) Devices(ctx context.Context) ([]dbus.ObjectPath, error) {
	var devices []dbus.ObjectPath
	obj := c.conn.Object(nmService, nmPath)
	if err := obj.CallWithContext(ctx, nmService+".GetDevices", 0).Store(&devices); err != nil {
		return nil, fmt.Errorf("GetDevices: %w", err)
	}
	return devices, nil
}

func (c *dbusClient) DeviceProperties(ctx context.Context, dev dbus.ObjectPath) (map[string]dbus.Variant, error) {
	return c.getAll(ctx, dev, nmDeviceIface)
}

func (c *dbusClient) AccessPoints(ctx context.Context, dev dbus.ObjectPath) ([]dbus.ObjectPath, error) {
	var aps []dbus.ObjectPath
	obj := c.conn.Object(nmService, dev)
	if err := obj.CallWithContext(ctx, nmWirelessIface+".GetAllAccessPoints", 0).Store(&aps); err != nil {
		return nil, fmt.Errorf("GetAllAccessPoints: %w", err)
	}
	return aps, nil
}

func (c *dbusClient) AccessPointProperties(
	ctx context.Context,
	ap dbus.ObjectPath,
) (map[string]dbus.Variant, error) {
	return c.getAll(ctx, ap, nmAccessPointIface)
}

func (c *dbusClient) getAll(ctx context.Context, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, error) {
	props := make(map[string]dbus.Variant)
	obj := c.conn.Object(nmService, path)
	if err := obj.CallWithContext(ctx, dbusProperties+".GetAll", 0, iface).Store(&props); err != nil {
		return nil, fmt.Errorf("GetAll %s on %s: %w", iface, path, err)
	}
	return props, nil
}
