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

// Package wifi provides access point scanning used to build location
// fingerprints. Scanners return results ranked strongest first and
// restricted to the 2.4GHz band.
package wifi

import (
	"context"
	"slices"
)

// Band is the radio band an access point was observed on.
type Band int

const (
	BandUnknown Band = iota
	Band24GHz
)

// 2.4GHz band limits in MHz, inclusive.
const (
	Band24MinMHz = 2400
	Band24MaxMHz = 2500
)

func (b Band) String() string {
	switch b {
	case Band24GHz:
		return "2.4GHz"
	default:
		return "unknown"
	}
}

// BandForFrequency maps a frequency in MHz to its band.
func BandForFrequency(mhz int) Band {
	if mhz >= Band24MinMHz && mhz <= Band24MaxMHz {
		return Band24GHz
	}
	return BandUnknown
}

// AccessPoint is a single discovered radio. SignalStrength units depend on the
// scanner (dBm for iw, percent for NetworkManager) but higher is always
// stronger.
type AccessPoint struct {
	SSID           string `json:"ssid"`
	MACAddress     string `json:"macAddress"`
	Band           Band   `json:"-"`
	SignalStrength int    `json:"signalStrength"`
}

// ScanResult is a list of access points ordered strongest first.
type ScanResult []AccessPoint

// Scanner performs a Wi-Fi scan.
type Scanner interface {
	Scan(ctx context.Context) (ScanResult, error)
}

// Rank drops access points outside the 2.4GHz band and sorts the rest by
// descending signal strength. Equal strengths keep their scan order.
func Rank(aps []AccessPoint) ScanResult {
	ranked := make(ScanResult, 0, len(aps))
	for _, ap := range aps {
		if ap.Band != Band24GHz {
			continue
		}
		ranked = append(ranked, ap)
	}
	slices.SortStableFunc(ranked, func(a, b AccessPoint) int {
		return b.SignalStrength - a.SignalStrength
	})
	return ranked
}
