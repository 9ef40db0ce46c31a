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
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/wifi"
	"github.com/rs/zerolog/log"
)

// FingerprintAPs is how many of the strongest access points make up a
// fingerprint.
const FingerprintAPs = 2

const macLen = 6

var errBadMAC = errors.New("invalid hardware address")

// ParseMAC decodes six hex octets separated by any non-hex delimiter (or
// none), e.g. "AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff" or "aabb.ccdd.eeff".
func ParseMAC(s string) ([]byte, error) {
	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			digits.WriteRune(r)
		case r == ':', r == '-', r == '.', r == ' ':
		default:
			return nil, fmt.Errorf("%w: %q", errBadMAC, s)
		}
	}
	if digits.Len() != macLen*2 {
		return nil, fmt.Errorf("%w: %q", errBadMAC, s)
	}
	b, err := hex.DecodeString(digits.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadMAC, err)
	}
	return b, nil
}

// EncodeFingerprint concatenates the hardware addresses of the two strongest
// access points, strongest first. Access points with unparseable addresses
// are skipped. A single usable access point yields a 6 byte fingerprint.
func EncodeFingerprint(scan wifi.ScanResult) (ByteSequence, error) {
	if len(scan) == 0 {
		return nil, ErrNoAccessPointsFound
	}

	ranked := slices.Clone(scan)
	slices.SortStableFunc(ranked, func(a, b wifi.AccessPoint) int {
		return b.SignalStrength - a.SignalStrength
	})

	out := make([]byte, 0, FingerprintAPs*macLen)
	used := 0
	for _, ap := range ranked {
		if used == FingerprintAPs {
			break
		}
		mac, err := ParseMAC(ap.MACAddress)
		if err != nil {
			log.Warn().Err(err).Str("ssid", ap.SSID).Msg("skipping access point in fingerprint")
			continue
		}
		out = append(out, mac...)
		used++
	}

	if used == 0 {
		return nil, fmt.Errorf("%w: no usable hardware addresses in %d results",
			ErrNoAccessPointsFound, len(scan))
	}

	return FromBytes(out)
}
