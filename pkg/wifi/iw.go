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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/command"
	"github.com/rs/zerolog/log"
)

// DefaultInterface is the wireless interface scanned when none is set.
const DefaultInterface = "wlan0"

// IWScanner scans with the iw tool. It needs CAP_NET_ADMIN to trigger a
// fresh scan.
type IWScanner struct {
	executor command.Executor
	iface    string
	binary   string
}

// NewIWScanner returns a scanner for iface. A nil executor runs real commands.
func NewIWScanner(executor command.Executor, iface string) *IWScanner {
	if executor == nil {
		executor = &command.RealExecutor{}
	}
	if iface == "" {
		iface = DefaultInterface
	}
	return &IWScanner{executor: executor, iface: iface, binary: "iw"}
}

func (s *IWScanner) Scan(ctx context.Context) (ScanResult, error) {
	out, err := s.executor.Output(ctx, s.binary, "dev", s.iface, "scan")
	if err != nil {
		return nil, fmt.Errorf("iw scan on %s failed: %w", s.iface, err)
	}
	aps, err := parseIWScan(out)
	if err != nil {
		return nil, fmt.Errorf("failed to read iw scan output on %s: %w", s.iface, err)
	}
	log.Debug().Str("iface", s.iface).Int("count", len(aps)).Msg("wifi: iw scan parsed")
	return Rank(aps), nil
}

// parseIWScan reads the BSS blocks of `iw dev <iface> scan` output:
//
//	BSS aa:bb:cc:dd:ee:ff(on wlan0) -- associated
//		freq: 2412
//		signal: -45.00 dBm
//		SSID: home
func parseIWScan(out []byte) ([]AccessPoint, error) {
	var aps []AccessPoint
	var cur *AccessPoint

	flush := func() {
		if cur != nil && cur.MACAddress != "" {
			aps = append(aps, *cur)
		}
		cur = nil
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "BSS ") {
			flush()
			cur = &AccessPoint{MACAddress: bssAddress(line)}
			continue
		}
		if cur == nil {
			continue
		}

		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "freq":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				cur.Band = BandForFrequency(int(f))
			}
		case "signal":
			dbm, _, _ := strings.Cut(value, " ")
			if f, err := strconv.ParseFloat(dbm, 64); err == nil {
				cur.SignalStrength = int(math.Round(f))
			}
		case "SSID":
			cur.SSID = value
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan iw output: %w", err)
	}
	flush()

	return aps, nil
}

// bssAddress extracts the address from a "BSS aa:bb:..(on wlan0)" line.
func bssAddress(line string) string {
	addr := strings.TrimPrefix(line, "BSS ")
	if i := strings.IndexAny(addr, "( "); i >= 0 {
		addr = addr[:i]
	}
	return strings.TrimSpace(addr)
}
