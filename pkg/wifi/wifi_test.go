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
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBandForFrequency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mhz  int
		want Band
	}{
		{mhz: 2412, want: Band24GHz},
		{mhz: 2484, want: Band24GHz},
		{mhz: 2400, want: Band24GHz},
		{mhz: 2500, want: Band24GHz},
		{mhz: 2399, want: BandUnknown},
		{mhz: 5180, want: BandUnknown},
		{mhz: 0, want: BandUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, BandForFrequency(tt.mhz), "%d MHz", tt.mhz)
	}
	assert.Equal(t, "2.4GHz", Band24GHz.String())
	assert.Equal(t, "unknown", BandUnknown.String())
}

func TestRank(t *testing.T) {
	t.Parallel()

	aps := []AccessPoint{
		{SSID: "weak", SignalStrength: -80, Band: Band24GHz},
		{SSID: "five", SignalStrength: -20, Band: BandUnknown},
		{SSID: "strong", SignalStrength: -40, Band: Band24GHz},
		{SSID: "tie-a", SignalStrength: -60, Band: Band24GHz},
		{SSID: "tie-b", SignalStrength: -60, Band: Band24GHz},
	}

	got := Rank(aps)
	ssids := make([]string, 0, len(got))
	for _, ap := range got {
		ssids = append(ssids, ap.SSID)
	}
	assert.Equal(t, []string{"strong", "tie-a", "tie-b", "weak"}, ssids)
	assert.Equal(t, "weak", aps[0].SSID, "input must not be reordered")
}

func TestRank_Empty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Rank(nil))
	assert.NotNil(t, Rank(nil))
}

func TestRank_Properties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		aps := rapid.SliceOf(rapid.Custom(func(t *rapid.T) AccessPoint {
			return AccessPoint{
				SignalStrength: rapid.IntRange(-100, 0).Draw(t, "signal"),
				Band:           Band(rapid.IntRange(0, 1).Draw(t, "band")),
			}
		})).Draw(t, "aps")

		got := Rank(aps)
		for i, ap := range got {
			if ap.Band != Band24GHz {
				t.Fatalf("non 2.4GHz access point at %d", i)
			}
			if i > 0 && got[i-1].SignalStrength < ap.SignalStrength {
				t.Fatalf("not descending at %d", i)
			}
		}
	})
}
