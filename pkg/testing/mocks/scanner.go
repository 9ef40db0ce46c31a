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

package mocks

import (
	"context"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/wifi"
	"github.com/stretchr/testify/mock"
)

// MockScanner is a testify mock for wifi.Scanner.
type MockScanner struct {
	mock.Mock
}

// NewMockScanner returns a scanner that reports the given access points.
func NewMockScanner(aps ...wifi.AccessPoint) *MockScanner {
	m := &MockScanner{}
	m.On("Scan", mock.Anything).Return(wifi.ScanResult(aps), nil)
	return m
}

func (m *MockScanner) Scan(ctx context.Context) (wifi.ScanResult, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(wifi.ScanResult)
	//nolint:wrapcheck // mock returns
	return res, args.Error(1)
}
