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

	"github.com/stretchr/testify/mock"
)

// MockCommandExecutor is a testify mock for command.Executor. The variadic
// args are matched as a single []string.
//
//	cmd := &MockCommandExecutor{}
//	cmd.On("Output", mock.Anything, "iw", []string{"dev", "wlan0", "scan"}).Return(out, nil)
type MockCommandExecutor struct {
	mock.Mock
}

func (m *MockCommandExecutor) Run(ctx context.Context, name string, args ...string) error {
	called := m.Called(ctx, name, args)
	//nolint:wrapcheck // mock returns
	return called.Error(0)
}

func (m *MockCommandExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	called := m.Called(ctx, name, args)
	out, _ := called.Get(0).([]byte)
	//nolint:wrapcheck // mock returns
	return out, called.Error(1)
}
