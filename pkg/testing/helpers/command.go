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
	"github.com/ZaparooProject/zaparoo-uplink/pkg/testing/mocks"
	"github.com/stretchr/testify/mock"
)

// NewMockCommandExecutor creates a MockCommandExecutor that succeeds with
// empty output by default. Clear ExpectedCalls to replace the defaults:
//
//	cmd := helpers.NewMockCommandExecutor()
//	cmd.ExpectedCalls = nil
//	cmd.On("Output", mock.Anything, "iw", []string{"dev", "wlan0", "scan"}).Return(out, nil)
func NewMockCommandExecutor() *mocks.MockCommandExecutor {
	cmd := &mocks.MockCommandExecutor{}
	cmd.On("Run", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(nil).Maybe()
	cmd.On("Output", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return([]byte{}, nil).Maybe()
	return cmd
}
