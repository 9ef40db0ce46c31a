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
	"bytes"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/syncutil"
)

// PropertyName is the name of the single settable property.
const PropertyName = "bytes"

// Property caches the last accepted payload.
type Property struct {
	updated time.Time
	value   ByteSequence
	mu      syncutil.RWMutex
}

// Value returns a copy of the cached payload, or nil if nothing has been
// accepted yet.
func (p *Property) Value() ByteSequence {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.value == nil {
		return nil
	}
	return bytes.Clone(p.value)
}

// Updated returns when the cached payload was last accepted.
func (p *Property) Updated() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updated
}

func (p *Property) set(v ByteSequence, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = bytes.Clone(v)
	p.updated = at
}
