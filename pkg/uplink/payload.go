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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Uplink frame limits enforced by the modem.
const (
	MinPayloadLen = 1
	MaxPayloadLen = 12
)

// ByteSequence is a validated uplink payload of MinPayloadLen to
// MaxPayloadLen bytes. Construct it with one of the Parse functions or
// NewByteSequence.
type ByteSequence []byte

// NewByteSequence validates a list of integers against the frame limits.
func NewByteSequence(values []int) (ByteSequence, error) {
	if len(values) < MinPayloadLen || len(values) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: length %d outside %d-%d",
			ErrInvalidInput, len(values), MinPayloadLen, MaxPayloadLen)
	}
	seq := make(ByteSequence, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: element %d value %d outside 0-255", ErrInvalidInput, i, v)
		}
		seq[i] = byte(v)
	}
	return seq, nil
}

// FromBytes validates raw bytes against the frame limits. The input slice is
// copied.
func FromBytes(b []byte) (ByteSequence, error) {
	if len(b) < MinPayloadLen || len(b) > MaxPayloadLen {
		return nil, fmt.Errorf("%w: length %d outside %d-%d",
			ErrInvalidInput, len(b), MinPayloadLen, MaxPayloadLen)
	}
	return bytes.Clone(b), nil
}

// Parse resolves a raw property value. Values starting with "[" are decoded
// as a JSON list, anything else as a comma or whitespace separated list of
// integers (decimal, or 0x prefixed hex).
func Parse(raw string) (ByteSequence, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		return ParseJSON([]byte(trimmed))
	}
	return ParseText(trimmed)
}

// ParseJSON decodes a JSON list whose elements are integers or strings that
// parse as integers.
func ParseJSON(data []byte) (ByteSequence, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after list", ErrInvalidInput)
	}
	if items == nil {
		return nil, fmt.Errorf("%w: value is not a list", ErrInvalidInput)
	}

	values := make([]int, len(items))
	for i, item := range items {
		var s string
		switch v := item.(type) {
		case json.Number:
			s = v.String()
		case string:
			s = strings.TrimSpace(v)
		default:
			return nil, fmt.Errorf("%w: element %d is not numeric", ErrInvalidInput, i)
		}
		n, err := parseInt(s)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %q is not an integer", ErrInvalidInput, i, s)
		}
		values[i] = n
	}

	return NewByteSequence(values)
}

// ParseText decodes a comma or whitespace separated list of integers.
func ParseText(s string) (ByteSequence, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	values := make([]int, len(fields))
	for i, f := range fields {
		n, err := parseInt(f)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %q is not an integer", ErrInvalidInput, i, f)
		}
		values[i] = n
	}
	return NewByteSequence(values)
}

// parseInt reads a decimal integer, or hex with an explicit 0x prefix.
// Leading zeros are decimal.
func parseInt(s string) (int, error) {
	base := 10
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
		if s[0] == '+' || s[0] == '-' {
			return 0, fmt.Errorf("failed to parse integer: sign after hex prefix")
		}
	}
	n, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse integer: %w", err)
	}
	// huge values are reported as out of range, not truncated
	if n < -1 || n > 256 {
		return -1, nil
	}
	return int(n), nil
}

// Ints returns the payload as a list of integers.
func (b ByteSequence) Ints() []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

// Hex returns the payload as uppercase hex with no separators.
func (b ByteSequence) Hex() string {
	return strings.ToUpper(hex.EncodeToString(b))
}

func (b ByteSequence) String() string {
	return fmt.Sprint(b.Ints())
}

// MarshalJSON encodes the payload as a list of integers rather than base64.
func (b ByteSequence) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(b.Ints())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// UnmarshalJSON accepts the same list form as ParseJSON.
func (b *ByteSequence) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*b = nil
		return nil
	}
	seq, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*b = seq
	return nil
}
