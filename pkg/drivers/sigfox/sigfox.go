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

// Package sigfox drives a Sigfox radio modem speaking the AT command set
// over a UART.
package sigfox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/uplink"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

var (
	ErrModuleError  = errors.New("module returned ERROR")
	ErrShortWrite   = errors.New("short write to serial port")
	ErrLineTooLong  = errors.New("response line too long")
	ErrNoModemFound = errors.New("no sigfox modem found")
)

// Driver owns one open serial connection to a modem.
type Driver struct {
	clock   clockwork.Clock
	port    SerialPort
	path    string
	pending []byte
}

// Open connects to the modem at path. clock drives readiness polling; nil
// uses the real clock.
func Open(path string, mode *serial.Mode, factory SerialPortFactory, clock clockwork.Clock) (*Driver, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if factory == nil {
		factory = DefaultSerialPortFactory
	}
	if mode == nil {
		mode = DefaultMode(0)
	}

	port, err := factory(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		if closeErr := port.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Str("path", path).Msg("sigfox: failed to close port")
		}
		return nil, fmt.Errorf("failed to set read timeout on serial port: %w", err)
	}

	log.Debug().Str("path", path).Int("baud", mode.BaudRate).Msg("sigfox: port opened")
	return &Driver{clock: clock, port: port, path: path}, nil
}

// NewFactory returns a driver factory for the pipeline. A port of AutoPort
// or "" probes the attached serial devices for a modem.
func NewFactory(baud int, portFactory SerialPortFactory, clock clockwork.Clock) uplink.DriverFactory {
	mode := DefaultMode(baud)
	return func(ctx context.Context, port string) (uplink.Driver, error) {
		if port == "" || port == AutoPort {
			devices, err := helpers.GetSerialDeviceList()
			if err != nil {
				return nil, fmt.Errorf("failed to list serial devices: %w", err)
			}
			port = Detect(ctx, devices, mode, portFactory)
			if port == "" {
				return nil, ErrNoModemFound
			}
		}
		d, err := Open(port, mode, portFactory, clock)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Path returns the serial device path.
func (d *Driver) Path() string {
	return d.path
}

// WaitPortReady polls the modem status lines until the port answers, then
// discards anything the modem printed while booting.
func (d *Driver) WaitPortReady(ctx context.Context) error {
	ticker := d.clock.NewTicker(PollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		bits, err := d.port.GetModemStatusBits()
		if err == nil && bits != nil {
			log.Debug().
				Str("path", d.path).
				Bool("dsr", bits.DSR).
				Bool("cts", bits.CTS).
				Msg("sigfox: port ready")
			if err := d.port.ResetInputBuffer(); err != nil {
				return fmt.Errorf("failed to flush input buffer: %w", err)
			}
			d.pending = nil
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("port %s not ready: %w: %w", d.path, ctx.Err(), lastErr)
			}
			return fmt.Errorf("port %s not ready: %w", d.path, ctx.Err())
		case <-ticker.Chan():
		}
	}
}

// CheckModuleIsAlive sends AT and expects OK.
func (d *Driver) CheckModuleIsAlive(ctx context.Context) error {
	if _, err := d.command(ctx, CmdAttention); err != nil {
		return fmt.Errorf("liveness check failed: %w", err)
	}
	return nil
}

// SendBytes transmits one uplink frame. The modem accepts a frame whole or
// not at all, so the count is either len(payload) or zero.
func (d *Driver) SendBytes(ctx context.Context, payload uplink.ByteSequence) (int, error) {
	if len(payload) == 0 {
		return 0, nil
	}
	if _, err := d.command(ctx, CmdSendFrame+payload.Hex()); err != nil {
		return 0, fmt.Errorf("frame not sent: %w", err)
	}
	return len(payload), nil
}

// Close closes the serial port.
func (d *Driver) Close() error {
	if err := d.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	log.Debug().Str("path", d.path).Msg("sigfox: port closed")
	return nil
}

// command writes cmd and waits for a final result code. Intermediate lines
// are returned.
func (d *Driver) command(ctx context.Context, cmd string) ([]string, error) {
	line := []byte(cmd + CommandTerminator)
	n, err := d.port.Write(line)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", cmd, err)
	}
	if n != len(line) {
		return nil, fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(line))
	}
	log.Debug().Str("path", d.path).Str("cmd", cmd).Msg("sigfox: sent command")

	var info []string
	for {
		resp, err := d.readLine(ctx)
		if err != nil {
			return info, err
		}
		switch {
		case resp == RespOK:
			return info, nil
		case resp == RespError:
			return info, ErrModuleError
		case resp == cmd:
			// echo enabled
		default:
			info = append(info, resp)
		}
	}
}

// readLine returns the next non-empty line from the modem.
func (d *Driver) readLine(ctx context.Context) (string, error) {
	buf := make([]byte, 64)
	for {
		if i := bytes.IndexByte(d.pending, '\n'); i >= 0 {
			line := strings.TrimSpace(string(d.pending[:i]))
			d.pending = d.pending[i+1:]
			if line == "" {
				continue
			}
			return line, nil
		}
		if len(d.pending) > maxLineLength {
			d.pending = nil
			return "", ErrLineTooLong
		}

		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("waiting for response: %w", err)
		}

		n, err := d.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("failed to read from serial port: %w", err)
		}
		// n == 0 is a read timeout
		d.pending = append(d.pending, buf[:n]...)
	}
}
