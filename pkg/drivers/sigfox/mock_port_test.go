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

package sigfox

import (
	"errors"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/syncutil"
	"go.bug.st/serial"
)

// mockPort is a scripted modem. Writes are answered from replies, keyed by
// the command line without its terminator.
type mockPort struct {
	timeoutErr error
	closeErr   error
	readErr    error
	resetErr   error
	replies    map[string]string
	written    []string
	readData   []byte
	// statusFailures is how many status polls fail before the port answers
	statusFailures int
	resets         int
	shortWrite     bool
	closed         bool
	mu             syncutil.Mutex
}

func newMockPort(replies map[string]string) *mockPort {
	if replies == nil {
		replies = map[string]string{}
	}
	return &mockPort{replies: replies}
}

// okModem answers AT and any frame with OK.
func okModem() *mockPort {
	p := newMockPort(map[string]string{CmdAttention: "\r\nOK\r\n"})
	p.replies["*"] = "\r\nOK\r\n"
	return p
}

func (m *mockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errors.New("port closed")
	}
	if m.readErr != nil {
		err := m.readErr
		m.mu.Unlock()
		return 0, err
	}
	if len(m.readData) == 0 {
		m.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	}
	n := copy(p, m.readData)
	m.readData = m.readData[n:]
	m.mu.Unlock()
	return n, nil
}

func (m *mockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("port closed")
	}
	cmd := strings.TrimSuffix(string(p), CommandTerminator)
	m.written = append(m.written, cmd)
	if m.shortWrite {
		return len(p) - 1, nil
	}
	reply, ok := m.replies[cmd]
	if !ok && strings.HasPrefix(cmd, CmdSendFrame) {
		reply = m.replies["*"]
	}
	m.readData = append(m.readData, reply...)
	return len(p), nil
}

func (m *mockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.closeErr
}

func (m *mockPort) SetReadTimeout(time.Duration) error {
	return m.timeoutErr
}

func (m *mockPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.readData = nil
	m.resets++
	return nil
}

func (m *mockPort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusFailures > 0 {
		m.statusFailures--
		return nil, errors.New("input/output error")
	}
	return &serial.ModemStatusBits{DSR: true, CTS: true}, nil
}

func (m *mockPort) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.written...)
}

func (m *mockPort) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// portFactory returns a SerialPortFactory serving ports by path.
func portFactory(ports map[string]*mockPort) SerialPortFactory {
	return func(path string, _ *serial.Mode) (SerialPort, error) {
		p, ok := ports[path]
		if !ok {
			return nil, errors.New("no such file or directory")
		}
		return p, nil
	}
}
