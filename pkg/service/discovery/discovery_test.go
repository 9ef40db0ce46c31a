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

package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	lanIface = net.Interface{Name: "eth0", Flags: net.FlagUp | net.FlagMulticast}
	errNoNet = errors.New("network is unreachable")
)

type fakeServer struct {
	shutdowns int
	mu        syncutil.Mutex
}

func (f *fakeServer) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
}

func (f *fakeServer) Shutdowns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

type registration struct {
	instance string
	service  string
	text     []string
	ifaces   []string
	port     int
}

type fakeRegistrar struct {
	srv      *fakeServer
	regs     []registration
	failures int
	mu       syncutil.Mutex
}

func (f *fakeRegistrar) register(
	instance, service, _ string,
	port int,
	text []string,
	ifaces []net.Interface,
) (server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}
	f.regs = append(f.regs, registration{
		instance: instance, service: service, port: port, text: text, ifaces: names,
	})
	if f.failures > 0 {
		f.failures--
		return nil, errNoNet
	}
	return f.srv, nil
}

func (f *fakeRegistrar) Registrations() []registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registration(nil), f.regs...)
}

func newTestService(cfg *config.Instance, reg *fakeRegistrar, clock clockwork.Clock) *Service {
	s := New(cfg)
	s.clock = clock
	s.register = reg.register
	s.interfaces = func() ([]net.Interface, error) {
		return []net.Interface{lanIface, {Name: "docker0", Flags: net.FlagUp | net.FlagMulticast}}, nil
	}
	s.hostname = func() (string, error) { return "pantry", nil }
	return s
}

func TestServiceType(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "_webthing._tcp", ServiceType)
}

func TestFilterInterfaces(t *testing.T) {
	t.Parallel()

	ifaces := []net.Interface{
		lanIface,
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback | net.FlagMulticast},
		{Name: "wlan0", Flags: net.FlagMulticast},
		{Name: "ppp0", Flags: net.FlagUp},
		{Name: "veth1234", Flags: net.FlagUp | net.FlagMulticast},
		{Name: "WG0", Flags: net.FlagUp | net.FlagMulticast},
		{Name: "wlan1", Flags: net.FlagUp | net.FlagMulticast},
	}

	got := filterInterfaces(ifaces)
	names := make([]string, len(got))
	for i, iface := range got {
		names[i] = iface.Name
	}
	assert.Equal(t, []string{"eth0", "wlan1"}, names)
}

func TestListenPort(t *testing.T) {
	t.Parallel()

	port, err := listenPort(":8090")
	require.NoError(t, err)
	assert.Equal(t, 8090, port)

	port, err = listenPort("127.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, 9000, port)

	_, err = listenPort("8090")
	require.Error(t, err)
	_, err = listenPort(":0")
	require.Error(t, err)
	_, err = listenPort(":http")
	require.Error(t, err)
}

func TestStart_Registers(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistrar{srv: &fakeServer{}}
	s := newTestService(&config.Instance{}, reg, clockwork.NewFakeClock())

	require.NoError(t, s.Start(context.Background()))

	regs := reg.Registrations()
	require.Len(t, regs, 1)
	assert.Equal(t, "pantry", regs[0].instance)
	assert.Equal(t, ServiceType, regs[0].service)
	assert.Equal(t, 8090, regs[0].port)
	assert.Equal(t, []string{"eth0"}, regs[0].ifaces)
	assert.Contains(t, regs[0].text, "path=/things/uplink")
	assert.Equal(t, "pantry", s.InstanceName())

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, reg.srv.Shutdowns())
}

func TestStart_Disabled(t *testing.T) {
	t.Parallel()

	cfg := &config.Instance{}
	cfg.SetDiscoveryEnabled(false)
	reg := &fakeRegistrar{srv: &fakeServer{}}
	s := newTestService(cfg, reg, clockwork.NewFakeClock())

	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, reg.Registrations())

	cfg.SetDiscoveryEnabled(true)
	cfg.SetAPIEnabled(false)
	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, reg.Registrations())
}

func TestStart_BadListen(t *testing.T) {
	t.Parallel()

	cfg := &config.Instance{}
	cfg.SetAPIListen("nope")
	s := newTestService(cfg, &fakeRegistrar{}, clockwork.NewFakeClock())

	require.Error(t, s.Start(context.Background()))
}

func TestStart_RetriesUntilNetworkUp(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	reg := &fakeRegistrar{srv: &fakeServer{}, failures: 1}
	s := newTestService(&config.Instance{}, reg, clock)

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	require.Len(t, reg.Registrations(), 1)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(retryInterval)

	require.Eventually(t, func() bool {
		return len(reg.Registrations()) == 2
	}, time.Second, time.Millisecond)

	s.Stop()
	assert.Equal(t, 1, reg.srv.Shutdowns())
}

func TestStop_EndsRetryLoop(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistrar{srv: &fakeServer{}, failures: 100}
	s := newTestService(&config.Instance{}, reg, clockwork.NewFakeClock())

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	assert.Len(t, reg.Registrations(), 1)
	assert.Equal(t, 0, reg.srv.Shutdowns())
}

func TestResolveInstanceName(t *testing.T) {
	t.Parallel()

	cfg := &config.Instance{}
	s := New(cfg)
	s.hostname = func() (string, error) { return "", errors.New("no hostname") }
	assert.Equal(t, config.AppName, s.resolveInstanceName())

	s.hostname = func() (string, error) { return "kitchen", nil }
	assert.Equal(t, "kitchen", s.resolveInstanceName())

	cfg.SetDiscoveryInstanceName("attic")
	assert.Equal(t, "attic", s.resolveInstanceName())
}
