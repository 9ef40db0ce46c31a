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

// Package discovery advertises the uplink's Web Thing endpoint over mDNS so
// gateways can find it without manual configuration.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/syncutil"
	"github.com/grandcat/zeroconf"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ServiceType is the DNS-SD type Web Thing gateways browse for.
const ServiceType = "_webthing._tcp"

const (
	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

// virtualInterfacePrefixes are container and VPN interfaces nobody on the
// LAN can reach.
var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

type server interface {
	Shutdown()
}

type registerFunc func(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (server, error)

func zeroconfRegister(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (server, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register: %w", err)
	}
	return srv, nil
}

// filterInterfaces keeps interfaces that are up, multicast-capable, not
// loopback and not virtual.
func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		switch {
		case iface.Flags&net.FlagUp == 0,
			iface.Flags&net.FlagLoopback != 0,
			iface.Flags&net.FlagMulticast == 0,
			isVirtualInterface(iface.Name):
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isVirtualInterface(name string) bool {
	lowerName := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lowerName, prefix) {
			return true
		}
	}
	return false
}

// listenPort extracts the TCP port from an API listen address.
func listenPort(listen string) (int, error) {
	_, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return 0, fmt.Errorf("invalid listen address %q: %w", listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in listen address %q", listen)
	}
	return port, nil
}

// Service advertises the API while it runs. Registration is retried in the
// background when no network is up yet, which is common at boot.
type Service struct {
	clock        clockwork.Clock
	server       server
	cfg          *config.Instance
	register     registerFunc
	interfaces   func() ([]net.Interface, error)
	hostname     func() (string, error)
	cancelFunc   context.CancelFunc
	retryDone    chan struct{}
	instanceName string
	stopped      bool
	mu           syncutil.Mutex
}

func New(cfg *config.Instance) *Service {
	return &Service{
		clock:      clockwork.NewRealClock(),
		cfg:        cfg,
		register:   zeroconfRegister,
		interfaces: net.Interfaces,
		hostname:   os.Hostname,
	}
}

// Start registers the service. It only returns an error for configuration
// problems; network failures start a retry loop bound to ctx.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.DiscoveryEnabled() || !s.cfg.APIEnabled() {
		log.Info().Msg("mDNS discovery disabled by configuration")
		return nil
	}

	port, err := listenPort(s.cfg.APIListen())
	if err != nil {
		return err
	}
	s.instanceName = s.resolveInstanceName()

	if s.tryRegister(port) {
		return nil
	}

	log.Info().
		Dur("retryInterval", retryInterval).
		Dur("maxDuration", maxRetryDuration).
		Msg("mDNS registration failed, retrying in background")

	retryCtx, cancel := context.WithTimeout(ctx, maxRetryDuration)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancelFunc = cancel
	s.retryDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.retryLoop(retryCtx, port)
	}()

	return nil
}

func (s *Service) tryRegister(port int) bool {
	all, err := s.interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("failed to list network interfaces")
		return false
	}
	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		log.Debug().Msg("no suitable network interfaces found for mDNS")
		return false
	}

	ifaceNames := make([]string, len(ifaces))
	for i, iface := range ifaces {
		ifaceNames[i] = iface.Name
	}

	txt := []string{
		"path=" + models.ThingPath,
		"id=" + s.cfg.DeviceID(),
		"version=" + config.AppVersion,
	}

	srv, err := s.register(s.instanceName, ServiceType, "local.", port, txt, ifaces)
	if err != nil {
		log.Debug().Err(err).Msg("mDNS registration attempt failed")
		return false
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		srv.Shutdown()
		return false
	}
	s.server = srv
	s.mu.Unlock()

	log.Info().
		Str("instance", s.instanceName).
		Int("port", port).
		Str("type", ServiceType).
		Strs("interfaces", ifaceNames).
		Msg("mDNS service advertising started")
	return true
}

func (s *Service) retryLoop(ctx context.Context, port int) {
	ticker := s.clock.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if s.tryRegister(port) {
				log.Info().Msg("mDNS registration succeeded after retry")
				return
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log.Warn().Msg("mDNS registration retry timed out, discovery will not be available")
			}
			return
		}
	}
}

// Stop sends goodbye packets and ends any retry loop. Safe to call more
// than once.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancelFunc, s.retryDone
	s.cancelFunc = nil
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if srv != nil {
		log.Debug().Msg("stopping mDNS service advertising")
		srv.Shutdown()
	}
}

// InstanceName returns the advertised name, empty before Start.
func (s *Service) InstanceName() string {
	return s.instanceName
}

// resolveInstanceName prefers the configured name, then the hostname.
func (s *Service) resolveInstanceName() string {
	if name := s.cfg.DiscoveryInstanceName(); name != "" {
		return name
	}

	hostname, err := s.hostname()
	if err != nil || hostname == "" {
		log.Warn().Err(err).Msg("failed to get hostname, using fallback")
		deviceID := s.cfg.DeviceID()
		if len(deviceID) >= 8 {
			return config.AppName + "-" + deviceID[:8]
		}
		return config.AppName
	}
	return hostname
}
