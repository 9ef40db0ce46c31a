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

package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/rs/zerolog/log"
)

// ParseRemoteIP extracts and parses the IP address from a RemoteAddr string (IP:port format).
func ParseRemoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}

func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	ip := ParseRemoteIP(remoteAddr)
	if ip == nil {
		return netip.Addr{}, false
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// IPFilter is an allowlist of addresses and prefixes. An empty filter
// allows everything.
type IPFilter struct {
	prefixes []netip.Prefix
	enabled  bool
}

// NewIPFilter parses entries such as "10.0.0.5", "10.0.0.0/24" or
// "10.0.0.5:8090". Invalid entries are logged and skipped, but still switch
// filtering on so a typo never opens the API to everyone.
func NewIPFilter(allowed []string) *IPFilter {
	f := &IPFilter{enabled: len(allowed) > 0}
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if host, _, err := net.SplitHostPort(entry); err == nil {
			entry = host
		}

		if prefix, err := netip.ParsePrefix(entry); err == nil {
			f.prefixes = append(f.prefixes, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			f.prefixes = append(f.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}

		log.Warn().Str("ip", entry).Msg("invalid IP or CIDR in allowed_ips, skipping")
	}
	return f
}

// IsAllowed checks if a RemoteAddr string is allowed.
func (f *IPFilter) IsAllowed(remoteAddr string) bool {
	if !f.enabled {
		return true
	}

	addr, ok := parseRemoteAddr(remoteAddr)
	if !ok {
		log.Warn().Str("addr", remoteAddr).Msg("failed to parse IP address")
		return false
	}

	for _, prefix := range f.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// HTTPIPFilterMiddleware rejects requests, including WebSocket upgrades,
// from addresses outside the allowlist.
func HTTPIPFilterMiddleware(filter *IPFilter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !filter.IsAllowed(r.RemoteAddr) {
				log.Debug().
					Str("addr", r.RemoteAddr).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("request from blocked IP")

				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
