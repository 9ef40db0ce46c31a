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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRemoteIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "192.168.1.10:5000", want: "192.168.1.10"},
		{name: "ipv4 bare", remoteAddr: "192.168.1.10", want: "192.168.1.10"},
		{name: "ipv6 with port", remoteAddr: "[::1]:8090", want: "::1"},
		{name: "garbage", remoteAddr: "not-an-ip", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ip := ParseRemoteIP(tt.remoteAddr)
			if tt.want == "" {
				assert.Nil(t, ip)
				return
			}
			assert.Equal(t, tt.want, ip.String())
		})
	}
}

func TestIPFilter_IsAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		allowed    []string
		want       bool
	}{
		{name: "empty allows all", remoteAddr: "8.8.8.8:1", want: true},
		{name: "exact match", allowed: []string{"10.0.0.5"}, remoteAddr: "10.0.0.5:1234", want: true},
		{name: "exact miss", allowed: []string{"10.0.0.5"}, remoteAddr: "10.0.0.6:1234", want: false},
		{name: "cidr match", allowed: []string{"10.0.0.0/24"}, remoteAddr: "10.0.0.200:1", want: true},
		{name: "cidr miss", allowed: []string{"10.0.0.0/24"}, remoteAddr: "10.0.1.1:1", want: false},
		{name: "entry with port", allowed: []string{"127.0.0.1:8090"}, remoteAddr: "127.0.0.1:50000", want: true},
		{name: "ipv6 loopback", allowed: []string{"::1"}, remoteAddr: "[::1]:50000", want: true},
		{name: "mapped ipv4", allowed: []string{"192.168.0.0/16"}, remoteAddr: "[::ffff:192.168.4.4]:1", want: true},
		{name: "only invalid entries", allowed: []string{"nope"}, remoteAddr: "10.0.0.5:1", want: false},
		{name: "unparseable remote", allowed: []string{"10.0.0.5"}, remoteAddr: "???", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := NewIPFilter(tt.allowed)
			assert.Equal(t, tt.want, f.IsAllowed(tt.remoteAddr))
		})
	}
}

func TestHTTPIPFilterMiddleware(t *testing.T) {
	t.Parallel()

	handler := HTTPIPFilterMiddleware(NewIPFilter([]string{"127.0.0.1"}))(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/things/uplink", http.NoBody)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/things/uplink", http.NoBody)
	req.RemoteAddr = "192.168.1.20:40000"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
