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
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_Burst(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter()

	rl := limiter.GetLimiter("192.168.1.100")
	for i := range BurstSize {
		assert.True(t, rl.Allow(), "should allow request %d within burst", i+1)
	}
	assert.False(t, rl.Allow(), "should block request beyond burst size")
}

func TestIPRateLimiter_PerIP(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter()

	rl1 := limiter.GetLimiter("192.168.1.100")
	rl2 := limiter.GetLimiter("192.168.1.101")
	assert.NotSame(t, rl1, rl2)
	assert.Same(t, rl1, limiter.GetLimiter("192.168.1.100"))

	for range BurstSize {
		rl1.Allow()
	}
	assert.False(t, rl1.Allow())
	assert.True(t, rl2.Allow())
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiterWithClock(clock)

	limiter.GetLimiter("old.ip")
	clock.Advance(maxEntryAge - time.Minute)
	limiter.GetLimiter("new.ip")
	clock.Advance(2 * time.Minute)

	limiter.Cleanup()

	require.Equal(t, 1, limiter.Len())
	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.Contains(t, limiter.limiters, "new.ip")
	assert.NotContains(t, limiter.limiters, "old.ip")
}

func TestHTTPRateLimitMiddleware(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter()

	calls := 0
	handler := HTTPRateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := range BurstSize + 1 {
		req := httptest.NewRequest(http.MethodPut, "/things/uplink/properties/bytes", http.NoBody)
		req.RemoteAddr = "192.168.1.100:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if i < BurstSize {
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.Contains(t, w.Body.String(), "Too Many Requests")
		}
	}
	assert.Equal(t, BurstSize, calls)

	// a different port on the same host shares the limit
	req := httptest.NewRequest(http.MethodPut, "/things/uplink/properties/bytes", http.NoBody)
	req.RemoteAddr = "192.168.1.100:23456"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitMessage(t *testing.T) {
	t.Parallel()

	msg, err := rateLimitMessage()
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"messageType":"error","data":{"status":"429 Too Many Requests","message":"Rate limit exceeded"}}`,
		string(msg))
}
