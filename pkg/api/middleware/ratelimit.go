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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// RequestsPerMinute is low because every accepted write can tie up the
	// modem for several seconds.
	RequestsPerMinute = 30
	BurstSize         = 5

	cleanupInterval = 5 * time.Minute
	maxEntryAge     = 10 * time.Minute
)

// IPRateLimiter manages rate limiters per IP address for both HTTP and WebSocket
type IPRateLimiter struct {
	clock    clockwork.Clock
	limiters map[string]*rateLimiterEntry
	mu       syncutil.RWMutex
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a new IP-based rate limiter.
func NewIPRateLimiter() *IPRateLimiter {
	return NewIPRateLimiterWithClock(clockwork.NewRealClock())
}

// NewIPRateLimiterWithClock creates a rate limiter whose entry ages are
// measured with clock.
func NewIPRateLimiterWithClock(clock clockwork.Clock) *IPRateLimiter {
	return &IPRateLimiter{
		clock:    clock,
		limiters: make(map[string]*rateLimiterEntry),
	}
}

// GetLimiter returns the rate limiter for the given IP
func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	entry, exists := rl.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{
			limiter:  rate.NewLimiter(rate.Limit(float64(RequestsPerMinute)/60.0), BurstSize),
			lastSeen: now,
		}
		rl.limiters[ip] = entry
	} else {
		entry.lastSeen = now
	}

	return entry.limiter
}

// Len returns the number of tracked addresses.
func (rl *IPRateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// Cleanup removes old entries that haven't been seen recently
func (rl *IPRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > maxEntryAge {
			delete(rl.limiters, ip)
			log.Debug().Str("ip", ip).Msg("removed stale rate limiter")
		}
	}
}

// StartCleanup starts a goroutine to periodically clean up old rate limiters.
// The cleanup goroutine will stop when the provided context is cancelled.
func (rl *IPRateLimiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := rl.clock.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// HTTPRateLimitMiddleware creates an HTTP rate limiting middleware
func HTTPRateLimitMiddleware(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := ParseRemoteIP(r.RemoteAddr).String()
			if !limiter.GetLimiter(host).Allow() {
				log.Warn().
					Str("ip", host).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("HTTP rate limit exceeded")

				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WebSocketRateLimitHandler wraps a WebSocket message handler with rate
// limiting. Rejected messages get a Web Thing error message back.
func WebSocketRateLimitHandler(
	limiter *IPRateLimiter,
	handler func(*melody.Session, []byte),
) func(*melody.Session, []byte) {
	return func(session *melody.Session, msg []byte) {
		host := ParseRemoteIP(session.Request.RemoteAddr).String()
		if !limiter.GetLimiter(host).Allow() {
			log.Warn().
				Str("ip", host).
				Int("msg_size", len(msg)).
				Msg("WebSocket rate limit exceeded")

			errorMsg, err := rateLimitMessage()
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal rate limit error")
				return
			}
			if err := session.Write(errorMsg); err != nil {
				log.Error().Err(err).Msg("failed to send rate limit error")
			}
			return
		}

		handler(session, msg)
	}
}

func rateLimitMessage() ([]byte, error) {
	type errorData struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	type errorMessage struct {
		MessageType string    `json:"messageType"`
		Data        errorData `json:"data"`
	}
	data, err := json.Marshal(errorMessage{
		MessageType: "error",
		Data: errorData{
			Status:  fmt.Sprintf("%d %s", http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests)),
			Message: "Rate limit exceeded",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error message: %w", err)
	}
	return data, nil
}
