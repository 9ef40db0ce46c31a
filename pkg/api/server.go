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

// Package api exposes the uplink pipeline as a Web Thing over HTTP and
// WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/api/middleware"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/uplink"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	maxBodySize     = 4 << 10
	shutdownTimeout = 5 * time.Second
)

var defaultAllowedOrigins = []string{"https://*", "http://*"}

// Server is the Web Thing host adapter for a Submitter.
type Server struct {
	clock    clockwork.Clock
	cfg      *config.Instance
	uplink   uplink.Submitter
	ws       *melody.Melody
	limiter  *middleware.IPRateLimiter
	ipFilter *middleware.IPFilter
}

func NewServer(cfg *config.Instance, sub uplink.Submitter) *Server {
	s := &Server{
		clock:    clockwork.NewRealClock(),
		cfg:      cfg,
		uplink:   sub,
		ws:       melody.New(),
		limiter:  middleware.NewIPRateLimiter(),
		ipFilter: middleware.NewIPFilter(cfg.AllowedIPs()),
	}
	s.ws.Upgrader.CheckOrigin = func(*http.Request) bool { return true }
	s.ws.HandleMessage(middleware.WebSocketRateLimitHandler(s.limiter, s.handleWSMessage))
	s.ws.HandleConnect(s.handleWSConnect)
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.HTTPIPFilterMiddleware(s.ipFilter))
	r.Use(chimiddleware.NoCache)

	origins := s.cfg.AllowedOrigins()
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// the socket outlives any request timeout
	r.Get(models.SocketPath, func(w http.ResponseWriter, r *http.Request) {
		if err := s.ws.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.APIRequestTimeout))
		r.Use(middleware.HTTPRateLimitMiddleware(s.limiter))

		r.Get(models.ThingPath, s.handleThing)
		r.Get(models.ThingPath+"/properties", s.handleGetProperty)
		r.Get(models.PropertyPath, s.handleGetProperty)
		r.Put(models.PropertyPath, s.handlePutProperty)
		r.Post(models.ActionPath, s.handleFingerprint)
	})

	return r
}

// Broadcast sends a pipeline event to every WebSocket client. Register it
// with Pipeline.OnEvent.
func (s *Server) Broadcast(ev uplink.Event) {
	sub := models.NewSubmission(ev)

	if sub.Accepted {
		if err := s.broadcastMessage(models.MessagePropertyStatus, models.PropertyValue{Bytes: ev.Bytes}); err != nil {
			log.Error().Err(err).Msg("broadcasting property status")
		}
	}

	event := map[string]any{
		models.EventSubmission: map[string]any{
			"data":      sub,
			"timestamp": sub.Time,
		},
	}
	if err := s.broadcastMessage(models.MessageEvent, event); err != nil {
		log.Error().Err(err).Msg("broadcasting submission event")
	}
}

func (s *Server) broadcastMessage(messageType string, data any) error {
	msg, err := newMessage(messageType, data)
	if err != nil {
		return err
	}
	if err := s.ws.Broadcast(msg); err != nil {
		return fmt.Errorf("failed to broadcast: %w", err)
	}
	return nil
}

// Start serves until ctx is cancelled. A listen failure is returned
// immediately.
func (s *Server) Start(ctx context.Context) error {
	listen := s.cfg.APIListen()
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.limiter.StartCleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("api server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	log.Debug().Msg("closing api server via context cancellation")
	if err := s.ws.Close(); err != nil && !errors.Is(err, melody.ErrClosed) {
		log.Warn().Err(err).Msg("closing websocket sessions")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

func newMessage(messageType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", messageType, err)
	}
	msg, err := json.Marshal(models.Message{MessageType: messageType, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", messageType, err)
	}
	return msg, nil
}
