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

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/api/validation"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/uplink"
	"github.com/rs/zerolog/log"
)

// statusForError maps a submission error kind to an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, uplink.ErrInvalidInput),
		errors.Is(err, uplink.ErrNoAccessPointsFound):
		return http.StatusBadRequest
	case errors.Is(err, uplink.ErrChannelBusy):
		return http.StatusConflict
	case uplink.IsHardwareError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func statusText(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("writing response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), models.ErrorResponse{
		Error: err.Error(),
		Kind:  uplink.Kind(err),
	})
}

// decodeSetProperty reads a property write body. Any decoding or validation
// failure is reported as invalid input.
func decodeSetProperty(body []byte) (models.SetPropertyParams, error) {
	var params models.SetPropertyParams
	if err := validation.ValidateAndUnmarshal(body, &params); err != nil {
		return params, fmt.Errorf("%w: %w", uplink.ErrInvalidInput, err)
	}
	return params, nil
}

func (s *Server) handleThing(w http.ResponseWriter, r *http.Request) {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	wsHref := fmt.Sprintf("%s://%s%s", scheme, r.Host, models.SocketPath)
	writeJSON(w, http.StatusOK, models.NewThingDescription(s.cfg.DeviceID(), wsHref))
}

func (s *Server) handleGetProperty(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.PropertyValue{Bytes: s.uplink.Value()})
}

func (s *Server) handlePutProperty(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, fmt.Errorf("%w: reading body: %w", uplink.ErrInvalidInput, err))
		return
	}

	params, err := decodeSetProperty(body)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := s.uplink.Submit(r.Context(), uplink.Explicit(params.Raw()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.PropertyValue{Bytes: payload})
}

func (s *Server) handleFingerprint(w http.ResponseWriter, r *http.Request) {
	requested := s.clock.Now()
	payload, err := s.uplink.Submit(r.Context(), uplink.FromScan())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]models.ActionStatus{
		models.ActionFingerprint: {
			TimeRequested: requested,
			TimeCompleted: s.clock.Now(),
			Status:        "completed",
			Bytes:         payload,
		},
	})
}
