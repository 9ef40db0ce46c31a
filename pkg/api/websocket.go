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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/uplink"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

func sendMessage(session *melody.Session, messageType string, data any) {
	msg, err := newMessage(messageType, data)
	if err != nil {
		log.Error().Err(err).Msg("building websocket message")
		return
	}
	if err := session.Write(msg); err != nil {
		log.Error().Err(err).Str("type", messageType).Msg("sending websocket message")
	}
}

func sendError(session *melody.Session, status int, err error) {
	sendMessage(session, models.MessageError, models.ErrorData{
		Status:  statusText(status),
		Message: err.Error(),
		Kind:    uplink.Kind(err),
	})
}

// handleWSConnect sends the current value so new clients start in sync.
func (s *Server) handleWSConnect(session *melody.Session) {
	if v := s.uplink.Value(); v != nil {
		sendMessage(session, models.MessagePropertyStatus, models.PropertyValue{Bytes: v})
	}
}

// handleWSMessage accepts setProperty and requestAction messages. Results
// reach every client through Broadcast, so only errors are answered here.
func (s *Server) handleWSMessage(session *melody.Session, msg []byte) {
	// heartbeat
	if bytes.Equal(msg, []byte("ping")) {
		if err := session.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
		return
	}

	var m models.Message
	if err := json.Unmarshal(msg, &m); err != nil {
		sendError(session, http.StatusBadRequest, fmt.Errorf("%w: %w", uplink.ErrInvalidInput, err))
		return
	}

	ctx, cancel := context.WithTimeout(session.Request.Context(), config.APIRequestTimeout)
	defer cancel()

	switch m.MessageType {
	case models.MessageSetProperty:
		params, err := decodeSetProperty(m.Data)
		if err != nil {
			sendError(session, http.StatusBadRequest, err)
			return
		}
		if _, err := s.uplink.Submit(ctx, uplink.Explicit(params.Raw())); err != nil {
			sendError(session, statusForError(err), err)
		}
	case models.MessageRequestAction:
		var actions map[string]json.RawMessage
		if err := json.Unmarshal(m.Data, &actions); err != nil {
			sendError(session, http.StatusBadRequest, fmt.Errorf("%w: %w", uplink.ErrInvalidInput, err))
			return
		}
		if _, ok := actions[models.ActionFingerprint]; !ok {
			sendError(session, http.StatusBadRequest, fmt.Errorf("%w: unknown action", uplink.ErrInvalidInput))
			return
		}
		if _, err := s.uplink.Submit(ctx, uplink.FromScan()); err != nil {
			sendError(session, statusForError(err), err)
		}
	default:
		log.Debug().Str("type", m.MessageType).Msg("ignoring websocket message")
		sendError(session, http.StatusBadRequest,
			fmt.Errorf("%w: unsupported message type %q", uplink.ErrInvalidInput, m.MessageType))
	}
}
