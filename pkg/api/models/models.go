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

// Package models holds the JSON shapes exchanged with Web Thing clients and
// MQTT subscribers.
package models

import (
	"encoding/json"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/uplink"
)

const (
	ThingPath    = "/things/uplink"
	PropertyPath = ThingPath + "/properties/" + uplink.PropertyName
	ActionPath   = ThingPath + "/actions/" + ActionFingerprint
	SocketPath   = ThingPath + "/ws"

	ActionFingerprint = "fingerprint"
	EventSubmission   = "submission"
)

// Web Thing WebSocket message types.
const (
	MessageSetProperty    = "setProperty"
	MessageRequestAction  = "requestAction"
	MessagePropertyStatus = "propertyStatus"
	MessageActionStatus   = "actionStatus"
	MessageEvent          = "event"
	MessageError          = "error"
)

type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type Items struct {
	Type    string `json:"type"`
	Minimum int    `json:"minimum"`
	Maximum int    `json:"maximum"`
}

type Property struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Items       Items  `json:"items"`
	Links       []Link `json:"links"`
	MinItems    int    `json:"minItems"`
	MaxItems    int    `json:"maxItems"`
}

type Action struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Links       []Link `json:"links"`
}

type Event struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// ThingDescription advertises the uplink as a Web Thing.
type ThingDescription struct {
	Properties  map[string]Property `json:"properties"`
	Actions     map[string]Action   `json:"actions"`
	Events      map[string]Event    `json:"events"`
	Context     string              `json:"@context"`
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Links       []Link              `json:"links"`
}

// NewThingDescription builds the description for a device. wsHref is the
// absolute WebSocket URL clients should subscribe to.
func NewThingDescription(deviceID, wsHref string) ThingDescription {
	return ThingDescription{
		Context:     "https://webthings.io/schemas/",
		ID:          "urn:zaparoo-uplink:" + deviceID,
		Title:       "Sigfox Uplink",
		Description: "Sends up to twelve bytes to Sigfox Cloud",
		Properties: map[string]Property{
			uplink.PropertyName: {
				Type:        "array",
				Title:       "Bytes",
				Description: "Payload to transmit, one to twelve integers from 0 to 255",
				MinItems:    uplink.MinPayloadLen,
				MaxItems:    uplink.MaxPayloadLen,
				Items:       Items{Type: "integer", Minimum: 0, Maximum: 255},
				Links:       []Link{{Rel: "property", Href: PropertyPath}},
			},
		},
		Actions: map[string]Action{
			ActionFingerprint: {
				Title:       "Send Wi-Fi fingerprint",
				Description: "Scans nearby access points and transmits the two strongest MACs",
				Links:       []Link{{Rel: "action", Href: ActionPath}},
			},
		},
		Events: map[string]Event{
			EventSubmission: {
				Title:       "Submission",
				Description: "Outcome of a transmission attempt",
				Type:        "object",
			},
		},
		Links: []Link{
			{Rel: "properties", Href: ThingPath + "/properties"},
			{Rel: "actions", Href: ThingPath + "/actions"},
			{Rel: "alternate", Href: wsHref},
		},
	}
}

// Message is a Web Thing WebSocket message.
type Message struct {
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

type ErrorData struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// ErrorResponse is the body of a failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// PropertyValue is the body of the bytes property resource.
type PropertyValue struct {
	Bytes uplink.ByteSequence `json:"bytes"`
}

// SetPropertyParams accepts either a JSON list or a text list as the value.
type SetPropertyParams struct {
	Bytes json.RawMessage `json:"bytes" validate:"required"`
}

// Raw returns the value in the form the pipeline parses: list literals are
// passed through and strings are unquoted.
func (p SetPropertyParams) Raw() string {
	var s string
	if err := json.Unmarshal(p.Bytes, &s); err == nil {
		return s
	}
	return string(p.Bytes)
}

// ActionStatus reports a completed fingerprint action.
type ActionStatus struct {
	TimeRequested time.Time           `json:"timeRequested"`
	TimeCompleted time.Time           `json:"timeCompleted"`
	Status        string              `json:"status"`
	Bytes         uplink.ByteSequence `json:"bytes,omitempty"`
}

// Submission is the public form of a pipeline event.
type Submission struct {
	Time     time.Time           `json:"time"`
	ID       string              `json:"id"`
	Source   string              `json:"source"`
	Kind     string              `json:"kind,omitempty"`
	Error    string              `json:"error,omitempty"`
	Bytes    uplink.ByteSequence `json:"bytes"`
	Accepted bool                `json:"accepted"`
}

func NewSubmission(ev uplink.Event) Submission {
	s := Submission{
		Time:     ev.Time,
		ID:       ev.ID,
		Source:   string(ev.Source),
		Bytes:    ev.Bytes,
		Accepted: ev.Err == nil,
	}
	if ev.Err != nil {
		s.Kind = ev.Kind()
		s.Error = ev.Err.Error()
	}
	return s
}

const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Outcome is OutcomeAccepted or OutcomeRejected, as used by publisher filters.
func (s Submission) Outcome() string {
	if s.Accepted {
		return OutcomeAccepted
	}
	return OutcomeRejected
}
