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

// Package telemetry sends error-level log events to Sentry when the user
// opts in with their own DSN.
package telemetry

import (
	"fmt"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers"
	"github.com/getsentry/sentry-go"
	sentryzerolog "github.com/getsentry/sentry-go/zerolog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const flushTimeout = 2 * time.Second

var (
	enabled      bool
	sentryWriter *sentryzerolog.Writer
	closeOnce    sync.Once

	homePathRe    = regexp.MustCompile(`(?i)/home/[^/]+/`)
	usersPathRe   = regexp.MustCompile(`(?i)/Users/[^/]+/`)
	windowsUserRe = regexp.MustCompile(`(?i)[a-zA-Z]:\\Users\\[^\\]+\\`)
	// access point MACs locate the device
	macRe = regexp.MustCompile(`(?i)\b[0-9a-f]{2}(?:[:-][0-9a-f]{2}){5}\b`)
)

// payloadKeys are log fields that may carry a Wi-Fi fingerprint.
var payloadKeys = []string{"bytes", "payload"}

// Init installs the Sentry writer next to the existing log output. It is a
// no-op unless reporting is enabled and a DSN is set.
func Init(reportingEnabled bool, dsn, deviceID string) error {
	if !reportingEnabled || dsn == "" {
		log.Debug().Msg("error reporting disabled")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          config.AppName + "@" + config.AppVersion,
		Environment:      runtime.GOOS,
		AttachStacktrace: true,
		SendDefaultPII:   false,
		ServerName:       "",
		MaxBreadcrumbs:   0,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return sanitizeEvent(event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: deviceID})
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	sentryWriter, err = sentryzerolog.NewWithHub(sentry.CurrentHub(), sentryzerolog.Options{
		Levels:          []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		FlushTimeout:    flushTimeout,
		WithBreadcrumbs: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create sentry zerolog writer: %w", err)
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(
		helpers.LogWriter(),
		sentryWriter,
	)).With().Timestamp().Caller().Logger()

	enabled = true
	log.Info().Msg("error reporting enabled")
	return nil
}

func Close() {
	if !enabled {
		return
	}
	closeOnce.Do(func() {
		_ = sentryWriter.Close()
		sentry.Flush(flushTimeout)
	})
}

func Flush() {
	if !enabled {
		return
	}
	sentry.Flush(flushTimeout)
}

func Enabled() bool {
	return enabled
}

// sanitizeEvent strips hostnames, user paths and anything that could
// reveal the device's location.
func sanitizeEvent(event *sentry.Event) *sentry.Event {
	event.ServerName = ""

	for i := range event.Exception {
		event.Exception[i].Value = sanitize(event.Exception[i].Value)
		if event.Exception[i].Stacktrace != nil {
			for j := range event.Exception[i].Stacktrace.Frames {
				frame := &event.Exception[i].Stacktrace.Frames[j]
				frame.AbsPath = sanitize(frame.AbsPath)
				frame.Filename = sanitize(frame.Filename)
			}
		}
	}

	event.Message = sanitize(event.Message)

	for _, k := range payloadKeys {
		delete(event.Extra, k)
	}
	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = sanitize(s)
		}
	}

	return event
}

func sanitize(s string) string {
	if s == "" {
		return s
	}

	result := homePathRe.ReplaceAllString(s, "/home/<user>/")
	result = usersPathRe.ReplaceAllString(result, "/Users/<user>/")
	result = windowsUserRe.ReplaceAllString(result, "C:\\Users\\<user>\\")
	result = macRe.ReplaceAllString(result, "<mac>")

	return result
}
