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

// Package validation checks configuration values and API request bodies with
// go-playground/validator plus a few uplink-specific tags.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")
)

// Validator handles validation of config values and API parameters.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator with registered custom validators.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("duration", validateDuration)
	_ = v.RegisterValidation("serialport", validateSerialPort)
	_ = v.RegisterValidation("broker", validateBroker)
	_ = v.RegisterValidation("hostport", validateHostPort)

	return &Validator{validate: v}
}

// DefaultValidator is a shared validator instance.
var DefaultValidator = NewValidator()

// Validate validates a struct and returns a formatted error if validation fails.
func (v *Validator) Validate(params any) error {
	return v.ValidateCtx(context.Background(), params)
}

// ValidateCtx validates a struct with context and returns a formatted error.
func (v *Validator) ValidateCtx(ctx context.Context, params any) error {
	if err := v.validate.StructCtx(ctx, params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateAndUnmarshal unmarshals JSON params and validates them.
// Returns ErrMissingParams if params is empty, ErrInvalidParams if unmarshal
// fails, or an Error if validation fails.
func ValidateAndUnmarshal[T any](params json.RawMessage, dest *T) error {
	if len(params) == 0 {
		return ErrMissingParams
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return DefaultValidator.Validate(dest)
}

// validateDuration checks for a positive Go duration.
func validateDuration(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	d, err := time.ParseDuration(val)
	return err == nil && d > 0
}

// validateSerialPort accepts "auto", a /dev path or a Windows COM port.
func validateSerialPort(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	switch {
	case val == "", val == "auto":
		return true
	case strings.HasPrefix(val, "/dev/"):
		return len(val) > len("/dev/")
	case strings.HasPrefix(strings.ToUpper(val), "COM"):
		return len(val) > len("COM")
	default:
		return false
	}
}

// validateBroker checks an MQTT broker URL.
func validateBroker(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	u, err := url.Parse(val)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
		return true
	default:
		return false
	}
}

// validateHostPort checks a listen address.
func validateHostPort(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	_, port, err := net.SplitHostPort(val)
	return err == nil && port != ""
}
