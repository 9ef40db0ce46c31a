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

// Package cli implements the uplink command line: one-shot submissions and
// diagnostics, plus the setup shared with daemon mode.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/zaparoo-uplink/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/command"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/service"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/uplink"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/wifi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errScanDisabled = errors.New("wifi scanning is disabled in config")

var (
	osExit         = os.Exit
	closeTelemetry = telemetry.Close
)

// exit flushes pending error reports first, since os.Exit skips the
// caller's deferred calls.
func exit(code int) {
	closeTelemetry()
	osExit(code)
}

type Flags struct {
	Send        *string
	Port        *string
	Fingerprint *bool
	Scan        *bool
	ListPorts   *bool
	Version     *bool
	Daemon      *bool
}

// SetupFlags defines all CLI flags.
func SetupFlags() *Flags {
	return &Flags{
		Send: flag.String(
			"send",
			"",
			"send a payload once, e.g. \"1,2,3\" or \"[1,2,3]\"",
		),
		Port: flag.String(
			"port",
			"",
			"override the configured serial port",
		),
		Fingerprint: flag.Bool(
			"fingerprint",
			false,
			"scan Wi-Fi and send the fingerprint once",
		),
		Scan: flag.Bool(
			"scan",
			false,
			"print the ranked Wi-Fi scan as JSON",
		),
		ListPorts: flag.Bool(
			"list-ports",
			false,
			"list candidate serial ports",
		),
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Daemon: flag.Bool(
			"daemon",
			false,
			"run service in foreground and log to stderr",
		),
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Pre parses flags and handles the ones that need no config.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("Zaparoo Uplink v%s\n", config.AppVersion)
		os.Exit(0)
	}

	if *f.ListPorts {
		if err := PrintPorts(os.Stdout, helpers.GetSerialDeviceList); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
}

// Post runs one-shot commands and exits. It returns only when the daemon
// should start.
func (f *Flags) Post(cfg *config.Instance) {
	if *f.Port != "" {
		cfg.SetDevicePort(*f.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case isFlagPassed("send"):
		if *f.Send == "" {
			_, _ = fmt.Fprint(os.Stderr, "Error: send flag requires a value\n")
			stop()
			exit(1)
			return
		}
		err = Send(ctx, service.BuildDefault(cfg).Pipeline, uplink.Explicit(*f.Send), os.Stdout)
	case *f.Fingerprint:
		c := service.BuildDefault(cfg)
		if c.Scanner == nil {
			err = errScanDisabled
			break
		}
		err = Send(ctx, c.Pipeline, uplink.FromScan(), os.Stdout)
	case *f.Scan:
		scanner := service.NewScanner(cfg, &command.RealExecutor{})
		if scanner == nil {
			err = errScanDisabled
			break
		}
		err = PrintScan(ctx, scanner, os.Stdout)
	default:
		return
	}

	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
		return
	}
	exit(0)
}

// Send submits one request and prints the transmitted bytes.
func Send(ctx context.Context, sub uplink.Submitter, req uplink.Request, out io.Writer) error {
	payload, err := sub.Submit(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("one-shot submission failed")
		if kind := uplink.Kind(err); kind != "" {
			return fmt.Errorf("%s: %w", kind, err)
		}
		return err
	}
	_, _ = fmt.Fprintf(out, "sent %s (%s)\n", payload, payload.Hex())
	return nil
}

// PrintScan writes the ranked scan in the shape geolocation services accept.
func PrintScan(ctx context.Context, scanner wifi.Scanner, out io.Writer) error {
	scan, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	if scan == nil {
		scan = wifi.ScanResult{}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]wifi.ScanResult{"wifiAccessPoints": scan}); err != nil {
		return fmt.Errorf("failed to encode scan: %w", err)
	}
	return nil
}

// PrintPorts writes one candidate serial port per line.
func PrintPorts(out io.Writer, list func() ([]string, error)) error {
	ports, err := list()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		_, _ = fmt.Fprintln(out, p)
	}
	return nil
}

// Setup initializes logging and the user config. Returns a user config
// object.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaultConfig config.Values, writers []io.Writer) *config.Instance {
	err := helpers.InitLogging(config.TempDir(), writers)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(config.ConfigDir(), defaultConfig)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := telemetry.Init(cfg.ErrorReporting(), cfg.SentryDSN(), cfg.DeviceID()); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg
}
