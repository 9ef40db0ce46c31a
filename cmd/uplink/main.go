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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/zaparoo-uplink/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/cli"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags()
	flags.Pre()

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{os.Stderr}
	} else {
		logWriters = []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	}

	cfg := cli.Setup(config.BaseDefaults, logWriters)
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	flags.Post(cfg)

	stopSvc, done, err := service.Start(cfg)
	if err != nil {
		log.Error().Err(err).Msg("error starting service")
		return fmt.Errorf("error starting service: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	log.Info().Str("config", cfg.Path()).Msg("uplink service running")

	select {
	case sig := <-sigs:
		log.Info().Stringer("signal", sig).Msg("shutting down")
	case <-done:
		log.Warn().Msg("service stopped unexpectedly")
	}

	if err := stopSvc(); err != nil {
		log.Error().Err(err).Msg("error stopping service")
		return errors.New("service stopped with errors")
	}
	return nil
}
