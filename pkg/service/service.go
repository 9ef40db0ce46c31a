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

// Package service wires the uplink pipeline to its hardware, scan provider
// and host adapters, and runs them for the lifetime of the daemon.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/api"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/drivers/sigfox"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/helpers/command"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/service/discovery"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/service/publishers"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/uplink"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/wifi"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Components is the uplink stack built from config.
type Components struct {
	Pipeline *uplink.Pipeline
	Lock     *uplink.ChannelLock
	Scanner  wifi.Scanner
}

// NewScanner returns the configured scan provider, or nil when scanning is
// turned off.
func NewScanner(cfg *config.Instance, executor command.Executor) wifi.Scanner {
	switch cfg.WiFiScanner() {
	case config.ScannerNetworkManager:
		return wifi.NewNetworkManagerScanner(cfg.WiFiInterface())
	case config.ScannerNone:
		return nil
	default:
		return wifi.NewIWScanner(executor, cfg.WiFiInterface())
	}
}

// Build assembles the pipeline. fs holds the channel lock marker.
func Build(
	cfg *config.Instance,
	fs afero.Fs,
	portFactory sigfox.SerialPortFactory,
	executor command.Executor,
	clock clockwork.Clock,
) *Components {
	lock := uplink.NewChannelLock(fs, cfg.LockFile())
	scanner := NewScanner(cfg, executor)
	pipeline := uplink.NewPipeline(
		lock,
		sigfox.NewFactory(cfg.BaudRate(), portFactory, clock),
		scanner,
		clock,
		uplink.Options{
			Port:        cfg.DevicePort(),
			SettleDelay: cfg.SettleDelay(),
			StepTimeout: cfg.StepTimeout(),
			SendTimeout: cfg.SendTimeout(),
		},
	)
	return &Components{Pipeline: pipeline, Lock: lock, Scanner: scanner}
}

// BuildDefault assembles the pipeline against the real OS, serial ports and
// clock.
func BuildDefault(cfg *config.Instance) *Components {
	return Build(cfg, afero.NewOsFs(), sigfox.DefaultSerialPortFactory,
		&command.RealExecutor{}, clockwork.NewRealClock())
}

// Start runs the daemon: it clears a stale lock left by a crashed run, then
// serves the API and starts publishers until stop is called or a component
// fails.
func Start(cfg *config.Instance) (stop func() error, done <-chan struct{}, err error) {
	return start(cfg, BuildDefault(cfg))
}

func start(cfg *config.Instance, c *Components) (stop func() error, done <-chan struct{}, err error) {
	log.Info().Msgf("version: %s", config.AppVersion)

	// only the daemon may clear the marker, a one-shot run could be
	// clearing a lock held by the daemon
	if err := c.Lock.ClearStale(); err != nil {
		return nil, nil, fmt.Errorf("failed to clear stale channel lock: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	var discoveryService *discovery.Service
	if cfg.APIEnabled() {
		log.Info().Msg("starting API service")
		srv := api.NewServer(cfg, c.Pipeline)
		c.Pipeline.OnEvent(srv.Broadcast)
		g.Go(func() error {
			return srv.Start(gctx)
		})

		log.Info().Msg("starting mDNS discovery service")
		discoveryService = discovery.New(cfg)
		if discoveryErr := discoveryService.Start(gctx); discoveryErr != nil {
			log.Error().Err(discoveryErr).Msg("mDNS discovery failed to start (continuing without discovery)")
		}
	} else {
		log.Info().Msg("API service disabled by configuration")
	}

	log.Info().Msg("starting publishers")
	activePublishers := startPublishers(cfg, c.Pipeline)

	doneCh := make(chan struct{})
	var runErr error
	go func() {
		defer close(doneCh)

		<-gctx.Done()
		log.Info().Msg("service context cancelled, running cleanup")

		if discoveryService != nil {
			discoveryService.Stop()
		}
		for _, publisher := range activePublishers {
			publisher.Stop()
		}
		runErr = g.Wait()
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error().Err(runErr).Msg("service stopped with error")
		}

		log.Info().Msg("service cleanup completed")
	}()

	stop = func() error {
		cancel()
		<-doneCh
		return runErr
	}
	return stop, doneCh, nil
}

func startPublishers(cfg *config.Instance, pipeline *uplink.Pipeline) []*publishers.MQTTPublisher {
	var active []*publishers.MQTTPublisher
	for _, publisher := range publishers.FromConfig(cfg) {
		if err := publisher.Start(); err != nil {
			log.Error().Err(err).Msg("failed to start MQTT publisher")
			continue
		}
		pipeline.OnEvent(publisher.Notify)
		active = append(active, publisher)
	}

	if len(active) > 0 {
		log.Info().Msgf("started %d MQTT publisher(s)", len(active))
	}
	return active
}
