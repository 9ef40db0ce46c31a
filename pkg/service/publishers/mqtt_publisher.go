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

// Package publishers forwards submission outcomes to external brokers.
package publishers

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-uplink/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/config"
	"github.com/ZaparooProject/zaparoo-uplink/pkg/uplink"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	queueSize      = 32
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	disconnectMs   = 250
)

// MQTTPublisher publishes submission outcomes to an MQTT broker.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	events    chan models.Submission
	stopCh    chan struct{}
	broker    string
	topic     string
	filter    []string
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewMQTTPublisher creates a publisher. filter holds outcomes
// (models.OutcomeAccepted, models.OutcomeRejected); empty publishes all.
func NewMQTTPublisher(broker, topic string, filter []string) *MQTTPublisher {
	return &MQTTPublisher{
		broker:    broker,
		topic:     topic,
		filter:    filter,
		newClient: mqtt.NewClient,
		events:    make(chan models.Submission, queueSize),
		stopCh:    make(chan struct{}),
	}
}

// FromConfig builds a publisher for every enabled MQTT entry.
func FromConfig(cfg *config.Instance) []*MQTTPublisher {
	var pubs []*MQTTPublisher
	for _, pc := range cfg.GetMQTTPublishers() {
		if !pc.IsEnabled() {
			continue
		}
		pubs = append(pubs, NewMQTTPublisher(pc.Broker, pc.TopicOrDefault(), pc.Filter))
	}
	return pubs
}

// Start connects to the broker and begins publishing queued events.
func (p *MQTTPublisher) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID(config.AppName + "-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Str("broker", p.broker).Msg("mqtt publisher: connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	p.client = p.newClient(opts)

	// with connect retry on, Connect only fails for bad options
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Str("broker", p.broker).Msg("mqtt publisher: broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	log.Info().Str("broker", p.broker).Str("topic", p.topic).Msg("mqtt publisher: started")

	p.wg.Add(1)
	go p.publishEvents()

	return nil
}

// Notify queues a pipeline event. It never blocks the pipeline: when the
// queue is full the event is dropped.
func (p *MQTTPublisher) Notify(ev uplink.Event) {
	sub := models.NewSubmission(ev)
	if !p.matchesFilter(sub.Outcome()) {
		return
	}
	select {
	case <-p.stopCh:
		return
	default:
	}
	select {
	case p.events <- sub:
	default:
		log.Warn().Str("submission", sub.ID).Msg("mqtt publisher: queue full, dropping event")
	}
}

// Stop ends publishing and disconnects. Safe to call more than once.
func (p *MQTTPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()

		if p.client != nil && p.client.IsConnected() {
			log.Debug().Msg("mqtt publisher: disconnecting")
			p.client.Disconnect(disconnectMs)
		}
	})
}

func (p *MQTTPublisher) publishEvents() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			log.Debug().Msg("mqtt publisher: stopping event publisher")
			return
		case sub := <-p.events:
			p.publish(sub)
		}
	}
}

func (p *MQTTPublisher) publish(sub models.Submission) {
	payload, err := json.Marshal(sub)
	if err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to marshal event")
		return
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Error().Str("submission", sub.ID).Msg("mqtt publisher: publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to publish message")
		return
	}

	log.Debug().Str("submission", sub.ID).Str("outcome", sub.Outcome()).Msg("mqtt publisher: published event")
}

func (p *MQTTPublisher) matchesFilter(outcome string) bool {
	return len(p.filter) == 0 || slices.Contains(p.filter, outcome)
}
