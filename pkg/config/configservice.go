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

package config

const (
	DefaultAPIListen = ":8090"
	DefaultMQTTTopic = "zaparoo/uplink"
)

type Service struct {
	API        API        `toml:"api"`
	DeviceID   string     `toml:"device_id"`
	Publishers Publishers `toml:"publishers,omitempty"`
}

type API struct {
	Enabled        *bool     `toml:"enabled,omitempty"`
	Discovery      Discovery `toml:"discovery,omitempty"`
	Listen         string    `toml:"listen,omitempty" validate:"hostport"`
	AllowedOrigins []string  `toml:"allowed_origins,omitempty"`
	AllowedIPs     []string  `toml:"allowed_ips,omitempty"`
}

type Discovery struct {
	Enabled      *bool  `toml:"enabled,omitempty"`
	InstanceName string `toml:"instance_name,omitempty"`
}

type Publishers struct {
	MQTT []MQTTPublisher `toml:"mqtt,omitempty" validate:"dive"`
}

// MQTTPublisher forwards submission outcomes to a broker. Filter limits
// publishing to "accepted" or "rejected" outcomes; empty publishes both.
type MQTTPublisher struct {
	Enabled *bool    `toml:"enabled,omitempty"`
	Broker  string   `toml:"broker" validate:"required,broker"`
	Topic   string   `toml:"topic"`
	Filter  []string `toml:"filter,omitempty" validate:"dive,oneof=accepted rejected"`
}

// IsEnabled reports whether the publisher is on; nil means enabled.
func (p MQTTPublisher) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// TopicOrDefault returns the configured topic or DefaultMQTTTopic.
func (p MQTTPublisher) TopicOrDefault() string {
	if p.Topic == "" {
		return DefaultMQTTTopic
	}
	return p.Topic
}

func (c *Instance) APIEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Service.API.Enabled == nil {
		return true
	}
	return *c.vals.Service.API.Enabled
}

func (c *Instance) SetAPIEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.API.Enabled = &enabled
}

func (c *Instance) APIListen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Service.API.Listen == "" {
		return DefaultAPIListen
	}
	return c.vals.Service.API.Listen
}

func (c *Instance) SetAPIListen(listen string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.API.Listen = listen
}

func (c *Instance) AllowedOrigins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.API.AllowedOrigins
}

func (c *Instance) AllowedIPs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.API.AllowedIPs
}

func (c *Instance) DiscoveryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Service.API.Discovery.Enabled == nil {
		return true
	}
	return *c.vals.Service.API.Discovery.Enabled
}

func (c *Instance) SetDiscoveryEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.API.Discovery.Enabled = &enabled
}

func (c *Instance) DiscoveryInstanceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.API.Discovery.InstanceName
}

func (c *Instance) SetDiscoveryInstanceName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.API.Discovery.InstanceName = name
}

func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.DeviceID
}

func (c *Instance) GetMQTTPublishers() []MQTTPublisher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.Publishers.MQTT
}
