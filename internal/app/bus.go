// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"

	"github.com/relabs-tech/controller_manager/internal/config"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

// OpenBus connects to the transport selected by TRANSPORT. clientID names
// this process on the broker.
func OpenBus(cfg *config.Config, clientID string) (transport.Bus, error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		return transport.NewMQTTBus(transport.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: clientID,
			QoS:      0,
		})
	case config.TransportNATS:
		return transport.NewNATSBus(cfg.NATSURL, clientID)
	case config.TransportMemory:
		return transport.NewMemoryBus(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
