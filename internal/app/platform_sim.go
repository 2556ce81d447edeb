// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/controller_manager/internal/config"
	"github.com/relabs-tech/controller_manager/internal/platform/sim"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

func simOptions(cfg *config.Config) sim.Options {
	return sim.Options{
		Modes:         cfg.SimControlModes,
		StateInterval: time.Duration(cfg.SimStateIntervalMs) * time.Millisecond,
		InfoInterval:  time.Duration(cfg.SimInfoIntervalMs) * time.Millisecond,
		Armed:         cfg.SimArmed,
		Offboard:      cfg.SimOffboard,
	}
}

// RunPlatformSim runs a simulated platform on the configured bus.
func RunPlatformSim() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	if cfg.Transport == config.TransportMemory {
		return errors.New("platform simulator needs a networked transport, got memory")
	}

	bus, err := OpenBus(cfg, cfg.SimClientID)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := sim.New(bus, transport.NewTopics(cfg.Namespace), simOptions(cfg))
	log.Println("sim: connected, starting publish loop")
	err = s.Run(ctx)
	log.Printf("sim: shutting down after %d commands", s.Commands())
	return err
}
