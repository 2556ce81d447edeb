// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/relabs-tech/controller_manager/internal/config"
	"github.com/relabs-tech/controller_manager/internal/controller"
	"github.com/relabs-tech/controller_manager/internal/logging"
	"github.com/relabs-tech/controller_manager/internal/manager"
	"github.com/relabs-tech/controller_manager/internal/metrics"
	"github.com/relabs-tech/controller_manager/internal/platform/sim"
	"github.com/relabs-tech/controller_manager/internal/transport"

	// Built-in control laws.
	_ "github.com/relabs-tech/controller_manager/internal/controller/pidspeed"
)

// RunControllerManager runs the controller manager described by the global
// configuration until SIGINT or SIGTERM.
func RunControllerManager() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	closer := logging.Setup(logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer closer.Close()

	plugin, err := config.LoadPlugin(cfg.PluginConfigFile)
	if err != nil {
		return err
	}

	bus, err := OpenBus(cfg, cfg.MQTTClientID)
	if err != nil {
		return err
	}
	defer bus.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	topics := transport.NewTopics(cfg.Namespace)
	m, err := NewManager(cfg, plugin, bus, topics, metrics.New(reg))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// With the in-process bus there is no external platform to talk to.
	if cfg.Transport == config.TransportMemory {
		log.Println("control: memory transport, starting simulated platform in process")
		s := sim.New(bus, topics, simOptions(cfg))
		go func() {
			if err := s.Run(ctx); err != nil {
				log.Printf("sim: %v", err)
			}
		}()
	}

	if cfg.WebServerPort > 0 {
		srv := NewWebServer(cfg.WebServerPort, NewWebHandler(m, reg))
		go func() {
			if err := ServeWeb(ctx, srv); err != nil {
				log.Printf("web: %v", err)
			}
		}()
	}

	return m.Run(ctx)
}

// NewManager builds a manager for the configured plugin. Plugin file
// overrides win over the process configuration.
func NewManager(cfg *config.Config, plugin *config.Plugin, bus transport.Bus, topics transport.Topics, met *metrics.Metrics) (*manager.Manager, error) {
	if cfg.PluginName == "" {
		return nil, errors.New("PLUGIN_NAME is required")
	}
	ctrl, err := controller.New(cfg.PluginName, plugin.Parameters)
	if err != nil {
		return nil, err
	}

	opts := manager.Options{
		InputModes:             plugin.InputModes,
		OutputModes:            plugin.OutputModes,
		UseBypass:              cfg.UseBypass,
		PreferredOutputMode:    cfg.PreferredOutputMode,
		ControlPeriod:          cfg.ControlPeriod(),
		PlatformRequestTimeout: cfg.PlatformRequestTimeout(),
		PlatformStatusTimeout:  cfg.PlatformStatusTimeout(),
		NoticeInterval:         cfg.NoticeInterval(),
		SyncQueueSize:          cfg.SyncQueueSize,
		SyncMaxSkew:            cfg.SyncMaxSkew(),
		Debug:                  cfg.LogDebug,
	}
	if plugin.UseBypass != nil {
		opts.UseBypass = *plugin.UseBypass
	}
	if plugin.PreferredOutputMode != nil {
		opts.PreferredOutputMode = *plugin.PreferredOutputMode
	}

	m, err := manager.New(manager.Deps{
		Bus:        bus,
		Topics:     topics,
		Controller: ctrl,
		Metrics:    met,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", cfg.PluginName, err)
	}
	log.Printf("control: plugin %s loaded, bypass %v, preferred output %s",
		cfg.PluginName, opts.UseBypass, opts.PreferredOutputMode)
	return m, nil
}
