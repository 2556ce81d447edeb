// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/controller_manager/internal/config"
	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/platform"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

// ErrModeRefused is returned when the controller manager answers with
// success=false.
var ErrModeRefused = errors.New("control mode refused")

// RunSetMode asks the controller manager to switch to the given mode.
func RunSetMode(mode controlmode.Mode, timeout time.Duration) error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	bus, err := OpenBus(cfg, cfg.MQTTClientID+"-set-mode")
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return SetMode(ctx, bus, transport.NewTopics(cfg.Namespace), mode)
}

// SetMode sends one set control mode request.
func SetMode(ctx context.Context, bus transport.Bus, topics transport.Topics, mode controlmode.Mode) error {
	var resp platform.SetControlModeResponse
	req := platform.SetControlModeRequest{ControlMode: mode}
	if err := transport.RequestJSON(ctx, bus, topics.SetControlMode, req, &resp); err != nil {
		return fmt.Errorf("set control mode %s: %w", mode, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", ErrModeRefused, mode)
	}
	log.Printf("set_mode: %s established", mode)
	return nil
}
