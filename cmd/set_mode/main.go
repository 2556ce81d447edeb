// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"time"

	"github.com/relabs-tech/controller_manager/internal/app"
	"github.com/relabs-tech/controller_manager/internal/config"
	"github.com/relabs-tech/controller_manager/internal/controlmode"
)

func main() {
	configPath := flag.String("config", "./controller_manager.txt", "path to configuration file")
	control := flag.String("mode", "hover", "control mode (hover, speed, position, ...)")
	yaw := flag.String("yaw", "", "yaw mode (yaw_angle, yaw_speed)")
	frame := flag.String("frame", "", "reference frame (local_enu, body_flu, global_lat_lon_asl)")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	flag.Parse()

	mode, err := controlmode.ParseMode(*control, *yaw, *frame)
	if err != nil {
		log.Fatalf("invalid mode: %v", err)
	}

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunSetMode(mode, *timeout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
