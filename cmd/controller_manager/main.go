// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/controller_manager/internal/app"
	"github.com/relabs-tech/controller_manager/internal/config"
)

func main() {
	configPath := flag.String("config", "./controller_manager.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting controller manager")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunControllerManager(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
