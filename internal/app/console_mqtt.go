// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/controller_manager/internal/config"
	"github.com/relabs-tech/controller_manager/internal/motion"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

// RunConsoleMQTT prints actuator commands and platform info until SIGINT or
// SIGTERM.
func RunConsoleMQTT() error {
	cfg := config.Get()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}

	bus, err := OpenBus(cfg, cfg.MQTTClientID+"-console")
	if err != nil {
		return err
	}
	defer bus.Close()

	if err := SubscribeConsole(bus, transport.NewTopics(cfg.Namespace), os.Stdout); err != nil {
		return err
	}

	// Wait for Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("console: shutting down")
	return nil
}

// SubscribeConsole prints one line per command or platform info message to w.
func SubscribeConsole(bus transport.Bus, topics transport.Topics, w io.Writer) error {
	onErr := func(err error) { log.Printf("console: %v", err) }

	if err := transport.SubscribeJSON(bus, topics.CommandPose, func(p motion.Pose) {
		fmt.Fprintf(w, "[POSE]   x=%7.2f y=%7.2f z=%7.2f yaw=%6.2f\n",
			p.Position.X, p.Position.Y, p.Position.Z, p.Orientation.Yaw())
	}, onErr); err != nil {
		return err
	}
	log.Printf("console: subscribed to %s", topics.CommandPose)

	if err := transport.SubscribeJSON(bus, topics.CommandTwist, func(t motion.Twist) {
		fmt.Fprintf(w, "[TWIST]  vx=%6.2f vy=%6.2f vz=%6.2f wz=%6.2f\n",
			t.Linear.X, t.Linear.Y, t.Linear.Z, t.Angular.Z)
	}, onErr); err != nil {
		return err
	}
	log.Printf("console: subscribed to %s", topics.CommandTwist)

	if err := transport.SubscribeJSON(bus, topics.CommandThrust, func(th motion.Thrust) {
		fmt.Fprintf(w, "[THRUST] thrust=%6.2f normalized=%5.2f\n", th.Thrust, th.ThrustNormalized)
	}, onErr); err != nil {
		return err
	}
	log.Printf("console: subscribed to %s", topics.CommandThrust)

	if err := transport.SubscribeJSON(bus, topics.PlatformInfo, func(i motion.PlatformInfo) {
		fmt.Fprintf(w, "[INFO]   connected=%v armed=%v offboard=%v mode=%s\n",
			i.Connected, i.Armed, i.Offboard, i.ControlMode)
	}, onErr); err != nil {
		return err
	}
	log.Printf("console: subscribed to %s", topics.PlatformInfo)
	return nil
}
