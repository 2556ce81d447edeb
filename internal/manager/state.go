// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package manager

import (
	"time"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/motion"
)

// state is everything the negotiator, scheduler and dispatcher share. It is
// owned by the event loop goroutine; nothing else reads or writes it.
type state struct {
	// Written by negotiate only.
	established bool
	bypass      bool
	inputMode   controlmode.Mode
	outputMode  controlmode.Mode

	// Set by the state handler, cleared by negotiate.
	stateAcquired bool
	pose          motion.Pose
	twist         motion.Twist

	// Set by the reference handlers, cleared by negotiate.
	referenceAcquired bool
	refPose           motion.Pose
	refTwist          motion.Twist
	refTrajectory     motion.TrajectoryPoint
	refThrust         motion.Thrust

	// Written by the platform info handler.
	platform         motion.PlatformInfo
	platformReceived time.Time
}

// Status is a read-only snapshot of the manager, safe to hand to other
// goroutines.
type Status struct {
	Established       bool                `json:"established"`
	Bypass            bool                `json:"bypass"`
	InputMode         controlmode.Mode    `json:"input_mode"`
	OutputMode        controlmode.Mode    `json:"output_mode"`
	StateAcquired     bool                `json:"state_acquired"`
	ReferenceAcquired bool                `json:"reference_acquired"`
	Platform          motion.PlatformInfo `json:"platform"`
	PlatformReceived  time.Time           `json:"platform_received"`
	PlatformModes     []controlmode.Code  `json:"platform_modes"`
}
