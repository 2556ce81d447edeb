// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package controller defines the control-law capability the controller
// manager drives, and a registry to pick one by name at start-up.
//
// A control law must implement Controller. Reference updates are optional:
// a control law opts into each reference stream by also implementing the
// matching *ReferenceUpdater interface.
package controller

import (
	"fmt"
	"sort"
	"sync"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/motion"
)

// Output is what a control law produces on one tick.
type Output struct {
	Pose   motion.Pose
	Twist  motion.Twist
	Thrust motion.Thrust
}

// Controller is the mandatory part of a control law.
type Controller interface {
	UpdateState(pose motion.Pose, twist motion.Twist)
	ComputeOutput() Output
	// SetMode reports whether the control law can now run with the given
	// input and output modes.
	SetMode(in, out controlmode.Mode) bool
}

type PoseReferenceUpdater interface {
	UpdatePoseReference(ref motion.Pose)
}

type TwistReferenceUpdater interface {
	UpdateTwistReference(ref motion.Twist)
}

type TrajectoryReferenceUpdater interface {
	UpdateTrajectoryReference(ref motion.TrajectoryPoint)
}

type ThrustReferenceUpdater interface {
	UpdateThrustReference(ref motion.Thrust)
}

// Factory builds a control law from its plugin parameters.
type Factory func(params map[string]float64) (Controller, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a control law available under name. It panics on a
// duplicate name, like database/sql drivers.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("controller: Register called twice for " + name)
	}
	registry[name] = f
}

// New builds the control law registered under name.
func New(name string, params map[string]float64) (Controller, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("controller: unknown plugin %q (available: %v)", name, Names())
	}
	return f(params)
}

// Names returns the registered control law names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
