// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import "strings"

// Topics holds every topic and service name used by the controller manager
// and its peers, rooted at one vehicle namespace.
type Topics struct {
	StatePose  string
	StateTwist string

	ReferencePose       string
	ReferenceTwist      string
	ReferenceTrajectory string
	ReferenceThrust     string

	PlatformInfo string

	CommandPose   string
	CommandTwist  string
	CommandThrust string

	SetControlMode         string
	SetPlatformControlMode string
	ListControlModes       string
}

// NewTopics builds the topic set for namespace ns (e.g. "drone0").
// An empty namespace yields un-prefixed names.
func NewTopics(ns string) Topics {
	ns = strings.Trim(ns, "/")
	p := func(name string) string {
		if ns == "" {
			return name
		}
		return ns + "/" + name
	}
	return Topics{
		StatePose:  p("self_localization/pose"),
		StateTwist: p("self_localization/twist"),

		ReferencePose:       p("motion_reference/pose"),
		ReferenceTwist:      p("motion_reference/twist"),
		ReferenceTrajectory: p("motion_reference/trajectory"),
		ReferenceThrust:     p("motion_reference/thrust"),

		PlatformInfo: p("platform/info"),

		CommandPose:   p("actuator_command/pose"),
		CommandTwist:  p("actuator_command/twist"),
		CommandThrust: p("actuator_command/thrust"),

		SetControlMode:         p("controller/set_control_mode"),
		SetPlatformControlMode: p("platform/set_platform_control_mode"),
		ListControlModes:       p("platform/list_control_modes"),
	}
}
