// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package motion holds the stamped messages exchanged between the controller
// manager, the platform and the motion reference producers.
package motion

import (
	"math"
	"time"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
)

// Header stamps a message with its acquisition time and frame.
type Header struct {
	Stamp   time.Time `json:"stamp"`
	FrameID string    `json:"frame_id,omitempty"`
}

// Vector3 is a plain 3D vector.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is an orientation (x, y, z, w).
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is a stamped position and orientation.
type Pose struct {
	Header      Header     `json:"header"`
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Twist is a stamped linear and angular velocity.
type Twist struct {
	Header  Header  `json:"header"`
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// Thrust is a stamped collective thrust command.
type Thrust struct {
	Header           Header  `json:"header"`
	Thrust           float64 `json:"thrust"`            // N
	ThrustNormalized float64 `json:"thrust_normalized"` // 0..1
}

// TrajectoryPoint is one sample of a reference trajectory.
type TrajectoryPoint struct {
	Header       Header  `json:"header"`
	Position     Vector3 `json:"position"`
	Velocity     Vector3 `json:"velocity"`
	Acceleration Vector3 `json:"acceleration"`
	Yaw          float64 `json:"yaw"` // rad
}

// PlatformInfo is the platform telemetry relevant to command gating.
type PlatformInfo struct {
	Header      Header           `json:"header"`
	Connected   bool             `json:"connected"`
	Armed       bool             `json:"armed"`
	Offboard    bool             `json:"offboard"`
	ControlMode controlmode.Mode `json:"current_control_mode"`
}

// QuaternionFromYaw returns the orientation of a pure rotation about Z.
func QuaternionFromYaw(yaw float64) Quaternion {
	return Quaternion{Z: math.Sin(yaw / 2), W: math.Cos(yaw / 2)}
}

// Yaw extracts the heading (rad) of q.
func (q Quaternion) Yaw() float64 {
	sinyCosp := 2 * (q.W*q.Z + q.X*q.Y)
	cosyCosp := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	return math.Atan2(sinyCosp, cosyCosp)
}
