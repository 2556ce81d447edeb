// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package pidspeed is a proportional tracker that turns hover, position,
// speed and trajectory references into earth-frame speed commands.
package pidspeed

import (
	"fmt"
	"math"

	"github.com/relabs-tech/controller_manager/internal/controller"
	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/motion"
)

// Name is the registry name of this control law.
const Name = "pid_speed"

func init() {
	controller.Register(Name, func(params map[string]float64) (controller.Controller, error) {
		return New(params)
	})
}

// Params are the tracker gains and limits.
type Params struct {
	Kp       float64 // 1/s, position error to speed
	KpYaw    float64 // 1/s, yaw error to yaw rate
	MaxSpeed float64 // m/s, 0 disables the limit
}

// Controller implements controller.Controller plus the pose, twist and
// trajectory reference updaters.
type Controller struct {
	params Params

	in, out controlmode.Mode

	pose     motion.Pose
	twist    motion.Twist
	hasState bool

	refPose  motion.Pose
	refTwist motion.Twist
	refTraj  motion.TrajectoryPoint

	hoverPose motion.Pose
	hoverSet  bool
}

var (
	_ controller.Controller                 = (*Controller)(nil)
	_ controller.PoseReferenceUpdater       = (*Controller)(nil)
	_ controller.TwistReferenceUpdater      = (*Controller)(nil)
	_ controller.TrajectoryReferenceUpdater = (*Controller)(nil)
)

// New builds a tracker from params: "kp", "kp_yaw", "max_speed".
func New(params map[string]float64) (*Controller, error) {
	p := Params{Kp: 1.0, KpYaw: 1.0, MaxSpeed: 2.0}
	for k, v := range params {
		switch k {
		case "kp":
			p.Kp = v
		case "kp_yaw":
			p.KpYaw = v
		case "max_speed":
			p.MaxSpeed = v
		default:
			return nil, fmt.Errorf("%s: unknown parameter %q", Name, k)
		}
	}
	if p.Kp <= 0 || p.KpYaw <= 0 {
		return nil, fmt.Errorf("%s: gains must be > 0", Name)
	}
	if p.MaxSpeed < 0 {
		return nil, fmt.Errorf("%s: max_speed must be >= 0", Name)
	}
	return &Controller{params: p}, nil
}

func (c *Controller) UpdateState(pose motion.Pose, twist motion.Twist) {
	c.pose = pose
	c.twist = twist
	c.hasState = true
	if c.in.IsHover() && !c.hoverSet {
		c.hoverPose = pose
		c.hoverSet = true
	}
}

func (c *Controller) UpdatePoseReference(ref motion.Pose)                  { c.refPose = ref }
func (c *Controller) UpdateTwistReference(ref motion.Twist)                { c.refTwist = ref }
func (c *Controller) UpdateTrajectoryReference(ref motion.TrajectoryPoint) { c.refTraj = ref }

// SetMode accepts any tracked input class with a speed output. The all-unset
// pair is accepted too, meaning the tracker is idle.
func (c *Controller) SetMode(in, out controlmode.Mode) bool {
	if in.ControlMode == controlmode.Unset && out.ControlMode == controlmode.Unset {
		c.in, c.out = in, out
		return true
	}
	if out.ControlMode != controlmode.Speed {
		return false
	}
	switch in.ControlMode {
	case controlmode.Hover, controlmode.Position, controlmode.Speed, controlmode.Trajectory:
	default:
		return false
	}

	c.in, c.out = in, out
	c.hoverSet = false
	if in.IsHover() && c.hasState {
		c.hoverPose = c.pose
		c.hoverSet = true
	}
	return true
}

// ComputeOutput returns the speed command for the current mode. The pose
// output is the setpoint being tracked; thrust is left at zero.
func (c *Controller) ComputeOutput() controller.Output {
	var out controller.Output
	if !c.hasState {
		return out
	}

	var v motion.Vector3
	setpoint := c.pose
	yawRef := c.pose.Orientation.Yaw()

	switch c.in.ControlMode {
	case controlmode.Hover:
		setpoint = c.hoverPose
		v = c.positionTerm(c.hoverPose.Position)
		yawRef = c.hoverPose.Orientation.Yaw()
	case controlmode.Position:
		setpoint = c.refPose
		v = c.positionTerm(c.refPose.Position)
		yawRef = c.refPose.Orientation.Yaw()
	case controlmode.Speed:
		v = c.refTwist.Linear
		yawRef = c.refPose.Orientation.Yaw()
	case controlmode.Trajectory:
		setpoint.Position = c.refTraj.Position
		setpoint.Orientation = motion.QuaternionFromYaw(c.refTraj.Yaw)
		p := c.positionTerm(c.refTraj.Position)
		v = motion.Vector3{
			X: c.refTraj.Velocity.X + p.X,
			Y: c.refTraj.Velocity.Y + p.Y,
			Z: c.refTraj.Velocity.Z + p.Z,
		}
		yawRef = c.refTraj.Yaw
	}

	out.Pose = setpoint
	out.Twist.Header.FrameID = "earth"
	out.Twist.Linear = c.limit(v)
	if c.in.YawMode == controlmode.YawSpeed {
		out.Twist.Angular.Z = c.refTwist.Angular.Z
	} else {
		out.Twist.Angular.Z = c.params.KpYaw * wrapAngle(yawRef-c.pose.Orientation.Yaw())
	}
	return out
}

func (c *Controller) positionTerm(target motion.Vector3) motion.Vector3 {
	return motion.Vector3{
		X: c.params.Kp * (target.X - c.pose.Position.X),
		Y: c.params.Kp * (target.Y - c.pose.Position.Y),
		Z: c.params.Kp * (target.Z - c.pose.Position.Z),
	}
}

func (c *Controller) limit(v motion.Vector3) motion.Vector3 {
	n := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if c.params.MaxSpeed == 0 || n <= c.params.MaxSpeed {
		return v
	}
	s := c.params.MaxSpeed / n
	return motion.Vector3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// wrapAngle maps a into [-pi, pi]. Non-finite input gives 0.
func wrapAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	return math.Remainder(a, 2*math.Pi)
}
