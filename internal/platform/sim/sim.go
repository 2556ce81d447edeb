// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim is a simulated vehicle platform. It answers the platform
// control mode services, publishes platform info and self-localization
// streams, and integrates the actuator commands it receives.
package sim

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/motion"
	"github.com/relabs-tech/controller_manager/internal/platform"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

// DefaultModes is advertised when no mode list is configured.
var DefaultModes = []controlmode.Code{
	controlmode.CodeHover,
	0x49, // SPEED|YAW_SPEED|LOCAL_ENU
	0x65, // POSITION|YAW_ANGLE|LOCAL_ENU
}

const frameID = "earth"

type Options struct {
	Modes         []controlmode.Code
	StateInterval time.Duration
	InfoInterval  time.Duration
	Armed         bool
	Offboard      bool
	Now           func() time.Time
}

// Simulator is a point-mass vehicle driven by actuator commands.
type Simulator struct {
	bus    transport.Bus
	topics transport.Topics
	opts   Options

	mu       sync.Mutex
	mode     controlmode.Mode
	position motion.Vector3
	velocity motion.Vector3
	yaw      float64
	yawRate  float64
	last     time.Time
	commands int
}

func New(bus transport.Bus, topics transport.Topics, opts Options) *Simulator {
	if len(opts.Modes) == 0 {
		opts.Modes = DefaultModes
	}
	if opts.StateInterval <= 0 {
		opts.StateInterval = 20 * time.Millisecond
	}
	if opts.InfoInterval <= 0 {
		opts.InfoInterval = 100 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Simulator{bus: bus, topics: topics, opts: opts}
}

// Start registers the services and command subscriptions.
func (s *Simulator) Start() error {
	if err := transport.ServeJSON(s.bus, s.topics.ListControlModes, s.listControlModes); err != nil {
		return fmt.Errorf("sim: serve %s: %w", s.topics.ListControlModes, err)
	}
	if err := transport.ServeJSON(s.bus, s.topics.SetPlatformControlMode, s.setControlMode); err != nil {
		return fmt.Errorf("sim: serve %s: %w", s.topics.SetPlatformControlMode, err)
	}

	onErr := func(err error) { log.Printf("sim: %v", err) }
	if err := transport.SubscribeJSON(s.bus, s.topics.CommandPose, s.HandlePoseCommand, onErr); err != nil {
		return fmt.Errorf("sim: subscribe: %w", err)
	}
	if err := transport.SubscribeJSON(s.bus, s.topics.CommandTwist, s.HandleTwistCommand, onErr); err != nil {
		return fmt.Errorf("sim: subscribe: %w", err)
	}
	return nil
}

// Run starts the simulator and publishes its streams until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	log.Printf("sim: advertising control modes %v", s.opts.Modes)

	stateTicker := time.NewTicker(s.opts.StateInterval)
	defer stateTicker.Stop()
	infoTicker := time.NewTicker(s.opts.InfoInterval)
	defer infoTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stateTicker.C:
			if err := s.PublishState(ctx); err != nil {
				log.Printf("sim: publish state: %v", err)
			}
		case <-infoTicker.C:
			if err := s.PublishInfo(ctx); err != nil {
				log.Printf("sim: publish info: %v", err)
			}
		}
	}
}

func (s *Simulator) listControlModes(_ context.Context, _ platform.ListControlModesRequest) (platform.ListControlModesResponse, error) {
	return platform.ListControlModesResponse{ControlModes: s.opts.Modes}, nil
}

// setControlMode accepts only modes it advertises, hover with any qualifiers
// included.
func (s *Simulator) setControlMode(_ context.Context, req platform.SetControlModeRequest) (platform.SetControlModeResponse, error) {
	code := req.ControlMode.Code()
	if req.ControlMode.IsHover() {
		code = controlmode.CodeHover
	}
	for _, c := range s.opts.Modes {
		if c == code {
			s.mu.Lock()
			s.mode = req.ControlMode
			s.velocity, s.yawRate = motion.Vector3{}, 0
			s.mu.Unlock()
			log.Printf("sim: control mode set to %s", req.ControlMode)
			return platform.SetControlModeResponse{Success: true}, nil
		}
	}
	log.Printf("sim: control mode %s not supported", req.ControlMode)
	return platform.SetControlModeResponse{Success: false}, nil
}

// HandlePoseCommand places the vehicle at the commanded pose in position mode.
func (s *Simulator) HandlePoseCommand(p motion.Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands++
	if s.mode.ControlMode != controlmode.Position {
		return
	}
	s.position = p.Position
	if s.mode.YawMode == controlmode.YawAngle {
		s.yaw = p.Orientation.Yaw()
	}
}

// HandleTwistCommand sets the velocity integrated by the next step in speed
// mode.
func (s *Simulator) HandleTwistCommand(t motion.Twist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands++
	if s.mode.ControlMode != controlmode.Speed {
		return
	}
	s.velocity = t.Linear
	s.yawRate = t.Angular.Z
}

// Commands returns the number of actuator commands received.
func (s *Simulator) Commands() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands
}

// step advances the vehicle to now and returns its state.
func (s *Simulator) step(now time.Time) (motion.Pose, motion.Twist) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.last.IsZero() {
		dt := now.Sub(s.last).Seconds()
		s.position.X += s.velocity.X * dt
		s.position.Y += s.velocity.Y * dt
		s.position.Z += s.velocity.Z * dt
		s.yaw = math.Remainder(s.yaw+s.yawRate*dt, 2*math.Pi)
	}
	s.last = now

	h := motion.Header{Stamp: now, FrameID: frameID}
	pose := motion.Pose{Header: h, Position: s.position, Orientation: motion.QuaternionFromYaw(s.yaw)}
	twist := motion.Twist{Header: h, Linear: s.velocity, Angular: motion.Vector3{Z: s.yawRate}}
	return pose, twist
}

// PublishState publishes one pose/twist pair sharing a stamp.
func (s *Simulator) PublishState(ctx context.Context) error {
	pose, twist := s.step(s.opts.Now())
	if err := transport.PublishJSON(ctx, s.bus, s.topics.StatePose, pose); err != nil {
		return err
	}
	return transport.PublishJSON(ctx, s.bus, s.topics.StateTwist, twist)
}

// PublishInfo publishes the platform status.
func (s *Simulator) PublishInfo(ctx context.Context) error {
	s.mu.Lock()
	info := motion.PlatformInfo{
		Header:      motion.Header{Stamp: s.opts.Now(), FrameID: frameID},
		Connected:   true,
		Armed:       s.opts.Armed,
		Offboard:    s.opts.Offboard,
		ControlMode: s.mode,
	}
	s.mu.Unlock()
	return transport.PublishJSON(ctx, s.bus, s.topics.PlatformInfo, info)
}
