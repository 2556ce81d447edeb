// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/motion"
	"github.com/relabs-tech/controller_manager/internal/platform"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newSim(t *testing.T) (*Simulator, *transport.MemoryBus, transport.Topics, *fixedClock) {
	t.Helper()
	bus := transport.NewMemoryBus()
	topics := transport.NewTopics("sim")
	clk := &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New(bus, topics, Options{Armed: true, Offboard: true, Now: clk.Now})
	require.NoError(t, s.Start())
	return s, bus, topics, clk
}

func TestSim_ControlModeServices(t *testing.T) {
	_, bus, topics, _ := newSim(t)
	client := platform.NewBusClient(bus, topics)
	ctx := context.Background()

	modes, err := client.ListControlModes(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultModes, modes)

	ok, err := client.SetControlMode(ctx, controlmode.Decode(0x49))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetControlMode(ctx, controlmode.Mode{ControlMode: controlmode.Hover, YawMode: controlmode.YawSpeed})
	require.NoError(t, err)
	assert.True(t, ok, "hover qualifiers ignored")

	ok, err = client.SetControlMode(ctx, controlmode.Decode(0x35))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSim_SpeedCommandsIntegrate(t *testing.T) {
	s, bus, topics, clk := newSim(t)
	ctx := context.Background()

	_, err := platform.NewBusClient(bus, topics).SetControlMode(ctx, controlmode.Decode(0x49))
	require.NoError(t, err)

	var poses []motion.Pose
	require.NoError(t, transport.SubscribeJSON(bus, topics.StatePose, func(p motion.Pose) { poses = append(poses, p) }, nil))

	require.NoError(t, s.PublishState(ctx))
	require.NoError(t, transport.PublishJSON(ctx, bus, topics.CommandTwist, motion.Twist{
		Linear:  motion.Vector3{X: 1, Z: 0.5},
		Angular: motion.Vector3{Z: math.Pi / 2},
	}))
	clk.t = clk.t.Add(2 * time.Second)
	require.NoError(t, s.PublishState(ctx))

	require.Len(t, poses, 2)
	assert.InDelta(t, 2.0, poses[1].Position.X, 1e-9)
	assert.InDelta(t, 1.0, poses[1].Position.Z, 1e-9)
	assert.InDelta(t, math.Pi, math.Abs(poses[1].Orientation.Yaw()), 1e-9)
	assert.Equal(t, 1, s.Commands())
}

func TestSim_PoseCommandIgnoredOutsidePositionMode(t *testing.T) {
	s, _, _, clk := newSim(t)
	s.HandlePoseCommand(motion.Pose{Position: motion.Vector3{X: 5}})

	pose, _ := s.step(clk.Now())
	assert.Zero(t, pose.Position.X)

	s.mode = controlmode.Decode(0x65)
	s.HandlePoseCommand(motion.Pose{Position: motion.Vector3{X: 5}, Orientation: motion.QuaternionFromYaw(1)})
	pose, _ = s.step(clk.Now())
	assert.Equal(t, 5.0, pose.Position.X)
	assert.InDelta(t, 1.0, pose.Orientation.Yaw(), 1e-9)
}

func TestSim_PublishInfo(t *testing.T) {
	s, bus, topics, _ := newSim(t)

	var got motion.PlatformInfo
	require.NoError(t, transport.SubscribeJSON(bus, topics.PlatformInfo, func(i motion.PlatformInfo) { got = i }, nil))
	require.NoError(t, s.PublishInfo(context.Background()))

	assert.True(t, got.Connected)
	assert.True(t, got.Armed)
	assert.True(t, got.Offboard)
}
