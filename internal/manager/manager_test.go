// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/controller_manager/internal/controller"
	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/motion"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

var (
	hover       = controlmode.Mode{ControlMode: controlmode.Hover}
	positionENU = controlmode.Decode(0x65) // POSITION|YAW_ANGLE|LOCAL_ENU
	speedENU    = controlmode.Decode(0x49) // SPEED|YAW_SPEED|LOCAL_ENU
)

type fakePlatform struct {
	modes   []controlmode.Code
	listErr error
	setOK   bool
	setErr  error
	block   bool

	listCalls int
	setCalls  []controlmode.Mode
}

func (f *fakePlatform) ListControlModes(ctx context.Context) ([]controlmode.Code, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.modes, nil
}

func (f *fakePlatform) SetControlMode(ctx context.Context, mode controlmode.Mode) (bool, error) {
	f.setCalls = append(f.setCalls, mode)
	if f.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return f.setOK, f.setErr
}

type fakeController struct {
	accept bool
	out    controller.Output

	setModeCalls [][2]controlmode.Mode
	stateUpdates int
	poseRefs     int
	twistRefs    int
}

func (f *fakeController) UpdateState(motion.Pose, motion.Twist) { f.stateUpdates++ }
func (f *fakeController) ComputeOutput() controller.Output      { return f.out }
func (f *fakeController) UpdatePoseReference(motion.Pose)       { f.poseRefs++ }
func (f *fakeController) UpdateTwistReference(motion.Twist)     { f.twistRefs++ }

func (f *fakeController) SetMode(in, out controlmode.Mode) bool {
	f.setModeCalls = append(f.setModeCalls, [2]controlmode.Mode{in, out})
	return f.accept
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	m     *Manager
	bus   *transport.MemoryBus
	plat  *fakePlatform
	ctrl  *fakeController
	clock *clock

	mu        sync.Mutex
	published map[string]int
	poses     []motion.Pose
	thrusts   []motion.Thrust
}

func newFixture(t *testing.T, opts Options, plat *fakePlatform) *fixture {
	t.Helper()
	f := &fixture{
		bus:       transport.NewMemoryBus(),
		plat:      plat,
		ctrl:      &fakeController{accept: true},
		clock:     &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		published: make(map[string]int),
	}
	topics := transport.NewTopics("drone0")

	deps := Deps{Bus: f.bus, Topics: topics, Controller: f.ctrl, Now: f.clock.Now}
	if plat != nil {
		deps.Platform = plat
	}
	m, err := New(deps, opts)
	require.NoError(t, err)
	f.m = m

	require.NoError(t, transport.SubscribeJSON(f.bus, topics.CommandPose, func(p motion.Pose) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published["pose"]++
		f.poses = append(f.poses, p)
	}, nil))
	require.NoError(t, f.bus.Subscribe(topics.CommandTwist, func([]byte) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published["twist"]++
	}))
	require.NoError(t, transport.SubscribeJSON(f.bus, topics.CommandThrust, func(th motion.Thrust) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published["thrust"]++
		f.thrusts = append(f.thrusts, th)
	}, nil))
	return f
}

func (f *fixture) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[kind]
}

func (f *fixture) total() int {
	return f.count("pose") + f.count("twist") + f.count("thrust")
}

// ready puts the manager in a state where only the condition under test
// decides whether a tick publishes.
func (f *fixture) ready(bypass bool) {
	f.m.st.established = true
	f.m.st.bypass = bypass
	f.m.st.stateAcquired = true
	f.m.handlePlatformInfo(motion.PlatformInfo{Armed: true, Offboard: true})
}

func ticks(m *Manager, outcome string) float64 {
	return testutil.ToFloat64(m.metrics.TicksTotal.WithLabelValues(outcome))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Deps{Controller: &fakeController{}}, Options{})
	assert.Error(t, err)
	_, err = New(Deps{Bus: transport.NewMemoryBus()}, Options{})
	assert.Error(t, err)

	m, err := New(Deps{Bus: transport.NewMemoryBus(), Controller: &fakeController{}}, Options{OutputModes: []controlmode.Code{0x49, 0x45}})
	require.NoError(t, err)
	assert.Equal(t, DefaultControlPeriod, m.opts.ControlPeriod)
	assert.Equal(t, controlmode.List{0x45, 0x49}, m.outputs)
}

func TestNegotiate_HoverInput(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{0x20, 0x30}, setOK: true}
	f := newFixture(t, Options{
		InputModes:  []controlmode.Code{controlmode.CodeHover},
		OutputModes: []controlmode.Code{0x20},
	}, plat)

	// Qualifiers of a hover request are ignored.
	req := controlmode.Mode{ControlMode: controlmode.Hover, YawMode: controlmode.YawSpeed, ReferenceFrame: controlmode.FrameBodyFLU}
	require.NoError(t, f.m.negotiate(context.Background(), req))

	assert.True(t, f.m.st.established)
	assert.False(t, f.m.st.bypass)
	assert.Equal(t, controlmode.Decode(0x20), f.m.st.outputMode)
	assert.Equal(t, req, f.m.st.inputMode)
	assert.Equal(t, []controlmode.Mode{controlmode.Decode(0x20)}, plat.setCalls)
	require.Len(t, f.ctrl.setModeCalls, 1)
	assert.Equal(t, [2]controlmode.Mode{req, controlmode.Decode(0x20)}, f.ctrl.setModeCalls[0])
}

func TestNegotiate_Bypass(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{0x49, 0x65}, setOK: true}
	f := newFixture(t, Options{
		InputModes:  []controlmode.Code{0x65},
		OutputModes: []controlmode.Code{0x49},
		UseBypass:   true,
	}, plat)

	require.NoError(t, f.m.negotiate(context.Background(), positionENU))

	assert.True(t, f.m.st.established)
	assert.True(t, f.m.st.bypass)
	assert.Equal(t, positionENU, f.m.st.outputMode)
	assert.Equal(t, [2]controlmode.Mode{{}, {}}, f.ctrl.setModeCalls[0], "control law is parked in unset")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.metrics.BypassActive))
}

func TestNegotiate_BypassDisabled(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{0x49, 0x65}, setOK: true}
	f := newFixture(t, Options{
		InputModes:  []controlmode.Code{0x65},
		OutputModes: []controlmode.Code{0x49},
	}, plat)

	require.NoError(t, f.m.negotiate(context.Background(), positionENU))

	assert.False(t, f.m.st.bypass)
	assert.Equal(t, speedENU, f.m.st.outputMode)
	assert.Equal(t, [2]controlmode.Mode{positionENU, speedENU}, f.ctrl.setModeCalls[0])
}

func TestNegotiate_HoverNeverBypasses(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{controlmode.CodeHover, 0x49}, setOK: true}
	f := newFixture(t, Options{
		InputModes:  []controlmode.Code{controlmode.CodeHover},
		OutputModes: []controlmode.Code{0x49},
		UseBypass:   true,
	}, plat)

	require.NoError(t, f.m.negotiate(context.Background(), hover))
	assert.False(t, f.m.st.bypass)
	assert.Equal(t, speedENU, f.m.st.outputMode)
}

func TestNegotiate_EmptyCapabilities(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{}, setOK: true}
	f := newFixture(t, Options{InputModes: []controlmode.Code{0x65}, OutputModes: []controlmode.Code{0x49}}, plat)
	f.m.st.established = true

	err := f.m.negotiate(context.Background(), positionENU)
	assert.ErrorIs(t, err, ErrNoCapabilities)
	assert.False(t, f.m.st.established)
	assert.Empty(t, plat.setCalls)

	// Nothing was cached, so the next request asks again.
	_ = f.m.negotiate(context.Background(), positionENU)
	assert.Equal(t, 2, plat.listCalls)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.metrics.NegotiationsTotal.WithLabelValues("no_capabilities")))
}

func TestNegotiate_CapabilitiesFetchedOnce(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{0x49}, setOK: true}
	f := newFixture(t, Options{InputModes: []controlmode.Code{0x65}, OutputModes: []controlmode.Code{0x49}}, plat)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.m.negotiate(context.Background(), positionENU))
	}
	assert.Equal(t, 1, plat.listCalls)
}

func TestNegotiate_CapabilityFetchError(t *testing.T) {
	plat := &fakePlatform{listErr: errors.New("connection refused")}
	f := newFixture(t, Options{InputModes: []controlmode.Code{0x65}, OutputModes: []controlmode.Code{0x49}}, plat)

	err := f.m.negotiate(context.Background(), positionENU)
	assert.ErrorIs(t, err, ErrCapabilityFetch)
	assert.False(t, f.m.st.established)
}

func TestNegotiate_OutputSelection(t *testing.T) {
	tests := []struct {
		name      string
		outputs   []controlmode.Code
		platform  []controlmode.Code
		preferred controlmode.Code
		want      controlmode.Code
		wantErr   error
	}{
		{"last platform match wins", []controlmode.Code{0x45, 0x49}, []controlmode.Code{0x45, 0x49}, 0, 0x49, nil},
		{"preferred mode takes priority", []controlmode.Code{0x45, 0x49}, []controlmode.Code{0x45, 0x49}, 0x45, 0x45, nil},
		{"unsupported preference is ignored", []controlmode.Code{0x45, 0x49}, []controlmode.Code{0x45, 0x49}, 0x4A, 0x49, nil},
		{"hover and unset outputs skipped", []controlmode.Code{0x00, 0x10, 0x49}, []controlmode.Code{0x00, 0x10, 0x49}, 0, 0x49, nil},
		{"trailing output without match clears the candidate", []controlmode.Code{0x45, 0x49, 0x4A}, []controlmode.Code{0x45, 0x49}, 0, 0, ErrNoOutputMode},
		{"no common mode", []controlmode.Code{0x49}, []controlmode.Code{0x30}, 0, 0, ErrNoOutputMode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plat := &fakePlatform{modes: tc.platform, setOK: true}
			f := newFixture(t, Options{
				InputModes:          []controlmode.Code{0x65},
				OutputModes:         tc.outputs,
				PreferredOutputMode: tc.preferred,
			}, plat)

			err := f.m.negotiate(context.Background(), positionENU)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, plat.setCalls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, controlmode.Decode(tc.want), f.m.st.outputMode)
		})
	}
}

func TestCheckSuitability(t *testing.T) {
	m, err := New(Deps{Bus: transport.NewMemoryBus(), Controller: &fakeController{}}, Options{
		InputModes: []controlmode.Code{0x15, 0x49, 0x65},
	})
	require.NoError(t, err)

	assert.True(t, m.checkSuitability(controlmode.CodeHover, 0x65), "hover matches any hover-class entry")
	assert.True(t, m.checkSuitability(0x65, 0x49))
	assert.False(t, m.checkSuitability(0x66, 0x49), "not declared")
	assert.False(t, m.checkSuitability(0x49, 0x65), "input below output level")
}

func TestNegotiate_InputUnsuitable(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{0x65}, setOK: true}
	f := newFixture(t, Options{
		InputModes:  []controlmode.Code{0x49},
		OutputModes: []controlmode.Code{0x65},
	}, plat)

	err := f.m.negotiate(context.Background(), speedENU)
	assert.ErrorIs(t, err, ErrInputUnsuitable)
	assert.Empty(t, plat.setCalls)
	assert.Empty(t, f.ctrl.setModeCalls)
}

func TestNegotiate_PlatformRejected(t *testing.T) {
	for name, plat := range map[string]*fakePlatform{
		"refused": {modes: []controlmode.Code{0x49}, setOK: false},
		"failed":  {modes: []controlmode.Code{0x49}, setErr: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Options{InputModes: []controlmode.Code{0x65}, OutputModes: []controlmode.Code{0x49}}, plat)

			err := f.m.negotiate(context.Background(), positionENU)
			assert.ErrorIs(t, err, ErrPlatformRejected)
			assert.False(t, f.m.st.established)
			assert.Equal(t, controlmode.Mode{}, f.m.st.inputMode, "mode not recorded")
			assert.Empty(t, f.ctrl.setModeCalls)
		})
	}
}

func TestNegotiate_PlatformTimeout(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{0x49}, block: true}
	f := newFixture(t, Options{
		InputModes:             []controlmode.Code{0x65},
		OutputModes:            []controlmode.Code{0x49},
		PlatformRequestTimeout: 20 * time.Millisecond,
	}, plat)

	err := f.m.negotiate(context.Background(), positionENU)
	assert.ErrorIs(t, err, ErrPlatformTimeout)
	assert.False(t, f.m.st.established)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.metrics.NegotiationsTotal.WithLabelValues("platform_timeout")))
}

func TestNegotiate_ControllerRejected(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{0x49}, setOK: true}
	f := newFixture(t, Options{InputModes: []controlmode.Code{0x65}, OutputModes: []controlmode.Code{0x49}}, plat)
	f.ctrl.accept = false

	err := f.m.negotiate(context.Background(), positionENU)
	assert.ErrorIs(t, err, ErrControllerRejected)
	assert.False(t, f.m.st.established)
	// The platform already switched.
	assert.Len(t, plat.setCalls, 1)
	assert.Equal(t, positionENU, f.m.st.inputMode)
}

func TestNegotiate_AcquiredFlags(t *testing.T) {
	plat := &fakePlatform{modes: []controlmode.Code{0x49, 0x65}, setOK: true}

	f := newFixture(t, Options{InputModes: []controlmode.Code{0x65}, OutputModes: []controlmode.Code{0x49}}, plat)
	f.m.st.stateAcquired, f.m.st.referenceAcquired = true, true
	require.NoError(t, f.m.negotiate(context.Background(), positionENU))
	assert.False(t, f.m.st.stateAcquired)
	assert.False(t, f.m.st.referenceAcquired)

	f = newFixture(t, Options{InputModes: []controlmode.Code{0x65}, OutputModes: []controlmode.Code{0x49}, UseBypass: true}, plat)
	f.m.st.stateAcquired, f.m.st.referenceAcquired = true, true
	require.NoError(t, f.m.negotiate(context.Background(), positionENU))
	assert.True(t, f.m.st.bypass)
	assert.True(t, f.m.st.stateAcquired, "bypass keeps cached state")
	assert.True(t, f.m.st.referenceAcquired)
}

func TestTick_Disarmed(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.ready(false)
	f.m.handlePlatformInfo(motion.PlatformInfo{Armed: false, Offboard: true})

	f.m.tick(context.Background())
	assert.Zero(t, f.total())
	assert.Equal(t, 1.0, ticks(f.m, tickPlatformInactive))

	f.m.handlePlatformInfo(motion.PlatformInfo{Armed: true, Offboard: false})
	f.m.tick(context.Background())
	assert.Zero(t, f.total())
}

func TestTick_NotEstablished(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.ready(false)
	f.m.st.established = false

	f.m.tick(context.Background())
	assert.Zero(t, f.total())
	assert.Equal(t, 1.0, ticks(f.m, tickNotEstablished))
}

func TestTick_WaitingForState(t *testing.T) {
	f := newFixture(t, Options{NoticeInterval: time.Hour}, nil)
	f.ready(false)
	f.m.st.stateAcquired = false

	for i := 0; i < 3; i++ {
		f.m.tick(context.Background())
	}
	assert.Zero(t, f.total())
	assert.Equal(t, 3.0, ticks(f.m, tickWaitingState))
}

func TestTick_BypassWithoutReference(t *testing.T) {
	f := newFixture(t, Options{NoticeInterval: time.Hour}, nil)
	f.ready(true)

	for i := 0; i < 5; i++ {
		f.m.tick(context.Background())
	}
	assert.Zero(t, f.total())
	assert.Equal(t, 5.0, ticks(f.m, tickWaitingReference))
}

func TestTick_BypassForwardsReferences(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.ready(true)

	ref := motion.Pose{Header: motion.Header{Stamp: f.clock.Now().Add(-time.Second), FrameID: "earth"}, Position: motion.Vector3{X: 3}}
	f.m.handlePoseReference(ref)
	f.m.handleTwistReference(motion.Twist{Linear: motion.Vector3{X: 1}})

	f.m.tick(context.Background())
	assert.Equal(t, 1, f.count("pose"))
	assert.Equal(t, 1, f.count("twist"))
	assert.Zero(t, f.count("thrust"), "thrust is not forwarded")
	assert.True(t, ref.Header.Stamp.Equal(f.poses[0].Header.Stamp), "forwarded verbatim")
	assert.Equal(t, ref.Position, f.poses[0].Position)
	assert.Zero(t, f.ctrl.poseRefs, "control law not fed while bypassing")
}

func TestTick_DispatchesControllerOutput(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.ready(false)
	f.ctrl.out = controller.Output{
		Pose:   motion.Pose{Header: motion.Header{FrameID: "earth"}, Position: motion.Vector3{Z: 1}},
		Twist:  motion.Twist{Linear: motion.Vector3{X: 0.5}},
		Thrust: motion.Thrust{Thrust: 9.81},
	}

	f.m.tick(context.Background())
	require.Equal(t, 1, f.count("pose"))
	require.Equal(t, 1, f.count("twist"))
	require.Equal(t, 1, f.count("thrust"))

	now := f.clock.Now()
	assert.True(t, now.Equal(f.poses[0].Header.Stamp))
	assert.True(t, now.Equal(f.thrusts[0].Header.Stamp))
	assert.Equal(t, "earth", f.thrusts[0].Header.FrameID)
	assert.Equal(t, 9.81, f.thrusts[0].Thrust)
	assert.Equal(t, 1.0, ticks(f.m, tickDispatched))
}

func TestTick_StalePlatformStatus(t *testing.T) {
	f := newFixture(t, Options{PlatformStatusTimeout: 100 * time.Millisecond}, nil)
	f.ready(false)

	f.clock.Advance(50 * time.Millisecond)
	f.m.tick(context.Background())
	assert.Equal(t, 1, f.count("pose"))

	f.clock.Advance(100 * time.Millisecond)
	f.m.tick(context.Background())
	assert.Equal(t, 1, f.count("pose"), "stale status means disarmed")
	assert.Equal(t, 1.0, ticks(f.m, tickPlatformInactive))
}

func TestHandlers_ForwardingGate(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	stamp := f.clock.Now()

	f.m.addPose(motion.Pose{Header: motion.Header{Stamp: stamp}})
	f.m.addTwist(motion.Twist{Header: motion.Header{Stamp: stamp}})
	f.m.handlePoseReference(motion.Pose{})
	assert.True(t, f.m.st.stateAcquired)
	assert.Equal(t, 1, f.ctrl.stateUpdates)
	assert.Equal(t, 1, f.ctrl.poseRefs)

	f.m.st.bypass = true
	f.m.addPose(motion.Pose{Header: motion.Header{Stamp: stamp.Add(time.Millisecond)}})
	f.m.addTwist(motion.Twist{Header: motion.Header{Stamp: stamp.Add(time.Millisecond)}})
	f.m.handleTwistReference(motion.Twist{})
	assert.Equal(t, 1, f.ctrl.stateUpdates)
	assert.Zero(t, f.ctrl.twistRefs)
	assert.True(t, f.m.st.referenceAcquired)
}

func TestHandlers_ThrustDoesNotAcquireReference(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	f.m.handleThrustReference(motion.Thrust{Thrust: 1})
	assert.False(t, f.m.st.referenceAcquired)
	assert.Equal(t, 1.0, f.m.st.refThrust.Thrust)
}

// TestRun_EndToEnd drives a manager through the bus only: a platform served
// on the bus, a negotiation request, then state and status streams.
func TestRun_EndToEnd(t *testing.T) {
	bus := transport.NewMemoryBus()
	topics := transport.NewTopics("drone0")

	require.NoError(t, transport.ServeJSON(bus, topics.ListControlModes,
		func(ctx context.Context, _ struct{}) (map[string]any, error) {
			return map[string]any{"control_modes": []int{0x49}}, nil
		}))
	require.NoError(t, transport.ServeJSON(bus, topics.SetPlatformControlMode,
		func(ctx context.Context, _ map[string]any) (map[string]bool, error) {
			return map[string]bool{"success": true}, nil
		}))

	var commands sync.WaitGroup
	commands.Add(1)
	var once sync.Once
	require.NoError(t, bus.Subscribe(topics.CommandThrust, func([]byte) { once.Do(commands.Done) }))

	m, err := New(Deps{Bus: bus, Topics: topics, Controller: &fakeController{accept: true}}, Options{
		InputModes:    []controlmode.Code{0x65},
		OutputModes:   []controlmode.Code{0x49},
		ControlPeriod: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- m.Run(ctx) }()

	var resp struct {
		Success bool `json:"success"`
	}
	require.Eventually(t, func() bool {
		reqCtx, reqCancel := context.WithTimeout(ctx, time.Second)
		defer reqCancel()
		err := transport.RequestJSON(reqCtx, bus, topics.SetControlMode,
			map[string]any{"control_mode": positionENU}, &resp)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	require.True(t, resp.Success)
	assert.Equal(t, positionENU, m.Mode())

	require.Eventually(t, func() bool {
		now := time.Now()
		_ = transport.PublishJSON(ctx, bus, topics.PlatformInfo, motion.PlatformInfo{Armed: true, Offboard: true})
		_ = transport.PublishJSON(ctx, bus, topics.StatePose, motion.Pose{Header: motion.Header{Stamp: now}})
		_ = transport.PublishJSON(ctx, bus, topics.StateTwist, motion.Twist{Header: motion.Header{Stamp: now}})
		return m.Status().StateAcquired
	}, time.Second, 5*time.Millisecond)

	waitCh := make(chan struct{})
	go func() { commands.Wait(); close(waitCh) }()
	select {
	case <-waitCh:
	case <-time.After(time.Second):
		t.Fatal("no command published")
	}

	st := m.Status()
	assert.True(t, st.Established)
	assert.Equal(t, []controlmode.Code{0x49}, st.PlatformModes)

	cancel()
	require.NoError(t, <-runDone)
	assert.ErrorIs(t, m.SetControlMode(context.Background(), positionENU), ErrStopped)
}
