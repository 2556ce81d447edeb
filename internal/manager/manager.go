// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package manager negotiates a control mode between a control law and the
// vehicle platform, then drives the control law on a fixed period and
// publishes its commands.
//
// All manager state is owned by the goroutine running Run. Bus callbacks and
// negotiation requests are posted to it as events, so the negotiator, the
// scheduler and the dispatcher never run concurrently.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relabs-tech/controller_manager/internal/controller"
	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/logging"
	"github.com/relabs-tech/controller_manager/internal/metrics"
	"github.com/relabs-tech/controller_manager/internal/motion"
	"github.com/relabs-tech/controller_manager/internal/platform"
	"github.com/relabs-tech/controller_manager/internal/statesync"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

// ErrStopped is returned for requests made after Run has returned.
var ErrStopped = errors.New("manager stopped")

const (
	DefaultControlPeriod = 10 * time.Millisecond
	eventQueueSize       = 64
)

// Options configures negotiation and scheduling.
type Options struct {
	// Control modes the control law accepts as input and produces as output.
	InputModes  []controlmode.Code
	OutputModes []controlmode.Code

	UseBypass           bool
	PreferredOutputMode controlmode.Code

	ControlPeriod          time.Duration
	PlatformRequestTimeout time.Duration // 0 waits as long as the caller's context
	PlatformStatusTimeout  time.Duration // 0 trusts the last status indefinitely
	NoticeInterval         time.Duration

	SyncQueueSize int
	SyncMaxSkew   time.Duration

	Debug bool
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Bus        transport.Bus
	Topics     transport.Topics
	Controller controller.Controller
	Platform   platform.Client  // nil talks to the platform over Bus
	Metrics    *metrics.Metrics // nil keeps unregistered collectors
	Now        func() time.Time // nil uses time.Now
}

// Manager is the controller manager. Create it with New and start it with Run.
type Manager struct {
	opts    Options
	bus     transport.Bus
	topics  transport.Topics
	ctrl    controller.Controller
	refs    referenceUpdaters
	metrics *metrics.Metrics
	now     func() time.Time

	platform  platform.Client
	caps      *platform.CapabilityCache
	inputs    controlmode.List
	outputs   controlmode.List
	stateSync *statesync.Synchronizer

	// owned by the Run goroutine
	st state

	events  chan func()
	stopped chan struct{}

	waitingState     *logging.Notice
	waitingReference *logging.Notice
	staleStatus      *logging.Notice
	publishFailed    *logging.Notice
	dropped          *logging.Notice

	statusMu sync.RWMutex
	status   Status
}

// referenceUpdaters holds the optional reference hooks the control law
// implements; nil entries are skipped.
type referenceUpdaters struct {
	pose       controller.PoseReferenceUpdater
	twist      controller.TwistReferenceUpdater
	trajectory controller.TrajectoryReferenceUpdater
	thrust     controller.ThrustReferenceUpdater
}

// New validates deps and opts and returns a Manager ready to Run.
func New(deps Deps, opts Options) (*Manager, error) {
	if deps.Bus == nil {
		return nil, fmt.Errorf("manager: bus is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("manager: controller is required")
	}
	if opts.ControlPeriod <= 0 {
		opts.ControlPeriod = DefaultControlPeriod
	}

	m := &Manager{
		opts:     opts,
		bus:      deps.Bus,
		topics:   deps.Topics,
		ctrl:     deps.Controller,
		metrics:  deps.Metrics,
		now:      deps.Now,
		platform: deps.Platform,
		inputs:   controlmode.NewSortedList(opts.InputModes),
		outputs:  controlmode.NewSortedList(opts.OutputModes),
		events:   make(chan func(), eventQueueSize),
		stopped:  make(chan struct{}),

		waitingState:     logging.NewNotice(opts.NoticeInterval),
		waitingReference: logging.NewNotice(opts.NoticeInterval),
		staleStatus:      logging.NewNotice(opts.NoticeInterval),
		publishFailed:    logging.NewNotice(opts.NoticeInterval),
		dropped:          logging.NewNotice(opts.NoticeInterval),
	}
	if m.metrics == nil {
		m.metrics = metrics.New(nil)
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.platform == nil {
		m.platform = platform.NewBusClient(deps.Bus, deps.Topics)
	}
	m.caps = platform.NewCapabilityCache(m.platform, opts.Debug)
	m.stateSync = statesync.New(opts.SyncQueueSize, opts.SyncMaxSkew, m.handleState)

	m.refs.pose, _ = deps.Controller.(controller.PoseReferenceUpdater)
	m.refs.twist, _ = deps.Controller.(controller.TwistReferenceUpdater)
	m.refs.trajectory, _ = deps.Controller.(controller.TrajectoryReferenceUpdater)
	m.refs.thrust, _ = deps.Controller.(controller.ThrustReferenceUpdater)

	m.refreshStatus()
	return m, nil
}

// Run subscribes to the state, reference and platform streams, serves the
// set control mode endpoint and runs the event loop until ctx is done.
// Run must be called once.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.stopped)

	if err := m.subscribe(); err != nil {
		return err
	}

	ticker := time.NewTicker(m.opts.ControlPeriod)
	defer ticker.Stop()

	log.Printf("control: running, period %v, bypass %v, inputs %v, outputs %v",
		m.opts.ControlPeriod, m.opts.UseBypass, m.inputs, m.outputs)

	for {
		select {
		case <-ctx.Done():
			log.Println("control: stopping")
			return nil
		case fn := <-m.events:
			fn()
		case <-ticker.C:
			m.tick(ctx)
		}
		m.refreshStatus()
	}
}

func (m *Manager) subscribe() error {
	onErr := func(err error) {
		m.metrics.MessagesDropped.WithLabelValues("decode").Inc()
		m.dropped.Printf("control: %v", err)
	}

	err := errors.Join(
		transport.SubscribeJSON(m.bus, m.topics.StatePose, func(p motion.Pose) {
			m.post(func() { m.addPose(p) })
		}, onErr),
		transport.SubscribeJSON(m.bus, m.topics.StateTwist, func(t motion.Twist) {
			m.post(func() { m.addTwist(t) })
		}, onErr),
		transport.SubscribeJSON(m.bus, m.topics.ReferencePose, func(p motion.Pose) {
			m.post(func() { m.handlePoseReference(p) })
		}, onErr),
		transport.SubscribeJSON(m.bus, m.topics.ReferenceTwist, func(t motion.Twist) {
			m.post(func() { m.handleTwistReference(t) })
		}, onErr),
		transport.SubscribeJSON(m.bus, m.topics.ReferenceTrajectory, func(tp motion.TrajectoryPoint) {
			m.post(func() { m.handleTrajectoryReference(tp) })
		}, onErr),
		transport.SubscribeJSON(m.bus, m.topics.ReferenceThrust, func(th motion.Thrust) {
			m.post(func() { m.handleThrustReference(th) })
		}, onErr),
		transport.SubscribeJSON(m.bus, m.topics.PlatformInfo, func(info motion.PlatformInfo) {
			m.post(func() { m.handlePlatformInfo(info) })
		}, onErr),
	)
	if err != nil {
		return fmt.Errorf("manager: subscribe: %w", err)
	}

	if err := transport.ServeJSON(m.bus, m.topics.SetControlMode, m.serveSetControlMode); err != nil {
		return fmt.Errorf("manager: serve %s: %w", m.topics.SetControlMode, err)
	}
	return nil
}

// post queues fn on the event loop. Stream messages are dropped when the
// queue is full, e.g. while a negotiation waits on the platform.
func (m *Manager) post(fn func()) {
	select {
	case m.events <- fn:
	default:
		m.metrics.MessagesDropped.WithLabelValues("queue_full").Inc()
		m.dropped.Printf("control: event queue full, dropping message")
	}
}

// SetControlMode negotiates mode on the event loop and waits for the
// outcome. A nil error means the mode is established.
func (m *Manager) SetControlMode(ctx context.Context, mode controlmode.Mode) error {
	done := make(chan error, 1)
	select {
	case m.events <- func() {
		err := m.negotiate(ctx, mode)
		m.refreshStatus()
		done <- err
	}:
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) serveSetControlMode(ctx context.Context, req platform.SetControlModeRequest) (platform.SetControlModeResponse, error) {
	err := m.SetControlMode(ctx, req.ControlMode)
	return platform.SetControlModeResponse{Success: err == nil}, nil
}

// Mode returns the input mode of the last negotiation that reached the
// platform.
func (m *Manager) Mode() controlmode.Mode {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status.InputMode
}

// Status returns a snapshot taken after the last event loop iteration.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

func (m *Manager) refreshStatus() {
	s := Status{
		Established:       m.st.established,
		Bypass:            m.st.bypass,
		InputMode:         m.st.inputMode,
		OutputMode:        m.st.outputMode,
		StateAcquired:     m.st.stateAcquired,
		ReferenceAcquired: m.st.referenceAcquired,
		Platform:          m.st.platform,
		PlatformReceived:  m.st.platformReceived,
		PlatformModes:     m.caps.Modes(),
	}
	m.statusMu.Lock()
	m.status = s
	m.statusMu.Unlock()
}
