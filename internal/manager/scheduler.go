// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package manager

import (
	"context"

	"github.com/relabs-tech/controller_manager/internal/transport"
)

// Tick outcomes, used as metric labels.
const (
	tickPlatformInactive = "platform_inactive"
	tickNotEstablished   = "not_established"
	tickWaitingState     = "waiting_state"
	tickWaitingReference = "waiting_reference"
	tickDispatched       = "dispatched"
)

// tick runs one control period. Skipped ticks are not replayed.
func (m *Manager) tick(ctx context.Context) {
	outcome := m.gate()
	if outcome == "" {
		outcome = m.dispatch(ctx)
	}
	m.metrics.TicksTotal.WithLabelValues(outcome).Inc()
}

// gate returns the reason this tick must not produce a command, or "".
func (m *Manager) gate() string {
	if !m.platformActive() {
		return tickPlatformInactive
	}
	if !m.st.established {
		return tickNotEstablished
	}
	if !m.st.stateAcquired {
		m.waitingState.Printf("control: waiting for odometry")
		return tickWaitingState
	}
	return ""
}

// platformActive reports whether the last platform status says armed and
// offboard and is recent enough to be trusted.
func (m *Manager) platformActive() bool {
	p := m.st.platform
	if !p.Armed || !p.Offboard {
		return false
	}
	if m.opts.PlatformStatusTimeout > 0 && m.now().Sub(m.st.platformReceived) > m.opts.PlatformStatusTimeout {
		m.staleStatus.Printf("control: platform status older than %v, treating platform as disarmed", m.opts.PlatformStatusTimeout)
		return false
	}
	return true
}

// dispatch emits the command for this tick: the last references verbatim
// while bypassing, the control law output otherwise.
func (m *Manager) dispatch(ctx context.Context) string {
	if m.st.bypass {
		if !m.st.referenceAcquired {
			m.waitingReference.Printf("control: waiting for motion reference")
			return tickWaitingReference
		}
		m.publish(ctx, "pose", m.topics.CommandPose, m.st.refPose)
		m.publish(ctx, "twist", m.topics.CommandTwist, m.st.refTwist)
		return tickDispatched
	}

	out := m.ctrl.ComputeOutput()
	stamp := m.now()
	out.Pose.Header.Stamp = stamp
	out.Twist.Header.Stamp = stamp
	out.Thrust.Header = out.Pose.Header

	m.publish(ctx, "pose", m.topics.CommandPose, out.Pose)
	m.publish(ctx, "twist", m.topics.CommandTwist, out.Twist)
	m.publish(ctx, "thrust", m.topics.CommandThrust, out.Thrust)
	return tickDispatched
}

func (m *Manager) publish(ctx context.Context, kind, topic string, v any) {
	if err := transport.PublishJSON(ctx, m.bus, topic, v); err != nil {
		m.metrics.PublishErrors.Inc()
		m.publishFailed.Printf("control: publish %s: %v", topic, err)
		return
	}
	m.metrics.CommandsPublished.WithLabelValues(kind).Inc()
}
