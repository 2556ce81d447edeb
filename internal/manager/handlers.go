// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package manager

import (
	"github.com/relabs-tech/controller_manager/internal/motion"
	"github.com/relabs-tech/controller_manager/internal/statesync"
)

// While bypassing, state and references are cached but not forwarded to the
// control law.

func (m *Manager) addPose(p motion.Pose) {
	before := m.stateSync.Dropped()
	m.stateSync.AddPose(p)
	m.countSyncDrops(before)
}

func (m *Manager) addTwist(t motion.Twist) {
	before := m.stateSync.Dropped()
	m.stateSync.AddTwist(t)
	m.countSyncDrops(before)
}

func (m *Manager) countSyncDrops(before int) {
	if n := m.stateSync.Dropped() - before; n > 0 {
		m.metrics.MessagesDropped.WithLabelValues("unmatched_state").Add(float64(n))
	}
}

func (m *Manager) handleState(s statesync.Sample) {
	m.st.stateAcquired = true
	m.st.pose = s.Pose
	m.st.twist = s.Twist
	m.metrics.StateSamples.Inc()
	if !m.st.bypass {
		m.ctrl.UpdateState(s.Pose, s.Twist)
	}
}

func (m *Manager) handlePoseReference(p motion.Pose) {
	m.st.referenceAcquired = true
	m.st.refPose = p
	if !m.st.bypass && m.refs.pose != nil {
		m.refs.pose.UpdatePoseReference(p)
	}
}

func (m *Manager) handleTwistReference(t motion.Twist) {
	m.st.referenceAcquired = true
	m.st.refTwist = t
	if !m.st.bypass && m.refs.twist != nil {
		m.refs.twist.UpdateTwistReference(t)
	}
}

func (m *Manager) handleTrajectoryReference(tp motion.TrajectoryPoint) {
	m.st.referenceAcquired = true
	m.st.refTrajectory = tp
	if !m.st.bypass && m.refs.trajectory != nil {
		m.refs.trajectory.UpdateTrajectoryReference(tp)
	}
}

// Thrust is never forwarded in bypass, so it does not count as an acquired
// reference.
func (m *Manager) handleThrustReference(th motion.Thrust) {
	m.st.refThrust = th
	if !m.st.bypass && m.refs.thrust != nil {
		m.refs.thrust.UpdateThrustReference(th)
	}
}

func (m *Manager) handlePlatformInfo(info motion.PlatformInfo) {
	m.st.platform = info
	m.st.platformReceived = m.now()
}
