// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package statesync joins the pose and twist measurement streams into one
// state sample by approximate timestamp.
package statesync

import (
	"time"

	"github.com/relabs-tech/controller_manager/internal/motion"
)

// DefaultQueueSize is the number of pending samples kept per stream.
const DefaultQueueSize = 5

// Sample is one joined state measurement.
type Sample struct {
	Pose  motion.Pose
	Twist motion.Twist
}

// Synchronizer pairs poses and twists whose stamps differ by at most
// maxSkew. It is not safe for concurrent use; the owner feeds it from a
// single goroutine.
type Synchronizer struct {
	queueSize int
	maxSkew   time.Duration
	onSample  func(Sample)

	poses  []motion.Pose
	twists []motion.Twist

	dropped int
}

// New returns a Synchronizer calling onSample for every matched pair.
// queueSize <= 0 selects DefaultQueueSize; maxSkew <= 0 accepts any skew,
// pairing the closest stamps available.
func New(queueSize int, maxSkew time.Duration, onSample func(Sample)) *Synchronizer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Synchronizer{
		queueSize: queueSize,
		maxSkew:   maxSkew,
		onSample:  onSample,
	}
}

// AddPose queues a pose measurement and emits any pair it completes.
func (s *Synchronizer) AddPose(p motion.Pose) {
	s.poses = append(s.poses, p)
	if len(s.poses) > s.queueSize {
		s.poses = s.poses[len(s.poses)-s.queueSize:]
		s.dropped++
	}
	s.match()
}

// AddTwist queues a twist measurement and emits any pair it completes.
func (s *Synchronizer) AddTwist(t motion.Twist) {
	s.twists = append(s.twists, t)
	if len(s.twists) > s.queueSize {
		s.twists = s.twists[len(s.twists)-s.queueSize:]
		s.dropped++
	}
	s.match()
}

// Dropped returns how many samples were evicted unmatched.
func (s *Synchronizer) Dropped() int {
	return s.dropped
}

// Pending returns the number of queued poses and twists.
func (s *Synchronizer) Pending() (poses, twists int) {
	return len(s.poses), len(s.twists)
}

// match emits the closest pair within tolerance, then discards the pair and
// everything queued before it on both streams. It repeats until no pair
// qualifies.
func (s *Synchronizer) match() {
	for {
		bi, bj := -1, -1
		var best time.Duration
		for i := range s.poses {
			for j := range s.twists {
				d := absDuration(s.poses[i].Header.Stamp.Sub(s.twists[j].Header.Stamp))
				if s.maxSkew > 0 && d > s.maxSkew {
					continue
				}
				if bi < 0 || d < best {
					bi, bj, best = i, j, d
				}
			}
		}
		if bi < 0 {
			return
		}

		sample := Sample{Pose: s.poses[bi], Twist: s.twists[bj]}
		s.dropped += bi + bj
		s.poses = append(s.poses[:0], s.poses[bi+1:]...)
		s.twists = append(s.twists[:0], s.twists[bj+1:]...)
		if s.onSample != nil {
			s.onSample(sample)
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
