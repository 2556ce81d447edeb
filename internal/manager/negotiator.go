// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package manager

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

// negotiate runs one control mode negotiation for the desired input mode.
// It blocks on platform round trips, each bounded by the request timeout,
// and the event loop (ticks included) stalls for its duration.
func (m *Manager) negotiate(ctx context.Context, desired controlmode.Mode) (err error) {
	start := m.now()
	defer func() {
		m.metrics.NegotiationsTotal.WithLabelValues(resultLabel(err)).Inc()
		m.metrics.NegotiationDuration.Observe(m.now().Sub(start).Seconds())
		m.metrics.SetNegotiationState(m.st.established, m.st.bypass)
		if err != nil {
			log.Printf("negotiation: %s refused: %v", desired, err)
		}
	}()

	m.st.established = false

	var want controlmode.Code
	if desired.IsHover() {
		want = controlmode.CodeHover
	} else {
		want = desired.Code()
	}

	if err := m.ensureCapabilities(ctx); err != nil {
		return err
	}

	var out controlmode.Code
	if m.opts.UseBypass {
		out, m.st.bypass = m.tryBypass(want)
	} else {
		m.st.bypass = false
	}

	if !m.st.bypass {
		var ok bool
		if out, ok = m.findOutputMode(); !ok {
			return ErrNoOutputMode
		}
		if !m.checkSuitability(want, out) {
			return ErrInputUnsuitable
		}
	}

	outMode := controlmode.Decode(out)
	if err := m.setPlatformMode(ctx, outMode); err != nil {
		return err
	}

	m.st.inputMode = desired
	m.st.outputMode = outMode

	if m.st.bypass {
		log.Printf("negotiation: bypassing controller, input %s, output %s", desired, outMode)
		m.st.established = m.ctrl.SetMode(controlmode.Mode{}, controlmode.Mode{})
		if !m.st.established {
			return ErrControllerRejected
		}
		return nil
	}

	log.Printf("negotiation: input %s, output %s", desired, outMode)
	m.st.established = m.ctrl.SetMode(desired, outMode)

	// Wait for fresh data before the first command in the new mode.
	m.st.stateAcquired = false
	m.st.referenceAcquired = false

	if !m.st.established {
		return ErrControllerRejected
	}
	return nil
}

func (m *Manager) ensureCapabilities(ctx context.Context) error {
	pctx, cancel := m.platformContext(ctx)
	defer cancel()

	err := m.caps.Ensure(pctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoCapabilities):
		return err
	case isTimeout(err):
		return fmt.Errorf("%w: %v", ErrPlatformTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrCapabilityFetch, err)
	}
}

// tryBypass reports whether the platform accepts the desired mode as is.
// Unset and hover never bypass the controller.
func (m *Manager) tryBypass(want controlmode.Code) (controlmode.Code, bool) {
	if want.IsUnsetOrHover() {
		return 0, false
	}
	match := controlmode.BestMatch(want, m.caps.Modes(), controlmode.MatchAll)
	return match, match != controlmode.CodeUnset
}

// findOutputMode picks the mode the platform will be asked to run. A
// preferred mode the platform supports wins; otherwise the last controller
// output mode with a platform match is used.
func (m *Manager) findOutputMode() (controlmode.Code, bool) {
	platformModes := m.caps.Modes()
	if m.opts.PreferredOutputMode != controlmode.CodeUnset {
		if match := controlmode.BestMatch(m.opts.PreferredOutputMode, platformModes, controlmode.MatchAll); match != controlmode.CodeUnset {
			return match, true
		}
	}

	var common controlmode.Code
	for _, out := range m.outputs {
		if out.IsUnsetOrHover() {
			continue
		}
		common = controlmode.BestMatch(out, platformModes, controlmode.MatchAll)
	}
	return common, common != controlmode.CodeUnset
}

// checkSuitability reports whether the controller accepts want as input
// while driving the platform in out.
func (m *Manager) checkSuitability(want, out controlmode.Code) bool {
	found := false
	for _, in := range m.inputs {
		if want.Class() == controlmode.CodeHover && in.Class() == controlmode.CodeHover {
			return true
		}
		if in == want {
			found = true
			break
		}
	}

	if want.Class() < out.Level() {
		log.Printf("negotiation: input mode %s has lower level than output mode %s", want, out)
		return false
	}
	return found
}

func (m *Manager) setPlatformMode(ctx context.Context, mode controlmode.Mode) error {
	pctx, cancel := m.platformContext(ctx)
	defer cancel()

	ok, err := m.platform.SetControlMode(pctx, mode)
	switch {
	case err != nil && isTimeout(err):
		return fmt.Errorf("%w: %v", ErrPlatformTimeout, err)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrPlatformRejected, err)
	case !ok:
		return ErrPlatformRejected
	}
	return nil
}

func (m *Manager) platformContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.opts.PlatformRequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.opts.PlatformRequestTimeout)
}

func isTimeout(err error) bool {
	return errors.Is(err, transport.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
