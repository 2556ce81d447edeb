// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package manager

import (
	"errors"

	"github.com/relabs-tech/controller_manager/internal/platform"
)

// Negotiation failure kinds. Every one is terminal for the request that hit
// it; nothing is retried until a new request arrives.
var (
	ErrCapabilityFetch    = errors.New("listing platform control modes failed")
	ErrNoCapabilities     = platform.ErrNoCapabilities
	ErrNoOutputMode       = errors.New("no suitable output control mode found")
	ErrInputUnsuitable    = errors.New("input control mode is not suitable for this controller")
	ErrPlatformRejected   = errors.New("platform rejected the control mode")
	ErrPlatformTimeout    = errors.New("platform request timed out")
	ErrControllerRejected = errors.New("controller rejected the control mode")
)

// resultLabel names the outcome of a negotiation for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "established"
	case errors.Is(err, ErrPlatformTimeout):
		return "platform_timeout"
	case errors.Is(err, ErrNoCapabilities):
		return "no_capabilities"
	case errors.Is(err, ErrCapabilityFetch):
		return "capability_fetch"
	case errors.Is(err, ErrNoOutputMode):
		return "no_output_mode"
	case errors.Is(err, ErrInputUnsuitable):
		return "input_unsuitable"
	case errors.Is(err, ErrPlatformRejected):
		return "platform_rejected"
	case errors.Is(err, ErrControllerRejected):
		return "controller_rejected"
	default:
		return "error"
	}
}
