// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package platform

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
)

// ErrNoCapabilities is returned when the platform answers with an empty list.
var ErrNoCapabilities = errors.New("platform reported no available control modes")

// CapabilityCache fetches the platform's accepted modes once. The first
// non-empty answer is kept for the lifetime of the process.
type CapabilityCache struct {
	client Client
	debug  bool
	modes  []controlmode.Code
}

func NewCapabilityCache(client Client, debug bool) *CapabilityCache {
	return &CapabilityCache{client: client, debug: debug}
}

// Ensure returns nil when the capability list is available, fetching it if
// the cache is empty. The list is cached verbatim, in platform order.
func (c *CapabilityCache) Ensure(ctx context.Context) error {
	if len(c.modes) > 0 {
		return nil
	}
	if c.debug {
		log.Println("platform: listing available control modes")
	}

	modes, err := c.client.ListControlModes(ctx)
	if err != nil {
		return fmt.Errorf("listing control modes: %w", err)
	}
	if len(modes) == 0 {
		return ErrNoCapabilities
	}

	if c.debug {
		for _, m := range modes {
			log.Printf("platform: available mode %s", m)
		}
	}
	c.modes = modes
	return nil
}

// Modes returns the cached list, nil before a successful Ensure.
func (c *CapabilityCache) Modes() []controlmode.Code {
	return c.modes
}
