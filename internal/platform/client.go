// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package platform talks to the vehicle platform: its control mode services
// and the cached list of modes it accepts.
package platform

import (
	"context"
	"fmt"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
	"github.com/relabs-tech/controller_manager/internal/transport"
)

// SetControlModeRequest is the payload of both "set control mode" services
// (the controller's and the platform's).
type SetControlModeRequest struct {
	ControlMode controlmode.Mode `json:"control_mode"`
}

// SetControlModeResponse answers a SetControlModeRequest.
type SetControlModeResponse struct {
	Success bool `json:"success"`
}

// ListControlModesRequest has no fields.
type ListControlModesRequest struct{}

// ListControlModesResponse carries the packed codes the platform accepts.
type ListControlModesResponse struct {
	ControlModes []controlmode.Code `json:"control_modes"`
}

// Client is the outbound request/response surface of the platform.
type Client interface {
	ListControlModes(ctx context.Context) ([]controlmode.Code, error)
	SetControlMode(ctx context.Context, mode controlmode.Mode) (bool, error)
}

// BusClient implements Client over a transport.Bus.
type BusClient struct {
	bus    transport.Bus
	topics transport.Topics
}

func NewBusClient(bus transport.Bus, topics transport.Topics) *BusClient {
	return &BusClient{bus: bus, topics: topics}
}

func (c *BusClient) ListControlModes(ctx context.Context) ([]controlmode.Code, error) {
	var resp ListControlModesResponse
	if err := transport.RequestJSON(ctx, c.bus, c.topics.ListControlModes, ListControlModesRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("list control modes: %w", err)
	}
	return resp.ControlModes, nil
}

func (c *BusClient) SetControlMode(ctx context.Context, mode controlmode.Mode) (bool, error) {
	var resp SetControlModeResponse
	req := SetControlModeRequest{ControlMode: mode}
	if err := transport.RequestJSON(ctx, c.bus, c.topics.SetPlatformControlMode, req, &resp); err != nil {
		return false, fmt.Errorf("set platform control mode %s: %w", mode, err)
	}
	return resp.Success, nil
}
