// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport is the pub/sub and request/response substrate the
// controller manager talks through. Payloads are JSON documents.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrTimeout      = errors.New("transport: request timed out")
	ErrNoResponders = errors.New("transport: no responders")
	ErrClosed       = errors.New("transport: bus closed")
	ErrNotConnected = errors.New("transport: not connected")
	ErrRemote       = errors.New("transport: remote handler failed")
)

// Handler receives the payload of one published message.
type Handler func(payload []byte)

// RequestHandler answers one request. A returned error is reported to the
// requester as ErrRemote.
type RequestHandler func(ctx context.Context, payload []byte) ([]byte, error)

// Bus is the messaging substrate. Handlers may be invoked from goroutines
// owned by the implementation.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, h Handler) error
	// Request blocks until a response arrives or ctx is done.
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)
	Serve(topic string, h RequestHandler) error
	Close() error
}

// PublishJSON marshals v and publishes it on topic.
func PublishJSON(ctx context.Context, b Bus, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return b.Publish(ctx, topic, payload)
}

// RequestJSON sends req on topic and decodes the response into resp.
func RequestJSON(ctx context.Context, b Bus, topic string, req, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", topic, err)
	}
	out, err := b.Request(ctx, topic, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, resp); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", topic, err)
	}
	return nil
}

// SubscribeJSON subscribes to topic and decodes each message into a fresh T.
// Messages that fail to decode are passed to onErr, when set, and dropped.
func SubscribeJSON[T any](b Bus, topic string, h func(T), onErr func(error)) error {
	return b.Subscribe(topic, func(payload []byte) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			if onErr != nil {
				onErr(fmt.Errorf("unmarshal %s: %w", topic, err))
			}
			return
		}
		h(v)
	})
}

// ServeJSON serves topic, decoding each request into Req and encoding the
// returned Resp.
func ServeJSON[Req, Resp any](b Bus, topic string, h func(context.Context, Req) (Resp, error)) error {
	return b.Serve(topic, func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, fmt.Errorf("unmarshal %s request: %w", topic, err)
			}
		}
		resp, err := h(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	})
}

// contextError maps a finished context onto the bus error kinds.
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
