// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus is an in-process Bus. Publish delivers synchronously on the
// caller's goroutine; Request runs the service handler on its own goroutine
// so the caller's deadline is honoured.
type MemoryBus struct {
	mu       sync.RWMutex
	subs     map[string][]Handler
	services map[string]RequestHandler
	closed   bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:     make(map[string][]Handler),
		services: make(map[string]RequestHandler),
	}
}

func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	handlers := append([]Handler(nil), b.subs[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		h(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.subs[topic] = append(b.subs[topic], h)
	return nil
}

func (b *MemoryBus) Serve(topic string, h RequestHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if _, exists := b.services[topic]; exists {
		return fmt.Errorf("transport: service %q already served", topic)
	}
	b.services[topic] = h
	return nil
}

func (b *MemoryBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, ErrClosed
	}
	h, ok := b.services[topic]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrNoResponders
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h(ctx, payload)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRemote, r.err)
		}
		return r.out, nil
	case <-ctx.Done():
		return nil, contextError(ctx)
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]Handler)
	b.services = make(map[string]RequestHandler)
	return nil
}
