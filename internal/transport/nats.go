// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// errorHeader carries a handler failure back to the requester.
const errorHeader = "Controller-Error"

// NATSBus implements Bus on a NATS connection. Topic paths are mapped to
// subjects by replacing "/" with ".".
type NATSBus struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATSBus connects to url with the given client name.
func NewNATSBus(url, name string) (*NATSBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("transport: NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("transport: NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("NATS connect %s: %w", url, err)
	}
	log.Printf("transport: connected to NATS at %s", url)
	return &NATSBus{conn: conn}, nil
}

// Subject converts a topic path into a NATS subject.
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func (b *NATSBus) Publish(_ context.Context, topic string, payload []byte) error {
	if !b.conn.IsConnected() {
		return ErrNotConnected
	}
	return b.conn.Publish(Subject(topic), payload)
}

func (b *NATSBus) Subscribe(topic string, h Handler) error {
	sub, err := b.conn.Subscribe(Subject(topic), func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("NATS subscribe %s: %w", topic, err)
	}
	b.track(sub)
	return nil
}

func (b *NATSBus) Serve(topic string, h RequestHandler) error {
	sub, err := b.conn.Subscribe(Subject(topic), func(msg *nats.Msg) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			resp := nats.NewMsg(msg.Reply)
			out, err := h(ctx, msg.Data)
			if err != nil {
				resp.Header.Set(errorHeader, err.Error())
			} else {
				resp.Data = out
			}
			if err := msg.RespondMsg(resp); err != nil {
				log.Printf("transport: responding on %s: %v", topic, err)
			}
		}()
	})
	if err != nil {
		return fmt.Errorf("NATS serve %s: %w", topic, err)
	}
	b.track(sub)
	return nil
}

func (b *NATSBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	msg, err := b.conn.RequestWithContext(ctx, Subject(topic), payload)
	switch {
	case errors.Is(err, nats.ErrNoResponders):
		return nil, ErrNoResponders
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return nil, ErrTimeout
	case err != nil:
		return nil, fmt.Errorf("NATS request %s: %w", topic, err)
	}
	if e := msg.Header.Get(errorHeader); e != "" {
		return nil, fmt.Errorf("%w: %s", ErrRemote, e)
	}
	return msg.Data, nil
}

func (b *NATSBus) Close() error {
	b.mu.Lock()
	for _, s := range b.subs {
		_ = s.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()
	return b.conn.Drain()
}

func (b *NATSBus) track(sub *nats.Subscription) {
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
}
