// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// envelope wraps requests and responses on MQTT, which has no native
// request/response. Requests carry the topic the response must be sent to.
type envelope struct {
	ID      string          `json:"id"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// MQTTBus implements Bus on top of a paho MQTT client.
type MQTTBus struct {
	client     mqtt.Client
	qos        byte
	replyTopic string

	mu         sync.Mutex
	replySubOK bool
	pending    map[string]chan envelope
}

// MQTTOptions configures NewMQTTBus.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
}

// NewMQTTBus connects to the broker and returns a ready bus.
func NewMQTTBus(o MQTTOptions) (*MQTTBus, error) {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(o.ConnectTimeout).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		return nil, fmt.Errorf("MQTT connect %s: %w", o.Broker, ErrTimeout)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", o.Broker, token.Error())
	}
	log.Printf("transport: connected to MQTT broker at %s", o.Broker)

	return &MQTTBus{
		client:     client,
		qos:        o.QoS,
		replyTopic: "_reply/" + o.ClientID,
		pending:    make(map[string]chan envelope),
	}, nil
}

func (b *MQTTBus) wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return contextError(ctx)
	}
}

func (b *MQTTBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if !b.client.IsConnected() {
		return ErrNotConnected
	}
	return b.wait(ctx, b.client.Publish(topic, b.qos, false, payload))
}

func (b *MQTTBus) Subscribe(topic string, h Handler) error {
	token := b.client.Subscribe(topic, b.qos, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", topic, token.Error())
	}
	return nil
}

// Serve answers requests on topic. Each request is handled on its own
// goroutine so a slow handler never blocks delivery of other messages,
// including the responses the handler itself may be waiting for.
func (b *MQTTBus) Serve(topic string, h RequestHandler) error {
	return b.Subscribe(topic, func(payload []byte) {
		req, err := decodeEnvelope(payload)
		if err != nil {
			log.Printf("transport: dropping malformed request on %s: %v", topic, err)
			return
		}
		if req.ReplyTo == "" {
			log.Printf("transport: dropping request %s on %s without reply topic", req.ID, topic)
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			resp := envelope{ID: req.ID}
			out, err := h(ctx, req.Payload)
			if err != nil {
				resp.Error = err.Error()
			} else {
				resp.Payload = out
			}
			data, err := json.Marshal(resp)
			if err != nil {
				log.Printf("transport: encoding response %s on %s: %v", req.ID, topic, err)
				return
			}
			if err := b.Publish(ctx, req.ReplyTo, data); err != nil {
				log.Printf("transport: publishing response %s to %s: %v", req.ID, req.ReplyTo, err)
			}
		}()
	})
}

func (b *MQTTBus) ensureReplySubscription() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.replySubOK {
		return nil
	}
	err := b.Subscribe(b.replyTopic, func(payload []byte) {
		resp, err := decodeEnvelope(payload)
		if err != nil {
			log.Printf("transport: dropping malformed response: %v", err)
			return
		}
		b.mu.Lock()
		ch, ok := b.pending[resp.ID]
		delete(b.pending, resp.ID)
		b.mu.Unlock()
		if ok {
			ch <- resp
		}
	})
	if err != nil {
		return err
	}
	b.replySubOK = true
	return nil
}

func (b *MQTTBus) Request(ctx context.Context, topic string, payload []byte) ([]byte, error) {
	if err := b.ensureReplySubscription(); err != nil {
		return nil, err
	}

	req := envelope{ID: uuid.NewString(), ReplyTo: b.replyTopic, Payload: rawJSON(payload)}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request on %s: %w", topic, err)
	}

	ch := make(chan envelope, 1)
	b.mu.Lock()
	b.pending[req.ID] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	if err := b.Publish(ctx, topic, data); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
		}
		return resp.Payload, nil
	case <-ctx.Done():
		return nil, contextError(ctx)
	}
}

func (b *MQTTBus) Close() error {
	b.client.Disconnect(250)
	return nil
}

func decodeEnvelope(payload []byte) (envelope, error) {
	var e envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return envelope{}, err
	}
	if e.ID == "" {
		return envelope{}, fmt.Errorf("missing id")
	}
	return e, nil
}

// rawJSON returns payload as an embeddable JSON value; empty payloads become null.
func rawJSON(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(payload)
}
