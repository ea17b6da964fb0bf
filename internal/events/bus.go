package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the redis channel events are published on.
const DefaultChannel = "lyriclab:events"

// Envelope is the wire form of an event, on redis and on the websocket.
type Envelope struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin,omitempty"`
}

// Encode marshals an event and its payload into an envelope.
func Encode(event string, data any, origin string) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw, Origin: origin})
}

// Emitter is anything that accepts events.
type Emitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Connect parses a redis URL and checks the server is reachable.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// ─────────────────────────────────────────────────────────────
// Publisher
// ─────────────────────────────────────────────────────────────

// Publisher emits events onto a redis channel. Origin tags every message
// so a process can skip its own events when it also subscribes.
type Publisher struct {
	rdb     *redis.Client
	channel string
	origin  string
}

func NewPublisher(rdb *redis.Client, channel, origin string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{rdb: rdb, channel: channel, origin: origin}
}

func (p *Publisher) Emit(ctx context.Context, event string, data any) {
	msg, err := Encode(event, data, p.origin)
	if err != nil {
		log.Printf("[events] %v", err)
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, string(msg)).Err(); err != nil {
		log.Printf("[events] publish %s: %v", event, err)
	}
}

// ─────────────────────────────────────────────────────────────
// Subscriber
// ─────────────────────────────────────────────────────────────

// Subscriber relays events published by other processes to a sink.
type Subscriber struct {
	rdb     *redis.Client
	channel string
	origin  string
	sink    func(Envelope, []byte)
}

// NewSubscriber relays every message whose origin differs from origin.
// The sink receives the decoded envelope and the raw message.
func NewSubscriber(rdb *redis.Client, channel, origin string, sink func(Envelope, []byte)) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{rdb: rdb, channel: channel, origin: origin, sink: sink}
}

// Run blocks until ctx is cancelled. ready, when non-nil, is closed once
// the subscription is confirmed.
func (s *Subscriber) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[events] bad message on %s: %v", s.channel, err)
				continue
			}
			if s.origin != "" && env.Origin == s.origin {
				continue
			}
			s.sink(env, []byte(msg.Payload))
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Fanout
// ─────────────────────────────────────────────────────────────

// Fanout forwards every event to each of its emitters, in order.
type Fanout struct {
	mu       sync.RWMutex
	emitters []Emitter
}

func NewFanout(emitters ...Emitter) *Fanout {
	f := &Fanout{}
	for _, e := range emitters {
		f.Add(e)
	}
	return f
}

// Add appends an emitter. Nil emitters are ignored.
func (f *Fanout) Add(e Emitter) {
	if e == nil {
		return
	}
	f.mu.Lock()
	f.emitters = append(f.emitters, e)
	f.mu.Unlock()
}

func (f *Fanout) Emit(ctx context.Context, event string, data any) {
	f.mu.RLock()
	emitters := f.emitters
	f.mu.RUnlock()
	for _, e := range emitters {
		e.Emit(ctx, event, data)
	}
}
