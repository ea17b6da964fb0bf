package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from the transports
// ─────────────────────────────────────────────────────────────

// Events pushed to connected clients.
const (
	EventLyricsChanged     = "lyrics:changed"
	EventProjectUpdated    = "project:updated"
	EventProjectDeleted    = "project:deleted"
	EventRecordingStarted  = "recording:started"
	EventRecordingLevel    = "recording:level"
	EventRecordingStopped  = "recording:stopped"
	EventRecordingCanceled = "recording:cancelled"
	EventPlaybackStatus    = "playback:status"
	EventTerminalData      = "terminal:data"
	EventTerminalExit      = "terminal:exit"
)

// EventEmitter is an interface for emitting events to clients.
// The HTTP hub and the redis publisher implement it; services receive
// this interface so they can be tested with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Named returns the recorded emissions of one event, in order.
func (m *MockEmitter) Named(event string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, string, any) {}
