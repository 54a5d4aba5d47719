// Package events carries node activity to observers: the local API event
// stream and the optional InfluxDB recorder.
package events

import (
	"sync"
	"time"
)

// Kind names what happened.
type Kind string

const (
	KindPaired          Kind = "paired"
	KindUnpaired        Kind = "unpaired"
	KindReset           Kind = "reset"
	KindIdentityAssign  Kind = "identity_assigned"
	KindPresence        Kind = "presence"
	KindProximity       Kind = "proximity"
	KindCapture         Kind = "capture"
	KindConnectionState Kind = "connection"
)

// Event is one observation. Only the fields relevant to Kind are set.
type Event struct {
	Kind  Kind      `json:"kind"`
	SysID string    `json:"sys_id,omitempty"`
	At    time.Time `json:"at"`

	// Status is the proximity status, "online"/"offline" for presence, or
	// "connected"/"disconnected" for connection events.
	Status   string  `json:"status,omitempty"`
	Distance float64 `json:"distance,omitempty"`

	// Success and Duration describe a capture.
	Success  bool          `json:"success,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	Bytes    int           `json:"bytes,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Sink receives events. Emit must not block the caller for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Nop drops every event.
var Nop Sink = SinkFunc(func(Event) {})

// Fanout forwards each event to every attached sink in attach order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewFanout returns a Fanout over the given sinks; nil sinks are skipped.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Attach(s)
	}
	return f
}

// Attach adds a sink.
func (f *Fanout) Attach(s Sink) {
	if s == nil {
		return
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
}

// Emit implements Sink.
func (f *Fanout) Emit(ev Event) {
	f.mu.RLock()
	sinks := f.sinks
	f.mu.RUnlock()

	for _, s := range sinks {
		s.Emit(ev)
	}
}
