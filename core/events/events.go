// Package events defines the structured event contract emitted by the
// governance engines. It mirrors the teacher chain's core/events package:
// a minimal Event/Emitter interface plus typed constructors so indexers can
// subscribe without parsing free-form log strings.
package events

import "daogov/core/types"

// Event represents a structured state change emitted by an engine.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the metrics
// emitter or the audit sink).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events. It is the default until a real emitter is
// wired, so engines never need a nil check before calling Emit.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

// Broadcaster fans a single Emit out to every registered subscriber. daogovd
// uses it to feed the same engine activity to the metrics emitter and the
// audit sink.
type Broadcaster struct {
	subs []Emitter
}

// NewBroadcaster constructs a Broadcaster over the given subscribers.
func NewBroadcaster(subs ...Emitter) *Broadcaster {
	return &Broadcaster{subs: subs}
}

// Subscribe registers an additional emitter.
func (b *Broadcaster) Subscribe(e Emitter) {
	if b == nil || e == nil {
		return
	}
	b.subs = append(b.subs, e)
}

// Emit implements Emitter by forwarding to every subscriber.
func (b *Broadcaster) Emit(evt Event) {
	if b == nil {
		return
	}
	for _, sub := range b.subs {
		if sub != nil {
			sub.Emit(evt)
		}
	}
}
