package metrics

import "daogov/core/events"

// Emitter is an events.Emitter that drives the governance Prometheus
// counters off the same typed events the engines already publish, so wiring
// metrics into an engine is just another Broadcaster subscriber.
type Emitter struct {
	m *governanceMetrics
}

// NewEmitter returns an Emitter backed by the process-wide registry.
func NewEmitter() *Emitter { return &Emitter{m: Governance()} }

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	raw := evt.Event()
	if raw == nil {
		return
	}
	attrs := raw.Attributes
	switch raw.Type {
	case events.TypeProposalCreated:
		e.m.RecordProposalSubmitted(attrs["engine"])
	case events.TypeVoteCast:
		e.m.RecordVoteCast(attrs["engine"], attrs["vote_option"])
	case events.TypePollEnded:
		e.m.RecordPollFinalized(attrs["engine"], attrs["passed"] == "true")
	}
}
