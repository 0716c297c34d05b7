// Package metrics exposes the Prometheus collectors the engines and APIs
// increment for each governance operation, grounded on the teacher's
// observability.ModuleMetrics lazily-initialised registry pattern.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type governanceMetrics struct {
	proposalsSubmitted *prometheus.CounterVec
	votesCast          *prometheus.CounterVec
	pollsFinalized     *prometheus.CounterVec
	adminRequests      *prometheus.CounterVec
}

var (
	once     sync.Once
	registry *governanceMetrics
)

// Governance returns the lazily-initialised, process-wide governance metrics
// registry.
func Governance() *governanceMetrics {
	once.Do(func() {
		registry = &governanceMetrics{
			proposalsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "daogov",
				Subsystem: "engine",
				Name:      "proposals_submitted_total",
				Help:      "Total CreatePoll calls segmented by engine.",
			}, []string{"engine"}),
			votesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "daogov",
				Subsystem: "engine",
				Name:      "votes_cast_total",
				Help:      "Total CastVote calls segmented by engine and vote option.",
			}, []string{"engine", "vote_option"}),
			pollsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "daogov",
				Subsystem: "engine",
				Name:      "polls_finalized_total",
				Help:      "Total EndPoll calls segmented by engine and outcome.",
			}, []string{"engine", "passed"}),
			adminRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "daogov",
				Subsystem: "adminapi",
				Name:      "requests_total",
				Help:      "Total owner-mutate API requests segmented by route and outcome.",
			}, []string{"route", "outcome"}),
		}
		prometheus.MustRegister(
			registry.proposalsSubmitted,
			registry.votesCast,
			registry.pollsFinalized,
			registry.adminRequests,
		)
	})
	return registry
}

// RecordProposalSubmitted increments the proposals-submitted counter.
func (m *governanceMetrics) RecordProposalSubmitted(engine string) {
	if m == nil {
		return
	}
	m.proposalsSubmitted.WithLabelValues(engine).Inc()
}

// RecordVoteCast increments the votes-cast counter.
func (m *governanceMetrics) RecordVoteCast(engine, voteOption string) {
	if m == nil {
		return
	}
	m.votesCast.WithLabelValues(engine, voteOption).Inc()
}

// RecordPollFinalized increments the polls-finalized counter.
func (m *governanceMetrics) RecordPollFinalized(engine string, passed bool) {
	if m == nil {
		return
	}
	outcome := "rejected"
	if passed {
		outcome = "passed"
	}
	m.pollsFinalized.WithLabelValues(engine, outcome).Inc()
}

// RecordAdminRequest increments the owner-mutate API request counter.
func (m *governanceMetrics) RecordAdminRequest(route, outcome string) {
	if m == nil {
		return
	}
	m.adminRequests.WithLabelValues(route, outcome).Inc()
}
