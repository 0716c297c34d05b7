// Package httpapi exposes the read-only Query surface for the Fungible and
// Non-Fungible Governance Engines and the Membership Token Gateway: poll
// lookups, voter rolls, and balances, with no authentication required.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"daogov/native/fge"
	"daogov/native/membership"
	"daogov/native/nge"
	"daogov/native/pollstore"
	"daogov/storage/auditsink"
)

// Server serves read-only HTTP queries over both engines.
type Server struct {
	fge        *fge.Engine
	nge        *nge.Engine
	membership *membership.Gateway
	auditDB    *gorm.DB

	router chi.Router
}

// New builds the query router. membershipGW may be nil if the membership
// gateway is not deployed alongside the NGE. auditDB may be nil if the audit
// sink is not configured, in which case /v1/audit is not registered.
func New(fgeEngine *fge.Engine, ngeEngine *nge.Engine, membershipGW *membership.Gateway, auditDB *gorm.DB) *Server {
	s := &Server{fge: fgeEngine, nge: ngeEngine, membership: membershipGW, auditDB: auditDB}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Route("/v1/fge", func(fr chi.Router) {
		fr.Get("/config", s.fgeConfig)
		fr.Get("/state", s.fgeState)
		fr.Get("/polls/{id}", s.fgePoll)
		fr.Get("/polls", s.fgePolls)
		fr.Get("/polls/{id}/voters", s.fgeVoters)
		fr.Get("/stakers/{addr}", s.fgeStaker)
	})

	r.Route("/v1/nge", func(nr chi.Router) {
		nr.Get("/config", s.ngeConfig)
		nr.Get("/state", s.ngeState)
		nr.Get("/polls/{id}", s.ngePoll)
		nr.Get("/polls", s.ngePolls)
		nr.Get("/polls/{id}/voters", s.ngeVoters)
		nr.Get("/members/{tokenId}", s.ngeMember)
	})

	if s.membership != nil {
		r.Route("/v1/membership", func(mr chi.Router) {
			mr.Get("/config", s.membershipConfig)
		})
	}

	if s.auditDB != nil {
		r.Get("/v1/audit", s.auditList)
	}

	return r
}

func (s *Server) fgeConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.fge.Config()
	writeResult(w, cfg, err)
}

func (s *Server) fgeState(w http.ResponseWriter, r *http.Request) {
	st, err := s.fge.State()
	writeResult(w, st, err)
}

func (s *Server) fgePoll(w http.ResponseWriter, r *http.Request) {
	id, err := parsePollID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	poll, err := s.fge.Poll(id)
	writeResult(w, poll, err)
}

func (s *Server) fgePolls(w http.ResponseWriter, r *http.Request) {
	opts, err := parseRangeOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	polls, err := s.fge.Polls(opts)
	writeResult(w, polls, err)
}

func (s *Server) fgeVoters(w http.ResponseWriter, r *http.Request) {
	id, err := parsePollID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	voters, err := s.fge.Voters(id)
	writeResult(w, voters, err)
}

func (s *Server) fgeStaker(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	entry, err := s.fge.Staker(addr)
	writeResult(w, entry, err)
}

func (s *Server) ngeConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.nge.Config()
	writeResult(w, cfg, err)
}

func (s *Server) ngeState(w http.ResponseWriter, r *http.Request) {
	st, err := s.nge.State()
	writeResult(w, st, err)
}

func (s *Server) ngePoll(w http.ResponseWriter, r *http.Request) {
	id, err := parsePollID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	poll, err := s.nge.Poll(id)
	writeResult(w, poll, err)
}

func (s *Server) ngePolls(w http.ResponseWriter, r *http.Request) {
	opts, err := parseRangeOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	polls, err := s.nge.Polls(opts)
	writeResult(w, polls, err)
}

func (s *Server) ngeVoters(w http.ResponseWriter, r *http.Request) {
	id, err := parsePollID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	voters, err := s.nge.Voters(id)
	writeResult(w, voters, err)
}

func (s *Server) ngeMember(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenId")
	entry, err := s.nge.Member(tokenID)
	writeResult(w, entry, err)
}

func (s *Server) membershipConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.membership.Config()
	writeResult(w, cfg, err)
}

// auditList serves the durable audit mirror, filterable by engine and event
// type, for operators reconstructing history without replaying the KV store.
func (s *Server) auditList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := auditsink.Query{
		Engine:    q.Get("engine"),
		EventType: q.Get("event_type"),
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		query.Limit = v
	}
	records, err := auditsink.List(s.auditDB, query)
	writeResult(w, records, err)
}

func parsePollID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid poll id")
	}
	return id, nil
}

func parseRangeOpts(r *http.Request) (pollstore.RangeOpts, error) {
	q := r.URL.Query()
	opts := pollstore.RangeOpts{Limit: 30}
	if raw := q.Get("start_after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return opts, errors.New("invalid start_after")
		}
		opts.StartAfter = v
		opts.HasStart = true
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return opts, errors.New("invalid limit")
		}
		opts.Limit = v
	}
	if raw := q.Get("status"); raw != "" {
		switch raw {
		case "in_progress":
			opts.Status = pollstore.StatusInProgress
		case "passed":
			opts.Status = pollstore.StatusPassed
		case "rejected":
			opts.Status = pollstore.StatusRejected
		case "executed":
			opts.Status = pollstore.StatusExecuted
		default:
			return opts, errors.New("invalid status")
		}
	}
	if raw := q.Get("order"); raw == "desc" {
		opts.Order = pollstore.OrderDescending
	}
	return opts, nil
}

func writeResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
