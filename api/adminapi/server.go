// Package adminapi exposes the owner-gated mutate surface for the
// Fungible and Non-Fungible Governance Engines and the Membership Token
// Gateway: config updates, poll lifecycle transitions, and staking/minting
// operations. Every route requires a valid bearer token (see JWTGuard) and
// is subject to per-caller rate limiting.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"daogov/native/bank"
	"daogov/native/fge"
	"daogov/native/membership"
	"daogov/native/nge"
	"daogov/observability/metrics"
)

// Server serves owner-mutate HTTP requests over both engines and the
// membership gateway.
type Server struct {
	fge        *fge.Engine
	nge        *nge.Engine
	membership *membership.Gateway
	guard      *JWTGuard
	limiter    *RateLimiter

	idemMu  sync.Mutex
	idemSet map[string]struct{}

	router chi.Router
}

// New builds the owner-mutate router.
func New(fgeEngine *fge.Engine, ngeEngine *nge.Engine, membershipGW *membership.Gateway, guard *JWTGuard, limiter *RateLimiter) *Server {
	s := &Server{
		fge:        fgeEngine,
		nge:        ngeEngine,
		membership: membershipGW,
		guard:      guard,
		limiter:    limiter,
		idemSet:    make(map[string]struct{}),
	}
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
	r.Use(s.guard.Middleware)
	r.Use(s.limiter.Middleware)
	r.Use(s.idempotency)

	r.Route("/v1/fge", func(fr chi.Router) {
		fr.Post("/config", s.route("fge.update_config", s.fgeUpdateConfig))
		fr.Post("/stake", s.route("fge.stake", s.fgeStake))
		fr.Post("/withdraw", s.route("fge.withdraw", s.fgeWithdraw))
		fr.Post("/polls", s.route("fge.create_poll", s.fgeCreatePoll))
		fr.Post("/polls/{id}/vote", s.route("fge.cast_vote", s.fgeCastVote))
		fr.Post("/polls/{id}/snapshot", s.route("fge.snapshot_poll", s.fgeSnapshotPoll))
		fr.Post("/polls/{id}/end", s.route("fge.end_poll", s.fgeEndPoll))
		fr.Post("/polls/{id}/execute", s.route("fge.execute_poll", s.fgeExecutePoll))
		fr.Post("/execute_poll_messages", s.route("fge.execute_poll_messages", s.fgeExecutePollMessages))
	})

	r.Route("/v1/nge", func(nr chi.Router) {
		nr.Post("/config", s.route("nge.update_config", s.ngeUpdateConfig))
		nr.Post("/polls", s.route("nge.create_poll", s.ngeCreatePoll))
		nr.Post("/polls/{id}/vote", s.route("nge.cast_vote", s.ngeCastVote))
		nr.Post("/polls/{id}/cancel", s.route("nge.cancel_vote", s.ngeCancelVote))
		nr.Post("/polls/{id}/end", s.route("nge.end_poll", s.ngeEndPoll))
		nr.Post("/delegate", s.route("nge.delegate_vote", s.ngeDelegateVote))
		nr.Post("/undelegate", s.route("nge.undelegate_vote", s.ngeUndelegateVote))
		nr.Post("/mint", s.route("nge.mint", s.ngeMint))
		nr.Post("/transfer_from", s.route("nge.transfer_from", s.ngeTransferFrom))
		nr.Post("/exit", s.route("nge.exit", s.ngeExit))
	})

	if s.membership != nil {
		r.Route("/v1/membership", func(mr chi.Router) {
			mr.Post("/mint", s.route("membership.mint", s.membershipMint))
			mr.Post("/transfer", s.route("membership.transfer", s.membershipTransfer))
			mr.Post("/execute_dao", s.route("membership.execute_dao", s.membershipExecuteDAO))
		})
	}

	return r
}

// route wraps a handler with per-route admin request metrics.
func (s *Server) route(name string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		outcome := "ok"
		if rec.status >= 400 {
			outcome = "error"
		}
		metrics.Governance().RecordAdminRequest(name, outcome)
	}
}

// idempotency rejects a replayed Idempotency-Key within this process's
// lifetime. The set itself is not durable across restarts, but every
// accepted request's resulting event is separately persisted by
// storage/auditsink regardless of which process served it.
func (s *Server) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := uuid.Parse(key); err != nil {
			http.Error(w, "Idempotency-Key must be a UUID", http.StatusBadRequest)
			return
		}
		s.idemMu.Lock()
		if _, seen := s.idemSet[key]; seen {
			s.idemMu.Unlock()
			http.Error(w, "duplicate request", http.StatusConflict)
			return
		}
		s.idemSet[key] = struct{}{}
		s.idemMu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// --- FGE routes ---

func (s *Server) fgeUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string          `json:"caller"`
		Patch  fge.ConfigPatch `json:"patch"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.fge.UpdateConfig(req.Caller, req.Patch))
}

func (s *Server) fgeStake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenCaller string `json:"token_caller"`
		Sender      string `json:"sender"`
		Amount      string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeOK(w, s.fge.StakeVotingTokens(req.TokenCaller, req.Sender, amount))
}

func (s *Server) fgeWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender string `json:"sender"`
		Amount string `json:"amount,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	var amount *uint256.Int
	if req.Amount != "" {
		var err error
		amount, err = parseAmount(req.Amount)
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
	}
	writeOK(w, s.fge.WithdrawVotingTokens(req.Sender, amount))
}

func (s *Server) fgeCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenCaller string          `json:"token_caller"`
		Sender      string          `json:"sender"`
		Amount      string          `json:"amount"`
		Msg         fge.CreatePollMsg `json:"msg"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	id, err := s.fge.CreatePoll(req.TokenCaller, req.Sender, amount, req.Msg)
	writeResult(w, map[string]uint64{"poll_id": id}, err)
}

func (s *Server) fgeCastVote(w http.ResponseWriter, r *http.Request) {
	id, ok := urlPollID(w, r)
	if !ok {
		return
	}
	var req struct {
		Sender string `json:"sender"`
		Vote   uint8  `json:"vote"`
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeOK(w, s.fge.CastVote(req.Sender, id, bank.VoteOption(req.Vote), amount))
}

func (s *Server) fgeSnapshotPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := urlPollID(w, r)
	if !ok {
		return
	}
	writeOK(w, s.fge.SnapshotPoll(id))
}

func (s *Server) fgeEndPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := urlPollID(w, r)
	if !ok {
		return
	}
	writeOK(w, s.fge.EndPoll(id))
}

func (s *Server) fgeExecutePoll(w http.ResponseWriter, r *http.Request) {
	id, ok := urlPollID(w, r)
	if !ok {
		return
	}
	writeOK(w, s.fge.ExecutePoll(id))
}

func (s *Server) fgeExecutePollMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if !decode(w, r, &req) {
		return
	}
	msgs, err := s.fge.ExecutePollMessages(req.Caller)
	writeResult(w, msgs, err)
}

// --- NGE routes ---

func (s *Server) ngeUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string          `json:"caller"`
		Patch  nge.ConfigPatch `json:"patch"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.nge.UpdateConfig(req.Caller, req.Patch))
}

func (s *Server) ngeCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID string          `json:"sender_id"`
		Msg      nge.CreatePollMsg `json:"msg"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, err := s.nge.CreatePoll(req.SenderID, req.Msg)
	writeResult(w, map[string]uint64{"poll_id": id}, err)
}

func (s *Server) ngeCastVote(w http.ResponseWriter, r *http.Request) {
	id, ok := urlPollID(w, r)
	if !ok {
		return
	}
	var req struct {
		VoterID string `json:"voter_id"`
		Vote    uint8  `json:"vote"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.nge.CastVote(req.VoterID, id, bank.VoteOption(req.Vote)))
}

func (s *Server) ngeCancelVote(w http.ResponseWriter, r *http.Request) {
	id, ok := urlPollID(w, r)
	if !ok {
		return
	}
	var req struct {
		VoterID string `json:"voter_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.nge.CancelVote(req.VoterID, id))
}

func (s *Server) ngeEndPoll(w http.ResponseWriter, r *http.Request) {
	id, ok := urlPollID(w, r)
	if !ok {
		return
	}
	writeOK(w, s.nge.EndPoll(id))
}

func (s *Server) ngeDelegateVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VoterID     string `json:"voter_id"`
		DelegatorID string `json:"delegator_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.nge.DelegateVote(req.VoterID, req.DelegatorID))
}

func (s *Server) ngeUndelegateVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VoterID string `json:"voter_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.nge.UndelegateVote(req.VoterID))
}

func (s *Server) ngeMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller      string `json:"caller"`
		RecipientID string `json:"recipient_id"`
		Amount      string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeOK(w, s.nge.Mint(req.Caller, req.RecipientID, amount))
}

func (s *Server) ngeTransferFrom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller      string `json:"caller"`
		OwnerID     string `json:"owner_id"`
		RecipientID string `json:"recipient_id"`
		Amount      string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeOK(w, s.nge.TransferFrom(req.Caller, req.OwnerID, req.RecipientID, amount))
}

func (s *Server) ngeExit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID string `json:"sender_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.nge.Exit(req.SenderID))
}

// --- Membership routes ---

func (s *Server) membershipMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller     string `json:"caller"`
		TokenID    string `json:"token_id"`
		TokenOwner string `json:"token_owner"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.membership.Mint(req.Caller, req.TokenID, req.TokenOwner))
}

func (s *Server) membershipTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string `json:"caller"`
		TokenID string `json:"token_id"`
		NewOwner string `json:"new_owner"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.membership.Transfer(req.Caller, req.TokenID, req.NewOwner))
}

func (s *Server) membershipExecuteDAO(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string          `json:"caller"`
		TokenID string          `json:"token_id"`
		Msg     json.RawMessage `json:"msg"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOK(w, s.membership.ExecuteDAO(req.Caller, req.TokenID, req.Msg))
}

// --- helpers ---

func urlPollID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid poll id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func parseAmount(raw string) (*uint256.Int, error) {
	amount := new(uint256.Int)
	if err := amount.SetFromDecimal(raw); err != nil {
		return nil, err
	}
	return amount, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeOK(w http.ResponseWriter, err error) {
	writeResult(w, map[string]bool{"ok": true}, err)
}

func writeResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
