// Package pollstore implements the Poll Store (spec §4.2): poll records keyed
// by big-endian poll id, a secondary index by status, and a per-poll voter
// map, all backed by a prefix-iterable storage.Database. Key layout follows
// the composite-prefix style used by the teacher chain's LevelDB-backed
// stores (gateway/auth/nonce_leveldb.go, p2p/peerstore.go): a short ASCII
// prefix, then fixed-width binary fields so lexicographic order matches the
// intended scan order.
package pollstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"daogov/errs"
	"daogov/native/bank"
	"daogov/storage"
)

// bigUint is the uint256-backed representation of the spec's "unsigned
// 128-bit" poll fields (yes/no tallies, deposit, staked/total-share
// snapshots), matching native/bank's choice of github.com/holiman/uint256.
type bigUint = uint256.Int

func uintString(v *bigUint) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func parseUint(s string) *bigUint {
	v := new(uint256.Int)
	if s == "" {
		return v
	}
	if err := v.SetFromDecimal(s); err != nil {
		return uint256.NewInt(0)
	}
	return v
}

// Status is a poll's position in the one-way status graph (spec §4.3/§4.4).
type Status uint8

const (
	StatusInProgress Status = iota
	StatusPassed
	StatusRejected
	StatusExecuted
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusPassed:
		return "passed"
	case StatusRejected:
		return "rejected"
	case StatusExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// Order selects ascending or descending iteration for range scans.
type Order uint8

const (
	OrderAscending Order = iota
	OrderDescending
)

// ExecuteMsg is one payload of an FGE poll's ordered execute list (spec §3
// Poll, §4.3 execute_poll_messages).
type ExecuteMsg struct {
	Order   uint64
	Target  []byte
	Message []byte
}

// Poll is the union record for both engines; FGE-only and NGE-only fields are
// left zero-valued by the other engine (spec §3 "Poll").
type Poll struct {
	ID       uint64
	Creator  string
	Status   Status
	YesVotes *bigUint
	NoVotes  *bigUint
	EndHeight   uint64
	Title       string
	Description string
	Link        string

	// FGE only.
	DepositAmount          *bigUint
	ExecuteMsgs            []ExecuteMsg
	StakedAmount           *bigUint
	HasStakedAmount        bool
	TotalBalanceAtEndPoll  *bigUint

	// NGE only.
	TotalShareAtStartPoll *bigUint
	TotalShareAtEndPoll   *bigUint
	HasTotalShareAtEnd    bool
}

// wirePoll is the JSON-on-the-wire shape; uint256 values marshal through
// their decimal string form so big values survive round trips untruncated.
type wirePoll struct {
	ID                    uint64       `json:"id"`
	Creator               string       `json:"creator"`
	Status                Status       `json:"status"`
	YesVotes              string       `json:"yes_votes"`
	NoVotes               string       `json:"no_votes"`
	EndHeight             uint64       `json:"end_height"`
	Title                 string       `json:"title"`
	Description           string       `json:"description"`
	Link                  string       `json:"link,omitempty"`
	DepositAmount         string       `json:"deposit_amount,omitempty"`
	ExecuteMsgs           []ExecuteMsg `json:"execute_msgs,omitempty"`
	StakedAmount          string       `json:"staked_amount,omitempty"`
	HasStakedAmount       bool         `json:"has_staked_amount,omitempty"`
	TotalBalanceAtEndPoll string       `json:"total_balance_at_end_poll,omitempty"`
	TotalShareAtStartPoll string       `json:"total_share_at_start_poll,omitempty"`
	TotalShareAtEndPoll   string       `json:"total_share_at_end_poll,omitempty"`
	HasTotalShareAtEnd    bool         `json:"has_total_share_at_end,omitempty"`
}

const (
	prefixPoll   = "poll:"
	prefixIndex  = "pollidx:"
	prefixVoter  = "pollvoter:"
)

// Store implements the Poll Store over a storage.Database.
type Store struct {
	db storage.Database
}

// New constructs a Store.
func New(db storage.Database) *Store { return &Store{db: db} }

func pollKey(id uint64) []byte {
	buf := make([]byte, len(prefixPoll)+8)
	copy(buf, prefixPoll)
	binary.BigEndian.PutUint64(buf[len(prefixPoll):], id)
	return buf
}

func indexKey(status Status, id uint64) []byte {
	buf := make([]byte, len(prefixIndex)+1+8)
	copy(buf, prefixIndex)
	buf[len(prefixIndex)] = byte(status)
	binary.BigEndian.PutUint64(buf[len(prefixIndex)+1:], id)
	return buf
}

func indexPrefix(status Status) []byte {
	buf := make([]byte, len(prefixIndex)+1)
	copy(buf, prefixIndex)
	buf[len(prefixIndex)] = byte(status)
	return buf
}

func voterKey(pollID uint64, voter bank.Key) []byte {
	buf := make([]byte, 0, len(prefixVoter)+8+len(voter))
	buf = append(buf, prefixVoter...)
	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, pollID)
	buf = append(buf, idBuf...)
	buf = append(buf, voter.Bytes()...)
	return buf
}

func voterPrefix(pollID uint64) []byte {
	buf := make([]byte, 0, len(prefixVoter)+8)
	buf = append(buf, prefixVoter...)
	idBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(idBuf, pollID)
	return append(buf, idBuf...)
}

// NextPollID returns count+1 without mutating storage; callers persist the
// new poll under this id and are responsible for advancing any separate
// poll_count counter they maintain (spec §4.3/§4.4 CreatePoll).
func (s *Store) NextPollID(currentCount uint64) uint64 { return currentCount + 1 }

// Get loads a poll by id.
func (s *Store) Get(id uint64) (*Poll, bool, error) {
	raw, err := s.db.Get(pollKey(id))
	if err != nil {
		return nil, false, nil //nolint:nilerr // storage.Database.Get returns an error for "not found"
	}
	poll, err := decodePoll(raw)
	if err != nil {
		return nil, false, err
	}
	return poll, true, nil
}

// MustGet loads a poll, returning errs.PollNotFound when absent or when the
// id is out of the valid [1, poll_count] range (spec §7: "id 0 or >
// poll_count").
func (s *Store) MustGet(id uint64, pollCount uint64) (*Poll, error) {
	if id == 0 || id > pollCount {
		return nil, errs.PollNotFound(id)
	}
	poll, ok, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.PollNotFound(id)
	}
	return poll, nil
}

// Put persists a poll, updating the status secondary index if the status
// changed relative to the stored copy (spec §4.2 "On every status transition,
// the entry is removed from the old index and inserted under the new
// status").
func (s *Store) Put(poll *Poll) error {
	if poll == nil {
		return fmt.Errorf("pollstore: nil poll")
	}
	existing, ok, err := s.Get(poll.ID)
	if err != nil {
		return err
	}
	if ok && existing.Status != poll.Status {
		if err := s.db.Delete(indexKey(existing.Status, poll.ID)); err != nil {
			return err
		}
	}
	if !ok || existing.Status != poll.Status {
		if err := s.db.Put(indexKey(poll.Status, poll.ID), []byte{}); err != nil {
			return err
		}
	}
	blob, err := encodePoll(poll)
	if err != nil {
		return err
	}
	return s.db.Put(pollKey(poll.ID), blob)
}

// IsInProgress implements bank.PollGate.
func (s *Store) IsInProgress(pollID uint64) (bool, error) {
	poll, ok, err := s.Get(pollID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return poll.Status == StatusInProgress, nil
}

// DeleteVoter implements bank.PollGate.
func (s *Store) DeleteVoter(pollID uint64, voter []byte) error {
	return s.db.Delete(voterKey(pollID, bank.KeyFromBytes(voter)))
}

// PutVoter records a (poll_id, voter) → VoteInfo mapping.
func (s *Store) PutVoter(pollID uint64, voter bank.Key, info bank.VoteInfo) error {
	blob, err := json.Marshal(wireVoteInfo{Vote: uint8(info.Vote), Balance: uintString(info.Balance)})
	if err != nil {
		return err
	}
	return s.db.Put(voterKey(pollID, voter), blob)
}

// GetVoter loads a voter record, if present.
func (s *Store) GetVoter(pollID uint64, voter bank.Key) (*bank.VoteInfo, bool, error) {
	raw, err := s.db.Get(voterKey(pollID, voter))
	if err != nil {
		return nil, false, nil //nolint:nilerr
	}
	var w wireVoteInfo
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, false, err
	}
	return &bank.VoteInfo{Vote: bank.VoteOption(w.Vote), Balance: parseUint(w.Balance)}, true, nil
}

// DeleteVoterRecord removes the (poll_id, voter) entry; the NGE's
// cancel_vote is its caller (spec §3 "Lifecycle").
func (s *Store) DeleteVoterRecord(pollID uint64, voter bank.Key) error {
	return s.db.Delete(voterKey(pollID, voter))
}

// Voters returns every recorded voter key for a poll, in storage order.
func (s *Store) Voters(pollID uint64) ([]bank.Key, error) {
	kvs, err := s.db.IteratePrefix(voterPrefix(pollID))
	if err != nil {
		return nil, err
	}
	prefixLen := len(prefixVoter) + 8
	out := make([]bank.Key, 0, len(kvs))
	for _, kv := range kvs {
		if len(kv.Key) <= prefixLen {
			continue
		}
		out = append(out, bank.KeyFromBytes(kv.Key[prefixLen:]))
	}
	return out, nil
}

// RangeOpts controls a status-index range scan (spec §4.2).
type RangeOpts struct {
	Status     Status
	StartAfter uint64
	HasStart   bool
	Limit      int
	Order      Order
}

const (
	defaultScanLimit = 10
	maxScanLimit     = 30
)

func (o RangeOpts) clampedLimit() int {
	if o.Limit <= 0 {
		return defaultScanLimit
	}
	if o.Limit > maxScanLimit {
		return maxScanLimit
	}
	return o.Limit
}

// Range scans the status index, returning poll ids strictly after the cursor
// in the requested order, clamped to at most maxScanLimit results.
func (s *Store) Range(opts RangeOpts) ([]uint64, error) {
	kvs, err := s.db.IteratePrefix(indexPrefix(opts.Status))
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(kvs))
	prefixLen := len(prefixIndex) + 1
	for _, kv := range kvs {
		if len(kv.Key) != prefixLen+8 {
			continue
		}
		ids = append(ids, binary.BigEndian.Uint64(kv.Key[prefixLen:]))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if opts.Order == OrderDescending {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	limit := opts.clampedLimit()
	out := make([]uint64, 0, limit)
	for _, id := range ids {
		if opts.HasStart {
			if opts.Order == OrderDescending {
				if id >= opts.StartAfter {
					continue
				}
			} else if id <= opts.StartAfter {
				continue
			}
		}
		out = append(out, id)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func encodePoll(p *Poll) ([]byte, error) {
	w := wirePoll{
		ID:          p.ID,
		Creator:     p.Creator,
		Status:      p.Status,
		YesVotes:    uintString(p.YesVotes),
		NoVotes:     uintString(p.NoVotes),
		EndHeight:   p.EndHeight,
		Title:       p.Title,
		Description: p.Description,
		Link:        p.Link,
		ExecuteMsgs: p.ExecuteMsgs,
	}
	if p.DepositAmount != nil {
		w.DepositAmount = uintString(p.DepositAmount)
	}
	if p.HasStakedAmount {
		w.HasStakedAmount = true
		w.StakedAmount = uintString(p.StakedAmount)
	}
	if p.TotalBalanceAtEndPoll != nil {
		w.TotalBalanceAtEndPoll = uintString(p.TotalBalanceAtEndPoll)
	}
	if p.TotalShareAtStartPoll != nil {
		w.TotalShareAtStartPoll = uintString(p.TotalShareAtStartPoll)
	}
	if p.HasTotalShareAtEnd {
		w.HasTotalShareAtEnd = true
		w.TotalShareAtEndPoll = uintString(p.TotalShareAtEndPoll)
	}
	return json.Marshal(w)
}

func decodePoll(raw []byte) (*Poll, error) {
	var w wirePoll
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("pollstore: decode poll: %w", err)
	}
	p := &Poll{
		ID:          w.ID,
		Creator:     w.Creator,
		Status:      w.Status,
		YesVotes:    parseUint(w.YesVotes),
		NoVotes:     parseUint(w.NoVotes),
		EndHeight:   w.EndHeight,
		Title:       w.Title,
		Description: w.Description,
		Link:        w.Link,
		ExecuteMsgs: w.ExecuteMsgs,
	}
	if w.DepositAmount != "" {
		p.DepositAmount = parseUint(w.DepositAmount)
	}
	if w.HasStakedAmount {
		p.HasStakedAmount = true
		p.StakedAmount = parseUint(w.StakedAmount)
	}
	if w.TotalBalanceAtEndPoll != "" {
		p.TotalBalanceAtEndPoll = parseUint(w.TotalBalanceAtEndPoll)
	}
	if w.TotalShareAtStartPoll != "" {
		p.TotalShareAtStartPoll = parseUint(w.TotalShareAtStartPoll)
	}
	if w.HasTotalShareAtEnd {
		p.HasTotalShareAtEnd = true
		p.TotalShareAtEndPoll = parseUint(w.TotalShareAtEndPoll)
	}
	return p, nil
}

type wireVoteInfo struct {
	Vote    uint8  `json:"vote"`
	Balance string `json:"balance"`
}
