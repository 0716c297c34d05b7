package nge

import (
	"math/big"

	"github.com/holiman/uint256"

	"daogov/core/clock"
	"daogov/core/events"
	"daogov/errs"
	"daogov/native/bank"
	"daogov/native/pollstore"
	"daogov/storage"
)

// Engine implements the Non-Fungible Governance Engine (spec §4.4). Unlike
// the FGE it never queries an external token balance: membership balance is
// entirely bank-resident, moved only by Mint/TransferFrom/Exit.
type Engine struct {
	db      storage.Database
	bank    *bank.Bank
	polls   *pollstore.Store
	clock   clock.Source
	emitter events.Emitter
}

// New wires an Engine over the given database, clock, and event sink.
func New(db storage.Database, clockSource clock.Source, emitter events.Emitter) *Engine {
	polls := pollstore.New(db)
	bankStore := bank.NewKVStore(db, "ngebank:")
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{
		db:      db,
		bank:    bank.New(bankStore, polls),
		polls:   polls,
		clock:   clockSource,
		emitter: emitter,
	}
}

// Instantiate creates Config and State (spec §6 "Instantiate (NGE)").
func (e *Engine) Instantiate(sender, self string, cfg Config) error {
	cfg.Owner = sender
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := saveConfig(e.db, cfg); err != nil {
		return err
	}
	st := State{ContractAddr: self, PollCount: 0, TotalShare: uint256.NewInt(0)}
	return saveState(e.db, st)
}

// Config returns the current configuration (Query: Config).
func (e *Engine) Config() (Config, error) { return loadConfig(e.db) }

// State returns the current counters (Query: State).
func (e *Engine) State() (State, error) { return loadState(e.db) }

// Poll returns a single poll (Query: Poll{poll_id}).
func (e *Engine) Poll(pollID uint64) (*pollstore.Poll, error) {
	st, err := loadState(e.db)
	if err != nil {
		return nil, err
	}
	return e.polls.MustGet(pollID, st.PollCount)
}

// Polls lists polls by status with cursor/limit/order (Query: Polls).
func (e *Engine) Polls(opts pollstore.RangeOpts) ([]*pollstore.Poll, error) {
	ids, err := e.polls.Range(opts)
	if err != nil {
		return nil, err
	}
	out := make([]*pollstore.Poll, 0, len(ids))
	for _, id := range ids {
		poll, ok, err := e.polls.Get(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, poll)
		}
	}
	return out, nil
}

// Voters lists recorded voter records for a poll (Query: Voters).
func (e *Engine) Voters(pollID uint64) ([]bank.Key, error) { return e.polls.Voters(pollID) }

// PollStore exposes the underlying poll store for storage/archive's
// periodic parquet export of terminal polls and votes.
func (e *Engine) PollStore() *pollstore.Store { return e.polls }

// Member returns a token id's bank entry (Query: Staker/Member{id}).
func (e *Engine) Member(tokenID string) (*bank.Entry, error) {
	return e.bank.GetOrDefault(bank.KeyFromBytes([]byte(tokenID)))
}

// UpdateConfig implements update_config: only owner may call.
func (e *Engine) UpdateConfig(caller string, patch ConfigPatch) error {
	cfg, err := loadConfig(e.db)
	if err != nil {
		return err
	}
	if caller != cfg.Owner {
		return errs.Unauthorized("caller is not the owner")
	}
	next := patch.Apply(cfg)
	if err := next.Validate(); err != nil {
		return err
	}
	if err := saveConfig(e.db, next); err != nil {
		return err
	}
	e.emitter.Emit(events.NewConfigUpdated("nge", next.Owner))
	return nil
}

// CreatePoll implements spec §4.4 create_poll.
func (e *Engine) CreatePoll(senderID string, msg CreatePollMsg) (uint64, error) {
	if err := validateStrings(msg.Title, msg.Description, msg.Link); err != nil {
		return 0, err
	}
	cfg, err := loadConfig(e.db)
	if err != nil {
		return 0, err
	}
	st, err := loadState(e.db)
	if err != nil {
		return 0, err
	}
	id := e.polls.NextPollID(st.PollCount)
	st.PollCount = id

	poll := &pollstore.Poll{
		ID:                    id,
		Creator:               senderID,
		Status:                pollstore.StatusInProgress,
		YesVotes:              uint256.NewInt(0),
		NoVotes:               uint256.NewInt(0),
		EndHeight:             e.clock.BlockHeight() + cfg.VotingPeriod,
		Title:                 msg.Title,
		Description:           msg.Description,
		Link:                  msg.Link,
		TotalShareAtStartPoll: new(uint256.Int).Set(st.TotalShare),
	}
	if err := e.polls.Put(poll); err != nil {
		return 0, err
	}
	if err := saveState(e.db, st); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.NewProposalCreated("nge", id, senderID, poll.EndHeight, "", ""))
	return id, nil
}

func (e *Engine) requireVotable(poll *pollstore.Poll) error {
	now := e.clock.BlockHeight()
	if poll.Status != pollstore.StatusInProgress || now > poll.EndHeight {
		return errs.New(errs.KindPollNotInProgress, "poll %d is not accepting votes", poll.ID)
	}
	return nil
}

// CastVote implements spec §4.4 cast_vote: the voter's own share votes, then
// every account that delegated to them votes the same option under its own
// key.
func (e *Engine) CastVote(voterID string, pollID uint64, vote bank.VoteOption) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	poll, err := e.polls.MustGet(pollID, st.PollCount)
	if err != nil {
		return err
	}
	if err := e.requireVotable(poll); err != nil {
		return err
	}
	voterKey := bank.KeyFromBytes([]byte(voterID))
	if _, ok, err := e.polls.GetVoter(pollID, voterKey); err != nil {
		return err
	} else if ok {
		return errs.New(errs.KindAlreadyVoted, "account already voted on poll %d", pollID)
	}
	voterEntry, err := e.bank.GetOrDefault(voterKey)
	if err != nil {
		return err
	}
	if voterEntry.DelegateTo != nil {
		return errs.New(errs.KindAlreadyDelegated, "voting power is delegated away")
	}

	if err := e.castSingleVote(voterKey, poll, vote); err != nil {
		return err
	}
	for _, delegator := range voterEntry.DelegatedFrom {
		if err := e.castSingleVote(delegator, poll, vote); err != nil {
			return err
		}
	}
	if err := e.polls.Put(poll); err != nil {
		return err
	}
	e.emitter.Emit(events.NewVoteCast("nge", pollID, voterID, vote.String(), ""))
	return nil
}

// castSingleVote implements spec §4.4 cast_single_vote: amount is the
// account's current share; it increments the poll tally in place (the
// caller persists the poll) and records the voter's own bank/poll state.
func (e *Engine) castSingleVote(key bank.Key, poll *pollstore.Poll, vote bank.VoteOption) error {
	entry, err := e.bank.GetOrDefault(key)
	if err != nil {
		return err
	}
	amount := new(uint256.Int).Set(entry.Share)

	switch vote {
	case bank.VoteYes:
		poll.YesVotes = new(uint256.Int).Add(poll.YesVotes, amount)
	case bank.VoteNo:
		poll.NoVotes = new(uint256.Int).Add(poll.NoVotes, amount)
	default:
		return errs.New(errs.KindValidateMsg, "vote must be yes or no")
	}

	entry.Locked = append(entry.Locked, bank.Locked{PollID: poll.ID, Info: bank.VoteInfo{Vote: vote, Balance: amount}})
	if err := e.bank.Put(key, entry); err != nil {
		return err
	}
	return e.polls.PutVoter(poll.ID, key, bank.VoteInfo{Vote: vote, Balance: amount})
}

// CancelVote implements spec §4.4 cancel_vote.
func (e *Engine) CancelVote(voterID string, pollID uint64) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	poll, err := e.polls.MustGet(pollID, st.PollCount)
	if err != nil {
		return err
	}
	voterKey := bank.KeyFromBytes([]byte(voterID))
	info, ok, err := e.polls.GetVoter(pollID, voterKey)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.KindNotYetVoted, "account has not voted on poll %d", pollID)
	}
	if err := e.requireVotable(poll); err != nil {
		return err
	}

	switch info.Vote {
	case bank.VoteYes:
		poll.YesVotes = subFloor(poll.YesVotes, info.Balance)
	case bank.VoteNo:
		poll.NoVotes = subFloor(poll.NoVotes, info.Balance)
	}

	entry, err := e.bank.GetOrDefault(voterKey)
	if err != nil {
		return err
	}
	if _, err := e.bank.ReduceLockedVotes(entry, voterKey); err != nil {
		return err
	}
	retained := entry.Locked[:0:0]
	for _, l := range entry.Locked {
		if l.PollID != pollID {
			retained = append(retained, l)
		}
	}
	entry.Locked = retained
	if err := e.bank.Put(voterKey, entry); err != nil {
		return err
	}
	if err := e.polls.DeleteVoterRecord(pollID, voterKey); err != nil {
		return err
	}
	if err := e.polls.Put(poll); err != nil {
		return err
	}
	e.emitter.Emit(events.NewVoteCancelled(pollID, voterID, amountString(info.Balance)))
	return nil
}

// EndPoll implements spec §4.4 end_poll.
func (e *Engine) EndPoll(pollID uint64) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	poll, err := e.polls.MustGet(pollID, st.PollCount)
	if err != nil {
		return err
	}
	if poll.Status != pollstore.StatusInProgress {
		return errs.New(errs.KindPollNotInProgress, "poll %d is not in progress", pollID)
	}
	now := e.clock.BlockHeight()
	if now < poll.EndHeight {
		return errs.New(errs.KindPollVotingPeriod, "poll %d voting period has not elapsed", pollID)
	}
	cfg, err := loadConfig(e.db)
	if err != nil {
		return err
	}

	tallied := new(uint256.Int).Add(poll.YesVotes, poll.NoVotes)
	var quorum float64
	var stakedAmount *uint256.Int
	if st.TotalShare.IsZero() {
		quorum = 0
		stakedAmount = uint256.NewInt(0)
	} else {
		stakedAmount = maxU(poll.TotalShareAtStartPoll, st.TotalShare)
		quorum = ratio(tallied, stakedAmount)
	}

	passed := false
	reason := ""
	if tallied.IsZero() || quorum < cfg.Quorum {
		reason = "Quorum not reached"
	} else if ratio(poll.YesVotes, tallied) > cfg.Threshold {
		passed = true
	} else {
		reason = "Threshold not reached"
	}

	if passed {
		poll.Status = pollstore.StatusPassed
	} else {
		poll.Status = pollstore.StatusRejected
	}
	poll.TotalShareAtEndPoll = new(uint256.Int).Set(st.TotalShare)
	poll.HasTotalShareAtEnd = true

	if err := e.polls.Put(poll); err != nil {
		return err
	}
	e.emitter.Emit(events.NewPollEnded("nge", pollID, passed, reason))
	return nil
}

// DelegateVote implements spec §4.4 delegate_vote.
func (e *Engine) DelegateVote(voterID, delegatorID string) error {
	voterKey := bank.KeyFromBytes([]byte(voterID))
	delegatorKey := bank.KeyFromBytes([]byte(delegatorID))

	voterEntry, err := e.bank.GetOrDefault(voterKey)
	if err != nil {
		return err
	}
	if _, err := e.bank.ReduceLockedVotes(voterEntry, voterKey); err != nil {
		return err
	}
	if len(voterEntry.Locked) > 0 {
		return errs.New(errs.KindAlreadyVoted, "account has outstanding votes in progress")
	}
	if voterEntry.DelegateTo != nil {
		return errs.New(errs.KindAlreadyDelegated, "account already delegated")
	}

	delegatorEntry, err := e.bank.GetOrDefault(delegatorKey)
	if err != nil {
		return err
	}

	voterEntry.DelegateTo = &delegatorKey
	delegatorEntry.DelegatedFrom = append(delegatorEntry.DelegatedFrom, voterKey)

	if err := e.bank.Put(voterKey, voterEntry); err != nil {
		return err
	}
	if err := e.bank.Put(delegatorKey, delegatorEntry); err != nil {
		return err
	}
	e.emitter.Emit(events.NewDelegated(voterID, delegatorID))
	return nil
}

// UndelegateVote implements spec §4.4 undelegate_vote. The delegator's
// delegated_from list is order-insensitive, so removal uses a swap-remove.
func (e *Engine) UndelegateVote(voterID string) error {
	voterKey := bank.KeyFromBytes([]byte(voterID))
	voterEntry, err := e.bank.GetOrDefault(voterKey)
	if err != nil {
		return err
	}
	if voterEntry.DelegateTo == nil {
		return errs.New(errs.KindNotYetDelegated, "account has no delegation to remove")
	}
	delegatorKey := *voterEntry.DelegateTo
	delegatorEntry, err := e.bank.GetOrDefault(delegatorKey)
	if err != nil {
		return err
	}
	for i, k := range delegatorEntry.DelegatedFrom {
		if k == voterKey {
			last := len(delegatorEntry.DelegatedFrom) - 1
			delegatorEntry.DelegatedFrom[i] = delegatorEntry.DelegatedFrom[last]
			delegatorEntry.DelegatedFrom = delegatorEntry.DelegatedFrom[:last]
			break
		}
	}
	voterEntry.DelegateTo = nil

	if err := e.bank.Put(voterKey, voterEntry); err != nil {
		return err
	}
	if err := e.bank.Put(delegatorKey, delegatorEntry); err != nil {
		return err
	}
	e.emitter.Emit(events.NewUndelegated(voterID))
	return nil
}

// Mint implements spec §4.4 mint: only owner, amount > 0.
func (e *Engine) Mint(caller, recipientID string, amount *uint256.Int) error {
	cfg, err := loadConfig(e.db)
	if err != nil {
		return err
	}
	if caller != cfg.Owner {
		return errs.Unauthorized("caller is not the owner")
	}
	return e.mint(recipientID, amount)
}

func (e *Engine) mint(recipientID string, amount *uint256.Int) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	newShare, newTotalShare, err := e.bank.Mint(bank.KeyFromBytes([]byte(recipientID)), amount, st.TotalShare)
	if err != nil {
		return err
	}
	st.TotalShare = newTotalShare
	if err := saveState(e.db, st); err != nil {
		return err
	}
	e.emitter.Emit(events.NewMemberMutated("mint", recipientID, amountString(amount), amountString(newShare)))
	return nil
}

func (e *Engine) burn(senderID string, amount *uint256.Int) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	newShare, newTotalShare, err := e.bank.Burn(bank.KeyFromBytes([]byte(senderID)), amount, st.TotalShare)
	if err != nil {
		return err
	}
	st.TotalShare = newTotalShare
	if err := saveState(e.db, st); err != nil {
		return err
	}
	e.emitter.Emit(events.NewMemberMutated("burn", senderID, amountString(amount), amountString(newShare)))
	return nil
}

// TransferFrom implements spec §4.4 mint/transfer_from: only owner; amount >
// 0; transfer_from = burn(owner_id, amount) followed by mint(recipient_id,
// amount).
func (e *Engine) TransferFrom(caller, ownerID, recipientID string, amount *uint256.Int) error {
	cfg, err := loadConfig(e.db)
	if err != nil {
		return err
	}
	if caller != cfg.Owner {
		return errs.Unauthorized("caller is not the owner")
	}
	if err := e.burn(ownerID, amount); err != nil {
		return err
	}
	return e.mint(recipientID, amount)
}

// Exit implements spec §4.4 exit: burn the sender's entire balance. It
// succeeds even with a zero balance; a locked balance that still exceeds the
// unlocked portion surfaces InvalidWithdrawAmount from the underlying Burn.
func (e *Engine) Exit(senderID string) error {
	key := bank.KeyFromBytes([]byte(senderID))
	entry, err := e.bank.GetOrDefault(key)
	if err != nil {
		return err
	}
	return e.burn(senderID, entry.Balance)
}

// Dispatch routes a decoded Membership Token Gateway forward (spec §4.4
// receive, §4.5 execute_dao) to the matching engine operation. tokenID
// functions as the voter identity for the inner call.
func (e *Engine) Dispatch(sender, tokenID string, p Payload) (uint64, error) {
	switch p.Kind {
	case PayloadCreatePoll:
		return e.CreatePoll(tokenID, p.CreatePoll)
	case PayloadCastVote:
		return 0, e.CastVote(tokenID, p.PollID, bank.VoteOption(p.Vote))
	case PayloadCancelVote:
		return 0, e.CancelVote(tokenID, p.PollID)
	case PayloadEndPoll:
		return 0, e.EndPoll(p.PollID)
	case PayloadDelegateVote:
		return 0, e.DelegateVote(tokenID, p.DelegatorID)
	case PayloadUnDelegateVote:
		return 0, e.UndelegateVote(tokenID)
	case PayloadExit:
		return 0, e.Exit(tokenID)
	default:
		return 0, errs.New(errs.KindDataShouldBeGiven, "unrecognized payload kind %q", p.Kind)
	}
}

func ratio(numerator, denominator *uint256.Int) float64 {
	if denominator == nil || denominator.IsZero() {
		return 0
	}
	n, _ := new(big.Float).SetInt(numerator.ToBig()).Float64()
	d, _ := new(big.Float).SetInt(denominator.ToBig()).Float64()
	if d == 0 {
		return 0
	}
	return n / d
}

func maxU(a, b *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int).Set(b)
	}
	if b == nil {
		return new(uint256.Int).Set(a)
	}
	if a.Cmp(b) > 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

func subFloor(a, b *uint256.Int) *uint256.Int {
	if a == nil {
		return uint256.NewInt(0)
	}
	if b == nil {
		return new(uint256.Int).Set(a)
	}
	if a.Cmp(b) < 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(a, b)
}
