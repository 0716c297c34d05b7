package fge

import (
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"daogov/core/clock"
	"daogov/core/events"
	"daogov/errs"
	"daogov/native/bank"
	"daogov/native/pollstore"
	"daogov/storage"
)

// FungibleToken is the external cw20-style token the engine queries and
// instructs (spec §4.1 stake/withdraw, §4.3 deposit refund). Balance queries
// are always "fresh" per §5 ("external token balances are queried fresh each
// time").
type FungibleToken interface {
	BalanceOf(addr string) (*uint256.Int, error)
	Transfer(to string, amount *uint256.Int) error
}

// Engine implements the Fungible Governance Engine (spec §4.3).
type Engine struct {
	db      storage.Database
	bank    *bank.Bank
	polls   *pollstore.Store
	token   FungibleToken
	clock   clock.Source
	emitter events.Emitter
}

// New wires an Engine over the given database, token client, clock, and
// event sink. The poll store also serves as the bank's PollGate (spec §9).
func New(db storage.Database, token FungibleToken, clockSource clock.Source, emitter events.Emitter) *Engine {
	polls := pollstore.New(db)
	bankStore := bank.NewKVStore(db, "fgebank:")
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Engine{
		db:      db,
		bank:    bank.New(bankStore, polls),
		polls:   polls,
		token:   token,
		clock:   clockSource,
		emitter: emitter,
	}
}

// Instantiate creates Config and State (spec §6 "Instantiate (FGE)"). sender
// becomes owner; self is the engine's own address, used for the
// execute_poll_messages caller check.
func (e *Engine) Instantiate(sender, self string, cfg Config) error {
	cfg.Owner = sender
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ProposalDeposit == nil {
		cfg.ProposalDeposit = uint256.NewInt(0)
	}
	if err := saveConfig(e.db, cfg); err != nil {
		return err
	}
	st := State{ContractAddr: self, PollCount: 0, TotalShare: uint256.NewInt(0), TotalDeposit: uint256.NewInt(0)}
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

// Staker returns a voter's bank entry (Query: Staker{id}).
func (e *Engine) Staker(addr string) (*bank.Entry, error) {
	return e.bank.GetOrDefault(bank.KeyFromBytes([]byte(addr)))
}

// UpdateConfig implements spec §4.3 update_config: only owner may call.
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
	e.emitter.Emit(events.NewConfigUpdated("fge", next.Owner))
	return nil
}

// tokenBalanceExclDeposit computes token_balance(self) − total_deposit,
// floored at zero: the pool excluding pending deposits. Callers that must
// also exclude the transfer that funded the call subtract its amount
// themselves.
func (e *Engine) tokenBalanceExclDeposit(st State) (*uint256.Int, error) {
	bal, err := e.token.BalanceOf(st.ContractAddr)
	if err != nil {
		return nil, err
	}
	return subFloor(bal, st.TotalDeposit), nil
}

// StakeVotingTokens implements the Receive{StakeVotingTokens} dispatch (spec
// §4.3 receive, §4.1 stake).
func (e *Engine) StakeVotingTokens(tokenCaller, sender string, amount *uint256.Int) error {
	cfg, err := loadConfig(e.db)
	if err != nil {
		return err
	}
	if tokenCaller != cfg.Token {
		return errs.Unauthorized("sender is not the configured token")
	}
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	totalExclIncoming, err := e.tokenBalanceExclDeposit(st)
	if err != nil {
		return err
	}
	totalExclIncoming = subFloor(totalExclIncoming, amount)
	share, newTotalShare, err := e.bank.Stake(bank.KeyFromBytes([]byte(sender)), amount, totalExclIncoming, st.TotalShare)
	if err != nil {
		return err
	}
	st.TotalShare = newTotalShare
	if err := saveState(e.db, st); err != nil {
		return err
	}
	e.emitter.Emit(events.NewVotingTokensStaked(sender, amountString(amount), amountString(share)))
	return nil
}

// CreatePoll implements the Receive{CreatePoll} dispatch (spec §4.3 receive).
func (e *Engine) CreatePoll(tokenCaller, sender string, amount *uint256.Int, msg CreatePollMsg) (uint64, error) {
	cfg, err := loadConfig(e.db)
	if err != nil {
		return 0, err
	}
	if tokenCaller != cfg.Token {
		return 0, errs.Unauthorized("sender is not the configured token")
	}
	if err := validateStrings(msg.Title, msg.Description, msg.Link); err != nil {
		return 0, err
	}
	if amount == nil || amount.Cmp(cfg.ProposalDeposit) < 0 {
		return 0, errs.InsufficientProposalDeposit(amountString(cfg.ProposalDeposit))
	}
	st, err := loadState(e.db)
	if err != nil {
		return 0, err
	}
	id := e.polls.NextPollID(st.PollCount)
	st.PollCount = id
	st.TotalDeposit = new(uint256.Int).Add(st.TotalDeposit, amount)

	sortedMsgs := append([]pollstore.ExecuteMsg(nil), msg.ExecuteMsgs...)
	sort.Slice(sortedMsgs, func(i, j int) bool { return sortedMsgs[i].Order < sortedMsgs[j].Order })

	poll := &pollstore.Poll{
		ID:            id,
		Creator:       sender,
		Status:        pollstore.StatusInProgress,
		YesVotes:      uint256.NewInt(0),
		NoVotes:       uint256.NewInt(0),
		EndHeight:     e.clock.BlockHeight() + cfg.VotingPeriod,
		Title:         msg.Title,
		Description:   msg.Description,
		Link:          msg.Link,
		DepositAmount: new(uint256.Int).Set(amount),
		ExecuteMsgs:   sortedMsgs,
	}
	if err := e.polls.Put(poll); err != nil {
		return 0, err
	}
	if err := saveState(e.db, st); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.NewProposalCreated("fge", id, sender, poll.EndHeight, amountString(amount), messagesFingerprint(sortedMsgs)))
	return id, nil
}

func (e *Engine) requireInProgress(poll *pollstore.Poll) error {
	if poll.Status != pollstore.StatusInProgress {
		return errs.New(errs.KindPollNotInProgress, "poll %d is not in progress", poll.ID)
	}
	return nil
}

// CastVote implements spec §4.3 cast_vote.
func (e *Engine) CastVote(sender string, pollID uint64, vote bank.VoteOption, amount *uint256.Int) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	poll, err := e.polls.MustGet(pollID, st.PollCount)
	if err != nil {
		return err
	}
	now := e.clock.BlockHeight()
	if poll.Status != pollstore.StatusInProgress || now > poll.EndHeight {
		return errs.New(errs.KindPollNotInProgress, "poll %d is not accepting votes", pollID)
	}
	voterKey := bank.KeyFromBytes([]byte(sender))
	if _, ok, err := e.polls.GetVoter(pollID, voterKey); err != nil {
		return err
	} else if ok {
		return errs.New(errs.KindAlreadyVoted, "account already voted on poll %d", pollID)
	}

	totalBalance, err := e.token.BalanceOf(st.ContractAddr)
	if err != nil {
		return err
	}
	totalBalance = subFloor(totalBalance, st.TotalDeposit)

	entry, err := e.bank.GetOrDefault(voterKey)
	if err != nil {
		return err
	}
	maxAmount := uint256.NewInt(0)
	if !st.TotalShare.IsZero() {
		maxAmount = mulDiv(entry.Share, totalBalance, st.TotalShare)
	}
	if maxAmount.Cmp(amount) < 0 {
		return errs.New(errs.KindInsufficientFunds, "vote amount exceeds account's share-derived balance")
	}

	switch vote {
	case bank.VoteYes:
		poll.YesVotes = new(uint256.Int).Add(poll.YesVotes, amount)
	case bank.VoteNo:
		poll.NoVotes = new(uint256.Int).Add(poll.NoVotes, amount)
	default:
		return errs.New(errs.KindValidateMsg, "vote must be yes or no")
	}

	entry.Locked = append(entry.Locked, bank.Locked{PollID: pollID, Info: bank.VoteInfo{Vote: vote, Balance: new(uint256.Int).Set(amount)}})
	if err := e.bank.Put(voterKey, entry); err != nil {
		return err
	}
	if err := e.polls.PutVoter(pollID, voterKey, bank.VoteInfo{Vote: vote, Balance: new(uint256.Int).Set(amount)}); err != nil {
		return err
	}

	if _, err := e.maybeSnapshotFold(poll, now); err != nil {
		return err
	}
	if err := e.polls.Put(poll); err != nil {
		return err
	}
	e.emitter.Emit(events.NewVoteCast("fge", pollID, sender, vote.String(), amountString(amount)))
	return nil
}

// maybeSnapshotFold implements the snapshot fold embedded in cast_vote (spec
// §4.3: "if (end_height − current_block) < snapshot_period and
// poll.staked_amount is absent, set staked_amount = total_balance").
func (e *Engine) maybeSnapshotFold(poll *pollstore.Poll, now uint64) (bool, error) {
	if poll.HasStakedAmount {
		return false, nil
	}
	cfg, err := loadConfig(e.db)
	if err != nil {
		return false, err
	}
	if poll.EndHeight < now || poll.EndHeight-now >= cfg.SnapshotPeriod {
		return false, nil
	}
	st, err := loadState(e.db)
	if err != nil {
		return false, err
	}
	bal, err := e.token.BalanceOf(st.ContractAddr)
	if err != nil {
		return false, err
	}
	total := subFloor(bal, st.TotalDeposit)
	poll.HasStakedAmount = true
	poll.StakedAmount = total
	e.emitter.Emit(events.NewSnapshotTaken(poll.ID, amountString(total)))
	return true, nil
}

// SnapshotPoll implements spec §4.3 snapshot_poll as a standalone operation.
func (e *Engine) SnapshotPoll(pollID uint64) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	poll, err := e.polls.MustGet(pollID, st.PollCount)
	if err != nil {
		return err
	}
	if err := e.requireInProgress(poll); err != nil {
		return err
	}
	cfg, err := loadConfig(e.db)
	if err != nil {
		return err
	}
	now := e.clock.BlockHeight()
	if poll.EndHeight < now || poll.EndHeight-now > cfg.SnapshotPeriod {
		return errs.New(errs.KindSnapshotHeight, "too early to snapshot poll %d", pollID)
	}
	if poll.HasStakedAmount {
		return errs.New(errs.KindSnapshotAlreadyOccurred, "poll %d already snapshotted", pollID)
	}
	bal, err := e.token.BalanceOf(st.ContractAddr)
	if err != nil {
		return err
	}
	total := subFloor(bal, st.TotalDeposit)
	poll.HasStakedAmount = true
	poll.StakedAmount = total
	if err := e.polls.Put(poll); err != nil {
		return err
	}
	e.emitter.Emit(events.NewSnapshotTaken(pollID, amountString(total)))
	return nil
}

// EndPoll implements spec §4.3 end_poll.
func (e *Engine) EndPoll(pollID uint64) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	poll, err := e.polls.MustGet(pollID, st.PollCount)
	if err != nil {
		return err
	}
	if err := e.requireInProgress(poll); err != nil {
		return err
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
	var stakedWeight *uint256.Int
	if st.TotalShare.IsZero() {
		quorum = 0
		stakedWeight = uint256.NewInt(0)
	} else if poll.HasStakedAmount {
		stakedWeight = poll.StakedAmount
		quorum = ratio(tallied, stakedWeight)
	} else {
		bal, err := e.token.BalanceOf(st.ContractAddr)
		if err != nil {
			return err
		}
		stakedWeight = subFloor(bal, st.TotalDeposit)
		quorum = ratio(tallied, stakedWeight)
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
		if poll.DepositAmount != nil && !poll.DepositAmount.IsZero() {
			if err := e.token.Transfer(poll.Creator, poll.DepositAmount); err != nil {
				return err
			}
		}
	} else {
		poll.Status = pollstore.StatusRejected
	}

	st.TotalDeposit = subFloor(st.TotalDeposit, poll.DepositAmount)
	poll.TotalBalanceAtEndPoll = stakedWeight

	if err := e.polls.Put(poll); err != nil {
		return err
	}
	if err := saveState(e.db, st); err != nil {
		return err
	}
	e.emitter.Emit(events.NewPollEnded("fge", pollID, passed, reason))
	return nil
}

// WithdrawVotingTokens implements spec §4.1 withdraw as exposed through the
// FGE (spec §6 "WithdrawVotingTokens{amount?}"). A nil amount withdraws the
// entire unlocked share.
func (e *Engine) WithdrawVotingTokens(sender string, amount *uint256.Int) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	totalBalance, err := e.tokenBalanceExclDeposit(st)
	if err != nil {
		return err
	}
	key := bank.KeyFromBytes([]byte(sender))
	result, err := e.bank.Withdraw(key, amount, totalBalance, st.TotalShare)
	if err != nil {
		return err
	}
	st.TotalShare = result.NewTotalShare
	if err := saveState(e.db, st); err != nil {
		return err
	}
	if result.WithdrawAmount != nil && !result.WithdrawAmount.IsZero() {
		if err := e.token.Transfer(sender, result.WithdrawAmount); err != nil {
			return err
		}
	}
	e.emitter.Emit(events.NewWithdraw(sender, amountString(result.WithdrawAmount), amountString(result.WithdrawShare)))
	return nil
}

// ExecutePoll implements spec §4.3 execute_poll: for a passed poll whose
// timelock has expired it stashes the poll id in the scratch slot, so that a
// following ExecutePollMessages call (invoked with caller == self) knows
// which poll to execute. ExecutePoll does not invoke ExecutePollMessages
// itself and emits no event.
func (e *Engine) ExecutePoll(pollID uint64) error {
	st, err := loadState(e.db)
	if err != nil {
		return err
	}
	poll, err := e.polls.MustGet(pollID, st.PollCount)
	if err != nil {
		return err
	}
	if poll.Status != pollstore.StatusPassed {
		return errs.New(errs.KindPollNotPassed, "poll %d has not passed", pollID)
	}
	cfg, err := loadConfig(e.db)
	if err != nil {
		return err
	}
	now := e.clock.BlockHeight()
	if now < poll.EndHeight+cfg.TimelockPeriod {
		return errs.New(errs.KindTimelockNotExpired, "timelock for poll %d has not expired", pollID)
	}
	return saveScratchPollID(e.db, pollID)
}

// ExecutePollMessages implements spec §4.3 execute_poll_messages: the only
// self-invocation in the engine, guarded by caller == self (spec §5). It
// transitions the poll to Executed and returns its sorted execute payloads
// for the host to dispatch; reply-on-error semantics are the host's
// responsibility (spec §5 "Reply-on-error").
func (e *Engine) ExecutePollMessages(caller string) ([]pollstore.ExecuteMsg, error) {
	st, err := loadState(e.db)
	if err != nil {
		return nil, err
	}
	if caller != st.ContractAddr {
		return nil, errs.Unauthorized("execute_poll_messages may only be invoked by the engine itself")
	}
	pollID, ok, err := loadScratchPollID(e.db)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.New(errs.KindDataShouldBeGiven, "no poll scheduled for execution")
	}
	poll, err := e.polls.MustGet(pollID, st.PollCount)
	if err != nil {
		return nil, err
	}
	if poll.Status != pollstore.StatusPassed {
		return nil, errs.New(errs.KindPollNotPassed, "poll %d has not passed", pollID)
	}
	poll.Status = pollstore.StatusExecuted
	if err := e.polls.Put(poll); err != nil {
		return nil, err
	}
	if err := clearScratchPollID(e.db); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.NewPollExecuted(pollID, len(poll.ExecuteMsgs)))
	return poll.ExecuteMsgs, nil
}

// ratio approximates numerator/denominator as a float64 for comparison
// against the config's quorum/threshold fractions. uint256's Float64
// conversion is lossy only far beyond the token-supply magnitudes this
// engine deals with.
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

// mulDiv computes floor(a*b/c) using 512-bit intermediate precision,
// matching native/bank's overflow-safe share-ratio arithmetic.
func mulDiv(a, b, c *uint256.Int) *uint256.Int {
	if c == nil || c.IsZero() {
		return uint256.NewInt(0)
	}
	result, overflow := new(uint256.Int).MulDivOverflow(a, b, c)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return result
}

// subFloor computes a−b floored at zero. uint256 has no signed
// representation, so a plain Sub wraps on underflow instead of going
// negative; every subtraction of a possibly-larger value from a smaller one
// (token balance minus outstanding deposits, for instance) must go through
// this helper instead.
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
