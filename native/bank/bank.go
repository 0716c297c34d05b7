// Package bank implements the Share Bank (spec §4.1): per-account voting
// share accounting shared in common form by the fungible and non-fungible
// governance engines. The bank is generalized over an opaque voter Key
// (canonical address bytes in FGE, raw token-id bytes in NGE) per the
// design note in spec §9.
package bank

import (
	"fmt"

	"github.com/holiman/uint256"

	"daogov/errs"
)

// Key is the opaque per-account identity the bank accounts against.
type Key string

// KeyFromBytes wraps raw bytes as a Key without copying semantics beyond the
// Go string conversion (which does copy, keeping the original slice safe to
// reuse).
func KeyFromBytes(b []byte) Key { return Key(b) }

// Bytes returns the underlying identity bytes.
func (k Key) Bytes() []byte { return []byte(k) }

// VoteOption is the ballot selection recorded in a VoteInfo.
type VoteOption uint8

const (
	VoteUnspecified VoteOption = iota
	VoteYes
	VoteNo
)

func (v VoteOption) String() string {
	switch v {
	case VoteYes:
		return "yes"
	case VoteNo:
		return "no"
	default:
		return "unspecified"
	}
}

// VoteInfo records the option and locked balance of a single outstanding
// ballot.
type VoteInfo struct {
	Vote    VoteOption
	Balance *uint256.Int
}

// Locked pairs a VoteInfo with the poll it was cast on, mirroring the
// (poll_id, VoteInfo) sequence from spec §3.
type Locked struct {
	PollID uint64
	Info   VoteInfo
}

// Entry is a bank entry (spec §3 "Bank entry"). Balance/DelegateTo/
// DelegatedFrom are NGE-only fields; FGE never populates them.
type Entry struct {
	Share  *uint256.Int
	Locked []Locked

	// NGE-only.
	Balance       *uint256.Int
	DelegateTo    *Key
	DelegatedFrom []Key
}

// Clone deep-copies an entry so callers can mutate the result without
// aliasing store-internal state.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return Default()
	}
	out := &Entry{Share: cloneUint(e.Share), Locked: make([]Locked, len(e.Locked))}
	copy(out.Locked, e.Locked)
	for i := range out.Locked {
		out.Locked[i].Info.Balance = cloneUint(out.Locked[i].Info.Balance)
	}
	if e.Balance != nil {
		out.Balance = cloneUint(e.Balance)
	}
	if e.DelegateTo != nil {
		d := *e.DelegateTo
		out.DelegateTo = &d
	}
	if len(e.DelegatedFrom) > 0 {
		out.DelegatedFrom = append([]Key(nil), e.DelegatedFrom...)
	}
	return out
}

// Default returns a zero-initialized bank entry.
func Default() *Entry {
	return &Entry{Share: uint256.NewInt(0), Balance: uint256.NewInt(0)}
}

func cloneUint(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(v)
}

// PollGate is the narrow view of the poll store the bank needs to garbage
// collect locked entries referencing terminated polls (spec §3: "entries
// whose poll status is no longer InProgress are garbage-collected").
type PollGate interface {
	IsInProgress(pollID uint64) (bool, error)
	DeleteVoter(pollID uint64, voter []byte) error
}

// Store persists bank entries keyed by voter Key.
type Store interface {
	GetEntry(key Key) (*Entry, bool, error)
	PutEntry(key Key, entry *Entry) error
}

// Bank implements the operations of spec §4.1 over a Store and PollGate.
type Bank struct {
	store Store
	gate  PollGate
}

// New constructs a Bank.
func New(store Store, gate PollGate) *Bank {
	return &Bank{store: store, gate: gate}
}

// GetOrDefault returns the account's entry, or a zero-initialized default if
// none exists yet (spec §4.1 get_or_default).
func (b *Bank) GetOrDefault(key Key) (*Entry, error) {
	entry, ok, err := b.store.GetEntry(key)
	if err != nil {
		return nil, err
	}
	if !ok || entry == nil {
		return Default(), nil
	}
	return entry.Clone(), nil
}

// put persists the entry, cloning defensively so the caller's copy stays
// independent of stored state.
func (b *Bank) put(key Key, entry *Entry) error {
	return b.store.PutEntry(key, entry.Clone())
}

// Put persists an entry an engine has mutated directly (e.g. appending a
// locked vote during cast_vote), without going through one of the bank's own
// accounting operations.
func (b *Bank) Put(key Key, entry *Entry) error { return b.put(key, entry) }

// ReduceLockedVotes implements the locked-vote reduction (spec §4.1): it
// retains only locked entries whose referenced poll is still InProgress,
// removing the per-poll voter mapping for discarded entries, and returns the
// maximum locked balance across the retained entries (or zero if none
// remain). The entry is mutated in place to reflect the retained set; the
// caller is responsible for persisting it if desired.
func (b *Bank) ReduceLockedVotes(entry *Entry, voterKey Key) (*uint256.Int, error) {
	if entry == nil {
		return uint256.NewInt(0), nil
	}
	retained := entry.Locked[:0:0]
	max := uint256.NewInt(0)
	for _, locked := range entry.Locked {
		inProgress, err := b.gate.IsInProgress(locked.PollID)
		if err != nil {
			return nil, err
		}
		if !inProgress {
			if err := b.gate.DeleteVoter(locked.PollID, voterKey.Bytes()); err != nil {
				return nil, err
			}
			continue
		}
		retained = append(retained, locked)
		if locked.Info.Balance != nil && locked.Info.Balance.Cmp(max) > 0 {
			max = cloneUint(locked.Info.Balance)
		}
	}
	entry.Locked = retained
	return max, nil
}

// Stake credits a fungible deposit to sender's share (spec §4.1 stake,
// FGE-only). totalBalanceExclIncoming is token_balance(self) − total_deposit
// − amount, i.e. the pool excluding both the outstanding deposits and the
// transfer that funded this call (the transfer is already reflected in the
// raw balance the caller observed).
func (b *Bank) Stake(key Key, amount, totalBalanceExclIncoming, totalShare *uint256.Int) (share *uint256.Int, newTotalShare *uint256.Int, err error) {
	if amount == nil || amount.IsZero() {
		return nil, nil, errs.New(errs.KindInsufficientFunds, "stake amount must be positive")
	}
	entry, err := b.GetOrDefault(key)
	if err != nil {
		return nil, nil, err
	}
	if totalBalanceExclIncoming.IsZero() || totalShare.IsZero() {
		share = cloneUint(amount)
	} else {
		share = mulDiv(amount, totalShare, totalBalanceExclIncoming)
	}
	entry.Share = addU(entry.Share, share)
	newTotalShare = addU(totalShare, share)
	if err := b.put(key, entry); err != nil {
		return nil, nil, err
	}
	return share, newTotalShare, nil
}

// WithdrawResult captures the outcome of Withdraw.
type WithdrawResult struct {
	WithdrawShare  *uint256.Int
	WithdrawAmount *uint256.Int
	NewTotalShare  *uint256.Int
}

// Withdraw implements spec §4.1 withdraw. totalBalance is
// token_balance(self) − total_deposit (the caller's own pending transfer, if
// any, is NOT reflected — withdraw never arrives bundled with an incoming
// transfer). amount is nil for a full withdrawal.
//
// Known ambiguity preserved per spec §9(a): the locked_share conversion uses
// the *current* total_balance/total_share ratio even though the locked
// votes were cast against a historical balance; this is intentional and must
// not be "fixed".
func (b *Bank) Withdraw(key Key, amount *uint256.Int, totalBalance, totalShare *uint256.Int) (*WithdrawResult, error) {
	entry, found, err := b.store.GetEntry(key)
	if err != nil {
		return nil, err
	}
	if !found || entry == nil {
		return nil, errs.New(errs.KindNothingStaked, "no staked balance for account")
	}
	entry = entry.Clone()

	lockedBalance, err := b.ReduceLockedVotes(entry, key)
	if err != nil {
		return nil, err
	}
	var lockedShare *uint256.Int
	if totalBalance.IsZero() {
		lockedShare = uint256.NewInt(0)
	} else {
		lockedShare = mulDiv(lockedBalance, totalShare, totalBalance)
	}

	var withdrawShare, withdrawAmount *uint256.Int
	if amount == nil {
		if entry.Share.Cmp(lockedShare) < 0 {
			withdrawShare = uint256.NewInt(0)
		} else {
			withdrawShare = subU(entry.Share, lockedShare)
		}
		if totalShare.IsZero() {
			withdrawAmount = uint256.NewInt(0)
		} else {
			withdrawAmount = mulDiv(withdrawShare, totalBalance, totalShare)
		}
	} else {
		withdrawAmount = cloneUint(amount)
		if totalBalance.IsZero() {
			withdrawShare = uint256.NewInt(1)
		} else {
			computed := mulDiv(amount, totalShare, totalBalance)
			if computed.IsZero() {
				withdrawShare = uint256.NewInt(1)
			} else {
				withdrawShare = computed
			}
		}
	}

	if addU(lockedShare, withdrawShare).Cmp(entry.Share) > 0 {
		return nil, errs.New(errs.KindInvalidWithdrawAmount, "withdraw amount exceeds unlocked share")
	}

	entry.Share = subU(entry.Share, withdrawShare)
	newTotalShare := subU(totalShare, withdrawShare)
	if err := b.put(key, entry); err != nil {
		return nil, err
	}
	return &WithdrawResult{WithdrawShare: withdrawShare, WithdrawAmount: withdrawAmount, NewTotalShare: newTotalShare}, nil
}

// Mint implements spec §4.1 mint (NGE-only): credits amount to balance and
// recomputes share = isqrt(balance).
func (b *Bank) Mint(key Key, amount, totalShare *uint256.Int) (newShare, newTotalShare *uint256.Int, err error) {
	if amount == nil || amount.IsZero() {
		return nil, nil, errs.New(errs.KindInsufficientFunds, "mint amount must be positive")
	}
	entry, err := b.GetOrDefault(key)
	if err != nil {
		return nil, nil, err
	}
	oldShare := cloneUint(entry.Share)
	entry.Balance = addU(entry.Balance, amount)
	entry.Share = isqrt(entry.Balance)
	newTotalShare = addU(subU(totalShare, oldShare), entry.Share)
	if err := b.put(key, entry); err != nil {
		return nil, nil, err
	}
	return entry.Share, newTotalShare, nil
}

// Burn implements spec §4.1 burn (NGE-only).
func (b *Bank) Burn(key Key, amount, totalShare *uint256.Int) (newShare, newTotalShare *uint256.Int, err error) {
	amount = cloneUint(amount)
	entry, found, err := b.store.GetEntry(key)
	if err != nil {
		return nil, nil, err
	}
	if !found || entry == nil {
		entry = Default()
	} else {
		entry = entry.Clone()
	}

	lockedShare, err := b.ReduceLockedVotes(entry, key)
	if err != nil {
		return nil, nil, err
	}
	lockedAmount, overflow := new(uint256.Int).MulOverflow(lockedShare, lockedShare)
	if overflow {
		return nil, nil, fmt.Errorf("bank: locked amount overflow")
	}
	if new(uint256.Int).Add(lockedAmount, amount).Cmp(entry.Balance) > 0 {
		return nil, nil, errs.New(errs.KindInvalidWithdrawAmount, "burn amount exceeds unlocked balance")
	}

	oldShare := cloneUint(entry.Share)
	entry.Balance = subU(entry.Balance, amount)
	entry.Share = isqrt(entry.Balance)
	newTotalShare = addU(subU(totalShare, oldShare), entry.Share)
	if err := b.put(key, entry); err != nil {
		return nil, nil, err
	}
	return entry.Share, newTotalShare, nil
}

// isqrt returns the integer square root via uint256's native Sqrt, grounding
// NGE's quadratic-voting share derivation (spec §4.1, §9 GLOSSARY).
func isqrt(v *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(v)
}

func addU(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Add(cloneUint(a), cloneUint(b)) }

func subU(a, b *uint256.Int) *uint256.Int {
	a, b = cloneUint(a), cloneUint(b)
	if a.Cmp(b) < 0 {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Sub(a, b)
}

// mulDiv computes floor(a*b/c) using 512-bit intermediate precision via
// MulDivOverflow, avoiding the overflow a naive 256-bit multiply could hit
// for large share ratios.
func mulDiv(a, b, c *uint256.Int) *uint256.Int {
	if c == nil || c.IsZero() {
		return uint256.NewInt(0)
	}
	result, overflow := new(uint256.Int).MulDivOverflow(cloneUint(a), cloneUint(b), c)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return result
}
