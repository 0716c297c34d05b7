package bank

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	entries map[Key]*Entry
}

func newMemStore() *memStore { return &memStore{entries: make(map[Key]*Entry)} }

func (m *memStore) GetEntry(key Key) (*Entry, bool, error) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (m *memStore) PutEntry(key Key, entry *Entry) error {
	m.entries[key] = entry.Clone()
	return nil
}

type memGate struct {
	inProgress map[uint64]bool
	deleted    []uint64
}

func newMemGate() *memGate { return &memGate{inProgress: make(map[uint64]bool)} }

func (g *memGate) IsInProgress(pollID uint64) (bool, error) { return g.inProgress[pollID], nil }

func (g *memGate) DeleteVoter(pollID uint64, voter []byte) error {
	g.deleted = append(g.deleted, pollID)
	return nil
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestStakeFirstDepositorGetsOneToOneShare(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)

	share, totalShare, err := b.Stake(Key("u1"), u(100), u(0), u(0))
	require.NoError(t, err)
	require.Equal(t, u(100), share)
	require.Equal(t, u(100), totalShare)
}

func TestStakeProportionalShare(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)

	// U1 stakes 100 against an empty pool.
	_, totalShare, err := b.Stake(Key("u1"), u(100), u(0), u(0))
	require.NoError(t, err)
	require.Equal(t, u(100), totalShare)

	// U2 stakes 100 into a pool that (excluding its own incoming transfer)
	// already holds 100.
	share2, totalShare2, err := b.Stake(Key("u2"), u(100), u(100), u(100))
	require.NoError(t, err)
	require.Equal(t, u(100), share2)
	require.Equal(t, u(200), totalShare2)
}

func TestStakeRejectsZeroAmount(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)
	_, _, err := b.Stake(Key("u1"), u(0), u(0), u(0))
	require.Error(t, err)
}

func TestReduceLockedVotesKeepsMaxAcrossInProgressPolls(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)
	gate.inProgress[1] = true
	gate.inProgress[2] = true

	entry := Default()
	entry.Share = u(100)
	entry.Locked = []Locked{
		{PollID: 1, Info: VoteInfo{Vote: VoteYes, Balance: u(30)}},
		{PollID: 2, Info: VoteInfo{Vote: VoteNo, Balance: u(60)}},
	}
	require.NoError(t, store.PutEntry(Key("u1"), entry))

	max, err := b.ReduceLockedVotes(entry, Key("u1"))
	require.NoError(t, err)
	require.Equal(t, u(60), max)
	require.Len(t, entry.Locked, 2)
}

func TestReduceLockedVotesDropsTerminatedPolls(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)
	gate.inProgress[1] = false // terminated
	gate.inProgress[2] = true

	entry := Default()
	entry.Locked = []Locked{
		{PollID: 1, Info: VoteInfo{Vote: VoteYes, Balance: u(90)}},
		{PollID: 2, Info: VoteInfo{Vote: VoteNo, Balance: u(10)}},
	}

	max, err := b.ReduceLockedVotes(entry, Key("u1"))
	require.NoError(t, err)
	require.Equal(t, u(10), max)
	require.Len(t, entry.Locked, 1)
	require.Equal(t, uint64(2), entry.Locked[0].PollID)
	require.Equal(t, []uint64{1}, gate.deleted)
}

func TestWithdrawPartialRespectsLock(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)
	gate.inProgress[1] = true

	entry := Default()
	entry.Share = u(100)
	entry.Locked = []Locked{{PollID: 1, Info: VoteInfo{Vote: VoteYes, Balance: u(60)}}}
	require.NoError(t, store.PutEntry(Key("u1"), entry))

	// totalBalance == totalShare so share<->amount is 1:1 for this scenario.
	res, err := b.Withdraw(Key("u1"), u(30), u(100), u(100))
	require.NoError(t, err)
	require.Equal(t, u(30), res.WithdrawAmount)

	stored, _, err := store.GetEntry(Key("u1"))
	require.NoError(t, err)
	require.Equal(t, u(70), stored.Share)
}

func TestWithdrawFailsWhenExceedingUnlockedShare(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)
	gate.inProgress[1] = true

	entry := Default()
	entry.Share = u(100)
	entry.Locked = []Locked{{PollID: 1, Info: VoteInfo{Vote: VoteYes, Balance: u(90)}}}
	require.NoError(t, store.PutEntry(Key("u1"), entry))

	_, err := b.Withdraw(Key("u1"), u(50), u(100), u(100))
	require.Error(t, err)
}

func TestWithdrawFullWithNoLocks(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)

	entry := Default()
	entry.Share = u(100)
	require.NoError(t, store.PutEntry(Key("u1"), entry))

	res, err := b.Withdraw(Key("u1"), nil, u(100), u(100))
	require.NoError(t, err)
	require.Equal(t, u(100), res.WithdrawShare)
	require.Equal(t, u(100), res.WithdrawAmount)
}

func TestMintSetsShareToIntegerSqrt(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)

	shareA, totalShare, err := b.Mint(Key("A"), u(100), u(0))
	require.NoError(t, err)
	require.Equal(t, u(10), shareA)
	require.Equal(t, u(10), totalShare)

	shareB, totalShare2, err := b.Mint(Key("B"), u(400), totalShare)
	require.NoError(t, err)
	require.Equal(t, u(20), shareB)
	require.Equal(t, u(30), totalShare2)
}

func TestBurnRoundTripRestoresState(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)

	_, totalShare, err := b.Mint(Key("A"), u(100), u(0))
	require.NoError(t, err)
	require.Equal(t, u(10), totalShare)

	newShare, newTotalShare, err := b.Burn(Key("A"), u(100), totalShare)
	require.NoError(t, err)
	require.Equal(t, u(0), newShare)
	require.Equal(t, u(0), newTotalShare)
}

func TestBurnRejectsWhenLocked(t *testing.T) {
	store, gate := newMemStore(), newMemGate()
	b := New(store, gate)
	gate.inProgress[1] = true

	_, totalShare, err := b.Mint(Key("A"), u(100), u(0))
	require.NoError(t, err)

	entry, _, err := store.GetEntry(Key("A"))
	require.NoError(t, err)
	entry.Locked = []Locked{{PollID: 1, Info: VoteInfo{Vote: VoteYes, Balance: u(10)}}}
	require.NoError(t, store.PutEntry(Key("A"), entry))

	_, _, err = b.Burn(Key("A"), u(100), totalShare)
	require.Error(t, err)
}
