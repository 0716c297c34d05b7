package nge

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"daogov/core/clock"
	"daogov/errs"
	"daogov/native/bank"
	"daogov/native/pollstore"
	"daogov/storage"
)

const (
	contractAddr = "contract1"
	ownerAddr    = "owner1"
	alice        = "token-1"
	bob          = "token-2"
	carol        = "token-3"
)

func newEngine(t *testing.T) (*Engine, *clock.Mutable) {
	t.Helper()
	db := storage.NewMemDB()
	ck := clock.NewMutable(0)
	e := New(db, ck, nil)
	cfg := Config{Token: "nft1", Quorum: 0.3, Threshold: 0.5, VotingPeriod: 100}
	require.NoError(t, e.Instantiate(ownerAddr, contractAddr, cfg))
	return e, ck
}

func TestMintSetsQuadraticShare(t *testing.T) {
	e, _ := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100)))

	member, err := e.Member(alice)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10), member.Share)

	st, err := e.State()
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10), st.TotalShare)
}

func TestHappyPathVoteAndEnd(t *testing.T) {
	e, ck := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100))) // share 10
	require.NoError(t, e.Mint(ownerAddr, bob, uint256.NewInt(400)))   // share 20

	pollID, err := e.CreatePoll(alice, CreatePollMsg{Title: "Adopt bylaws", Description: "Ratify the new charter"})
	require.NoError(t, err)

	require.NoError(t, e.CastVote(alice, pollID, bank.VoteYes))
	require.NoError(t, e.CastVote(bob, pollID, bank.VoteYes))

	ck.Advance(100)
	require.NoError(t, e.EndPoll(pollID))

	poll, err := e.Poll(pollID)
	require.NoError(t, err)
	require.Equal(t, pollstore.StatusPassed, poll.Status)
	require.Equal(t, uint256.NewInt(30), poll.YesVotes)
}

func TestEndPollRejectsOnQuorumMiss(t *testing.T) {
	e, ck := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100))) // share 10
	require.NoError(t, e.Mint(ownerAddr, bob, uint256.NewInt(10000))) // share 100, dominates total

	pollID, err := e.CreatePoll(alice, CreatePollMsg{Title: "Minor change", Description: "Adjust a trivial setting"})
	require.NoError(t, err)

	require.NoError(t, e.CastVote(alice, pollID, bank.VoteYes))

	ck.Advance(100)
	require.NoError(t, e.EndPoll(pollID))

	poll, err := e.Poll(pollID)
	require.NoError(t, err)
	require.Equal(t, pollstore.StatusRejected, poll.Status)
}

func TestDelegateVoteCastsOnBehalfOfDelegator(t *testing.T) {
	e, ck := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100))) // share 10
	require.NoError(t, e.Mint(ownerAddr, bob, uint256.NewInt(400)))   // share 20

	require.NoError(t, e.DelegateVote(alice, bob))

	pollID, err := e.CreatePoll(bob, CreatePollMsg{Title: "Delegate test", Description: "Exercise delegated voting"})
	require.NoError(t, err)

	require.NoError(t, e.CastVote(bob, pollID, bank.VoteYes))

	poll, err := e.Poll(pollID)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(30), poll.YesVotes, "delegate's vote carries both shares")

	_, ok, err := e.polls.GetVoter(pollID, bank.KeyFromBytes([]byte(alice)))
	require.NoError(t, err)
	require.True(t, ok, "the delegator's own voter record must be recorded under its own key")
}

func TestCastVoteRejectsWhenDelegatedAway(t *testing.T) {
	e, _ := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100)))
	require.NoError(t, e.Mint(ownerAddr, bob, uint256.NewInt(400)))
	require.NoError(t, e.DelegateVote(alice, bob))

	pollID, err := e.CreatePoll(bob, CreatePollMsg{Title: "Guard test", Description: "Delegated accounts cannot vote directly"})
	require.NoError(t, err)

	err = e.CastVote(alice, pollID, bank.VoteYes)
	require.Error(t, err)
	var govErr *errs.Error
	require.ErrorAs(t, err, &govErr)
	require.Equal(t, errs.KindAlreadyDelegated, govErr.Kind)
}

func TestUndelegateVoteSwapRemovesFromDelegatedFrom(t *testing.T) {
	e, _ := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100)))
	require.NoError(t, e.Mint(ownerAddr, bob, uint256.NewInt(400)))
	require.NoError(t, e.Mint(ownerAddr, carol, uint256.NewInt(400)))
	require.NoError(t, e.DelegateVote(alice, bob))
	require.NoError(t, e.DelegateVote(carol, bob))

	require.NoError(t, e.UndelegateVote(alice))

	delegate, err := e.Member(bob)
	require.NoError(t, err)
	require.Len(t, delegate.DelegatedFrom, 1)
	require.Equal(t, bank.KeyFromBytes([]byte(carol)), delegate.DelegatedFrom[0])

	voter, err := e.Member(alice)
	require.NoError(t, err)
	require.Nil(t, voter.DelegateTo)
}

func TestCancelVoteReversesTallyAndClearsLock(t *testing.T) {
	e, _ := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100)))

	pollID, err := e.CreatePoll(alice, CreatePollMsg{Title: "Cancel test", Description: "Exercise cancel_vote"})
	require.NoError(t, err)
	require.NoError(t, e.CastVote(alice, pollID, bank.VoteYes))

	require.NoError(t, e.CancelVote(alice, pollID))

	poll, err := e.Poll(pollID)
	require.NoError(t, err)
	require.True(t, poll.YesVotes.IsZero())

	_, ok, err := e.polls.GetVoter(pollID, bank.KeyFromBytes([]byte(alice)))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTransferFromMovesBalanceAndShare(t *testing.T) {
	e, _ := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100)))

	require.NoError(t, e.TransferFrom(ownerAddr, alice, bob, uint256.NewInt(100)))

	from, err := e.Member(alice)
	require.NoError(t, err)
	require.True(t, from.Share.IsZero())

	to, err := e.Member(bob)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10), to.Share)
}

func TestExitBurnsEntireBalance(t *testing.T) {
	e, _ := newEngine(t)
	require.NoError(t, e.Mint(ownerAddr, alice, uint256.NewInt(100)))

	require.NoError(t, e.Exit(alice))

	member, err := e.Member(alice)
	require.NoError(t, err)
	require.True(t, member.Share.IsZero())
	require.True(t, member.Balance.IsZero())
}

func TestMintRejectsNonOwnerCaller(t *testing.T) {
	e, _ := newEngine(t)
	err := e.Mint(alice, bob, uint256.NewInt(100))
	require.Error(t, err)
	var govErr *errs.Error
	require.ErrorAs(t, err, &govErr)
	require.Equal(t, errs.KindUnauthorized, govErr.Kind)
}
