package fge

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

type mockToken struct {
	balances map[string]*uint256.Int
}

func newMockToken() *mockToken { return &mockToken{balances: make(map[string]*uint256.Int)} }

func (m *mockToken) BalanceOf(addr string) (*uint256.Int, error) {
	if v, ok := m.balances[addr]; ok {
		return new(uint256.Int).Set(v), nil
	}
	return uint256.NewInt(0), nil
}

func (m *mockToken) Transfer(to string, amount *uint256.Int) error {
	cur, _ := m.BalanceOf(to)
	m.balances[to] = new(uint256.Int).Add(cur, amount)
	return nil
}

// credit simulates tokens arriving at the contract ahead of the Receive hook
// that reports them, matching cw20's transfer-then-notify ordering.
func (m *mockToken) credit(addr string, amount uint64) {
	cur, _ := m.BalanceOf(addr)
	m.balances[addr] = new(uint256.Int).Add(cur, uint256.NewInt(amount))
}

const (
	contractAddr = "contract1"
	tokenAddr    = "token1"
	ownerAddr    = "owner1"
	voterAddr    = "voter1"
)

func newEngine(t *testing.T) (*Engine, *mockToken, *clock.Mutable) {
	t.Helper()
	db := storage.NewMemDB()
	token := newMockToken()
	ck := clock.NewMutable(0)
	e := New(db, token, ck, nil)
	cfg := Config{
		Token:           tokenAddr,
		Quorum:          0.3,
		Threshold:       0.5,
		VotingPeriod:    100,
		TimelockPeriod:  10,
		ProposalDeposit: uint256.NewInt(10),
		SnapshotPeriod:  20,
	}
	require.NoError(t, e.Instantiate(ownerAddr, contractAddr, cfg))
	return e, token, ck
}

func TestHappyPathStakeVoteEndExecute(t *testing.T) {
	e, token, ck := newEngine(t)

	token.credit(contractAddr, 1000)
	require.NoError(t, e.StakeVotingTokens(tokenAddr, voterAddr, uint256.NewInt(1000)))

	token.credit(contractAddr, 10)
	pollID, err := e.CreatePoll(tokenAddr, voterAddr, uint256.NewInt(10), CreatePollMsg{
		Title:       "Raise the cap",
		Description: "Increase the treasury spending cap",
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), pollID)

	require.NoError(t, e.CastVote(voterAddr, pollID, bank.VoteYes, uint256.NewInt(600)))

	ck.Advance(100)
	require.NoError(t, e.EndPoll(pollID))

	poll, err := e.Poll(pollID)
	require.NoError(t, err)
	require.Equal(t, pollstore.StatusPassed, poll.Status)

	refunded, err := token.BalanceOf(voterAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(10), refunded)

	ck.Advance(10)
	require.NoError(t, e.ExecutePoll(pollID))

	_, err = e.ExecutePollMessages(voterAddr)
	require.Error(t, err)
	var govErr *errs.Error
	require.ErrorAs(t, err, &govErr)
	require.Equal(t, errs.KindUnauthorized, govErr.Kind)

	msgs, err := e.ExecutePollMessages(contractAddr)
	require.NoError(t, err)
	require.Empty(t, msgs)

	poll, err = e.Poll(pollID)
	require.NoError(t, err)
	require.Equal(t, pollstore.StatusExecuted, poll.Status)
}

func TestEndPollRejectsOnQuorumMiss(t *testing.T) {
	e, token, ck := newEngine(t)

	token.credit(contractAddr, 1000)
	require.NoError(t, e.StakeVotingTokens(tokenAddr, voterAddr, uint256.NewInt(1000)))

	token.credit(contractAddr, 10)
	pollID, err := e.CreatePoll(tokenAddr, voterAddr, uint256.NewInt(10), CreatePollMsg{
		Title:       "Minor tweak",
		Description: "Adjust a parameter nobody cares about",
	})
	require.NoError(t, err)

	// 100 of 1000 staked tokens vote: 10% turnout, below the 30% quorum.
	require.NoError(t, e.CastVote(voterAddr, pollID, bank.VoteYes, uint256.NewInt(100)))

	ck.Advance(100)
	require.NoError(t, e.EndPoll(pollID))

	poll, err := e.Poll(pollID)
	require.NoError(t, err)
	require.Equal(t, pollstore.StatusRejected, poll.Status)

	refunded, err := token.BalanceOf(voterAddr)
	require.NoError(t, err)
	require.True(t, refunded.IsZero(), "rejected poll's deposit must not be refunded")

	st, err := e.State()
	require.NoError(t, err)
	require.True(t, st.TotalDeposit.IsZero(), "total_deposit must be released once the poll ends")
}

func TestWithdrawIsBoundedByLockedVote(t *testing.T) {
	e, token, _ := newEngine(t)

	token.credit(contractAddr, 1000)
	require.NoError(t, e.StakeVotingTokens(tokenAddr, voterAddr, uint256.NewInt(1000)))

	token.credit(contractAddr, 10)
	pollID, err := e.CreatePoll(tokenAddr, voterAddr, uint256.NewInt(10), CreatePollMsg{
		Title:       "Lock some tokens",
		Description: "Vote to exercise the withdraw lock",
	})
	require.NoError(t, err)

	require.NoError(t, e.CastVote(voterAddr, pollID, bank.VoteYes, uint256.NewInt(600)))

	require.NoError(t, e.WithdrawVotingTokens(voterAddr, nil))

	withdrawn, err := token.BalanceOf(voterAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(400), withdrawn, "only the unlocked 400/1000 share should withdraw")

	staker, err := e.Staker(voterAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(600), staker.Share, "the locked share must remain after a full withdraw")
}

func TestCastVoteRejectsDoubleVoting(t *testing.T) {
	e, token, _ := newEngine(t)

	token.credit(contractAddr, 1000)
	require.NoError(t, e.StakeVotingTokens(tokenAddr, voterAddr, uint256.NewInt(1000)))

	token.credit(contractAddr, 10)
	pollID, err := e.CreatePoll(tokenAddr, voterAddr, uint256.NewInt(10), CreatePollMsg{
		Title:       "Double vote guard",
		Description: "Confirm a second vote on the same poll is rejected",
	})
	require.NoError(t, err)

	require.NoError(t, e.CastVote(voterAddr, pollID, bank.VoteYes, uint256.NewInt(100)))
	err = e.CastVote(voterAddr, pollID, bank.VoteYes, uint256.NewInt(100))
	require.Error(t, err)
	var govErr *errs.Error
	require.ErrorAs(t, err, &govErr)
	require.Equal(t, errs.KindAlreadyVoted, govErr.Kind)
}

func TestExecutePollRejectsBeforeTimelockExpires(t *testing.T) {
	e, token, ck := newEngine(t)

	token.credit(contractAddr, 1000)
	require.NoError(t, e.StakeVotingTokens(tokenAddr, voterAddr, uint256.NewInt(1000)))

	token.credit(contractAddr, 10)
	pollID, err := e.CreatePoll(tokenAddr, voterAddr, uint256.NewInt(10), CreatePollMsg{
		Title:       "Timelock guard",
		Description: "Confirm execution is rejected before the timelock elapses",
	})
	require.NoError(t, err)

	require.NoError(t, e.CastVote(voterAddr, pollID, bank.VoteYes, uint256.NewInt(600)))
	ck.Advance(100)
	require.NoError(t, e.EndPoll(pollID))

	err = e.ExecutePoll(pollID)
	require.Error(t, err)
	var govErr *errs.Error
	require.ErrorAs(t, err, &govErr)
	require.Equal(t, errs.KindTimelockNotExpired, govErr.Kind)
}

func TestCreatePollRejectsBelowMinimumDeposit(t *testing.T) {
	e, token, _ := newEngine(t)
	token.credit(contractAddr, 5)

	_, err := e.CreatePoll(tokenAddr, voterAddr, uint256.NewInt(5), CreatePollMsg{
		Title:       "Underfunded",
		Description: "Deposit below the configured minimum",
	})
	require.Error(t, err)
	var govErr *errs.Error
	require.ErrorAs(t, err, &govErr)
	require.Equal(t, errs.KindInsufficientProposalDeposit, govErr.Kind)
}
