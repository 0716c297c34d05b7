package pollstore

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"daogov/native/bank"
	"daogov/storage"
)

func newStore() *Store { return New(storage.NewMemDB()) }

func TestPutAndGetRoundTrips(t *testing.T) {
	s := newStore()
	poll := &Poll{
		ID:          1,
		Creator:     "dao1abc",
		Status:      StatusInProgress,
		YesVotes:    uint256.NewInt(0),
		NoVotes:     uint256.NewInt(0),
		EndHeight:   150,
		Title:       "Raise the roof",
		Description: "Increase the treasury cap",
	}
	require.NoError(t, s.Put(poll))

	got, ok, err := s.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Raise the roof", got.Title)
	require.Equal(t, StatusInProgress, got.Status)
}

func TestMustGetRejectsOutOfRangeIDs(t *testing.T) {
	s := newStore()
	_, err := s.MustGet(0, 5)
	require.Error(t, err)
	_, err = s.MustGet(6, 5)
	require.Error(t, err)
}

func TestPutMovesStatusIndexOnTransition(t *testing.T) {
	s := newStore()
	poll := &Poll{ID: 7, Status: StatusInProgress, YesVotes: uint256.NewInt(0), NoVotes: uint256.NewInt(0)}
	require.NoError(t, s.Put(poll))

	inProgress, err := s.Range(RangeOpts{Status: StatusInProgress, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, inProgress)

	poll.Status = StatusPassed
	require.NoError(t, s.Put(poll))

	inProgress, err = s.Range(RangeOpts{Status: StatusInProgress, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, inProgress)

	passed, err := s.Range(RangeOpts{Status: StatusPassed, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, passed)
}

func TestRangeCursorAndOrder(t *testing.T) {
	s := newStore()
	for _, id := range []uint64{1, 2, 3, 4, 5} {
		require.NoError(t, s.Put(&Poll{ID: id, Status: StatusInProgress, YesVotes: uint256.NewInt(0), NoVotes: uint256.NewInt(0)}))
	}

	page, err := s.Range(RangeOpts{Status: StatusInProgress, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, page)

	next, err := s.Range(RangeOpts{Status: StatusInProgress, StartAfter: 2, HasStart: true, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 4}, next)

	desc, err := s.Range(RangeOpts{Status: StatusInProgress, Order: OrderDescending, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []uint64{5, 4}, desc)
}

func TestRangeLimitClampedToMax(t *testing.T) {
	s := newStore()
	for id := uint64(1); id <= 40; id++ {
		require.NoError(t, s.Put(&Poll{ID: id, Status: StatusInProgress, YesVotes: uint256.NewInt(0), NoVotes: uint256.NewInt(0)}))
	}
	page, err := s.Range(RangeOpts{Status: StatusInProgress, Limit: 1000})
	require.NoError(t, err)
	require.Len(t, page, maxScanLimit)
}

func TestVoterRoundTripAndDelete(t *testing.T) {
	s := newStore()
	voter := bank.KeyFromBytes([]byte("dao1voter"))
	info := bank.VoteInfo{Vote: bank.VoteYes, Balance: uint256.NewInt(80)}
	require.NoError(t, s.PutVoter(1, voter, info))

	got, ok, err := s.GetVoter(1, voter)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bank.VoteYes, got.Vote)
	require.Equal(t, uint256.NewInt(80), got.Balance)

	require.NoError(t, s.DeleteVoterRecord(1, voter))
	_, ok, err = s.GetVoter(1, voter)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsInProgressAndDeleteVoterImplementPollGate(t *testing.T) {
	s := newStore()
	require.NoError(t, s.Put(&Poll{ID: 9, Status: StatusInProgress, YesVotes: uint256.NewInt(0), NoVotes: uint256.NewInt(0)}))

	inProgress, err := s.IsInProgress(9)
	require.NoError(t, err)
	require.True(t, inProgress)

	inProgress, err = s.IsInProgress(999)
	require.NoError(t, err)
	require.False(t, inProgress)

	voter := bank.KeyFromBytes([]byte("dao1voter"))
	require.NoError(t, s.PutVoter(9, voter, bank.VoteInfo{Vote: bank.VoteNo, Balance: uint256.NewInt(5)}))
	require.NoError(t, s.DeleteVoter(9, voter.Bytes()))
	_, ok, err := s.GetVoter(9, voter)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVotersListsAllRecordedKeys(t *testing.T) {
	s := newStore()
	v1 := bank.KeyFromBytes([]byte("dao1aaa"))
	v2 := bank.KeyFromBytes([]byte("dao1bbb"))
	require.NoError(t, s.PutVoter(3, v1, bank.VoteInfo{Vote: bank.VoteYes, Balance: uint256.NewInt(1)}))
	require.NoError(t, s.PutVoter(3, v2, bank.VoteInfo{Vote: bank.VoteNo, Balance: uint256.NewInt(2)}))

	voters, err := s.Voters(3)
	require.NoError(t, err)
	require.Len(t, voters, 2)
}
