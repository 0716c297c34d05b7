package membership

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"daogov/storage"
)

type recordingForwarder struct {
	sender  string
	tokenID string
	msg     json.RawMessage
	err     error
}

func (f *recordingForwarder) ReceiveNFT(sender, tokenID string, msg json.RawMessage) error {
	f.sender, f.tokenID, f.msg = sender, tokenID, msg
	return f.err
}

func newGateway(t *testing.T) (*Gateway, *recordingForwarder) {
	t.Helper()
	fwd := &recordingForwarder{}
	g := New(storage.NewMemDB(), fwd)
	require.NoError(t, g.Instantiate("owner1", "gov1"))
	return g, fwd
}

func TestMintRejectsDuplicateTokenID(t *testing.T) {
	g, _ := newGateway(t)
	require.NoError(t, g.Mint("owner1", "token-1", "alice"))

	err := g.Mint("owner1", "token-1", "bob")
	require.ErrorIs(t, err, ErrClaimed)
}

func TestMintRejectsNonOwnerCaller(t *testing.T) {
	g, _ := newGateway(t)
	err := g.Mint("alice", "token-1", "alice")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTransferRequiresOwnerCallerAndExistingToken(t *testing.T) {
	g, _ := newGateway(t)
	require.ErrorIs(t, g.Transfer("owner1", "missing", "bob"), ErrTokenNotFound)

	require.NoError(t, g.Mint("owner1", "token-1", "alice"))
	require.NoError(t, g.Transfer("owner1", "token-1", "bob"))

	require.ErrorIs(t, g.Transfer("bob", "token-1", "carol"), ErrUnauthorized)
}

func TestExecuteDAOForwardsOnlyForTokenOwner(t *testing.T) {
	g, fwd := newGateway(t)
	require.NoError(t, g.Mint("owner1", "token-1", "alice"))

	msg := json.RawMessage(`{"kind":"cast_vote","poll_id":1,"vote":1}`)
	require.NoError(t, g.ExecuteDAO("alice", "token-1", msg))
	require.Equal(t, "alice", fwd.sender)
	require.Equal(t, "token-1", fwd.tokenID)
	require.JSONEq(t, string(msg), string(fwd.msg))

	err := g.ExecuteDAO("mallory", "token-1", msg)
	require.ErrorIs(t, err, ErrNotTokenOwner)
}

func TestExecuteDAOPropagatesForwarderError(t *testing.T) {
	g, fwd := newGateway(t)
	require.NoError(t, g.Mint("owner1", "token-1", "alice"))
	fwd.err = errors.New("nge: poll not found")

	err := g.ExecuteDAO("alice", "token-1", json.RawMessage(`{"kind":"end_poll","poll_id":9}`))
	require.Error(t, err)
	require.Equal(t, "nge: poll not found", err.Error())
}
