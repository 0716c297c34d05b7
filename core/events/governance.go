package events

import (
	"strconv"

	"daogov/core/types"
)

// Event type strings. FGE and NGE share the same vocabulary; callers
// distinguish engines via the "engine" attribute.
const (
	TypeProposalCreated  = "gov.proposal_created"
	TypeVoteCast         = "gov.vote_cast"
	TypeVoteCancelled    = "gov.vote_cancelled"
	TypePollEnded        = "gov.poll_ended"
	TypePollExecuted     = "gov.poll_executed"
	TypeVotingTokensDep  = "gov.voting_tokens_staked"
	TypeWithdraw         = "gov.voting_tokens_withdrawn"
	TypeDelegated        = "gov.vote_delegated"
	TypeUndelegated      = "gov.vote_undelegated"
	TypeMember           = "gov.member_minted_or_burned"
	TypeConfigUpdated    = "gov.config_updated"
	TypeSnapshotTaken    = "gov.poll_snapshot"
)

type governanceEvent struct {
	evt *types.Event
}

func (g governanceEvent) EventType() string {
	if g.evt == nil {
		return ""
	}
	return g.evt.Type
}

func (g governanceEvent) Event() *types.Event { return g.evt }

func wrap(t string, attrs map[string]string) Event {
	return governanceEvent{evt: &types.Event{Type: t, Attributes: attrs}}
}

// NewProposalCreated reports a CreatePoll admission (both engines).
// messagesFingerprint is the blake3 digest of an FGE poll's execute_msgs
// list (empty for NGE, which has no execute_poll_messages concept), used as
// an idempotency/dedup fingerprint on the resulting audit entry.
func NewProposalCreated(engine string, pollID uint64, creator string, endHeight uint64, deposit string, messagesFingerprint string) Event {
	attrs := map[string]string{
		"engine":    engine,
		"poll_id":   strconv.FormatUint(pollID, 10),
		"creator":   creator,
		"end_height": strconv.FormatUint(endHeight, 10),
	}
	if deposit != "" {
		attrs["deposit"] = deposit
	}
	if messagesFingerprint != "" {
		attrs["messages_fingerprint"] = messagesFingerprint
	}
	return wrap(TypeProposalCreated, attrs)
}

// NewVoteCast reports a cast_vote call.
func NewVoteCast(engine string, pollID uint64, voter string, vote string, amount string) Event {
	return wrap(TypeVoteCast, map[string]string{
		"engine":      engine,
		"poll_id":     strconv.FormatUint(pollID, 10),
		"voter":       voter,
		"vote_option": vote,
		"amount":      amount,
	})
}

// NewVoteCancelled reports an NGE cancel_vote call.
func NewVoteCancelled(pollID uint64, voter string, amount string) Event {
	return wrap(TypeVoteCancelled, map[string]string{
		"engine":  "nge",
		"poll_id": strconv.FormatUint(pollID, 10),
		"voter":   voter,
		"amount":  amount,
	})
}

// NewPollEnded reports an end_poll outcome.
func NewPollEnded(engine string, pollID uint64, passed bool, rejectedReason string) Event {
	attrs := map[string]string{
		"engine":  engine,
		"poll_id": strconv.FormatUint(pollID, 10),
		"passed":  strconv.FormatBool(passed),
	}
	if rejectedReason != "" {
		attrs["rejected_reason"] = rejectedReason
	}
	return wrap(TypePollEnded, attrs)
}

// NewPollExecuted reports execute_poll_messages (FGE only).
func NewPollExecuted(pollID uint64, messageCount int) Event {
	return wrap(TypePollExecuted, map[string]string{
		"engine":   "fge",
		"poll_id":  strconv.FormatUint(pollID, 10),
		"messages": strconv.Itoa(messageCount),
	})
}

// NewVotingTokensStaked reports an FGE stake.
func NewVotingTokensStaked(sender string, amount string, share string) Event {
	return wrap(TypeVotingTokensDep, map[string]string{
		"engine": "fge",
		"sender": sender,
		"amount": amount,
		"share":  share,
	})
}

// NewWithdraw reports an FGE withdraw.
func NewWithdraw(sender string, amount string, share string) Event {
	return wrap(TypeWithdraw, map[string]string{
		"engine": "fge",
		"sender": sender,
		"amount": amount,
		"share":  share,
	})
}

// NewDelegated reports an NGE delegate_vote.
func NewDelegated(voter string, delegate string) Event {
	return wrap(TypeDelegated, map[string]string{
		"engine":   "nge",
		"voter":    voter,
		"delegate": delegate,
	})
}

// NewUndelegated reports an NGE undelegate_vote.
func NewUndelegated(voter string) Event {
	return wrap(TypeUndelegated, map[string]string{
		"engine": "nge",
		"voter":  voter,
	})
}

// NewMemberMutated reports an NGE mint/burn/transfer_from.
func NewMemberMutated(action, account string, amount string, newShare string) Event {
	return wrap(TypeMember, map[string]string{
		"engine":    "nge",
		"action":    action,
		"account":   account,
		"amount":    amount,
		"new_share": newShare,
	})
}

// NewConfigUpdated reports UpdateConfig (both engines).
func NewConfigUpdated(engine string, owner string) Event {
	return wrap(TypeConfigUpdated, map[string]string{
		"engine": engine,
		"owner":  owner,
	})
}

// NewSnapshotTaken reports FGE's snapshot_poll (or the implicit snapshot
// folded into cast_vote).
func NewSnapshotTaken(pollID uint64, stakedAmount string) Event {
	return wrap(TypeSnapshotTaken, map[string]string{
		"engine":        "fge",
		"poll_id":       strconv.FormatUint(pollID, 10),
		"staked_amount": stakedAmount,
	})
}
