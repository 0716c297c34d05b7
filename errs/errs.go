// Package errs defines the governance error taxonomy shared by the fungible
// and non-fungible engines (spec §7). Each engine returns one of these
// sentinels wrapped with call-specific context so callers can classify
// failures without parsing error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a governance error for RPC/HTTP status mapping and metrics
// labelling.
type Kind string

const (
	KindUnauthorized               Kind = "unauthorized"
	KindPollNotFound                Kind = "poll_not_found"
	KindPollNotInProgress          Kind = "poll_not_in_progress"
	KindPollNotPassed              Kind = "poll_not_passed"
	KindPollVotingPeriod           Kind = "poll_voting_period"
	KindTimelockNotExpired         Kind = "timelock_not_expired"
	KindSnapshotHeight             Kind = "snapshot_height"
	KindSnapshotAlreadyOccurred    Kind = "snapshot_already_occurred"
	KindAlreadyVoted               Kind = "already_voted"
	KindNotYetVoted                Kind = "not_yet_voted"
	KindAlreadyDelegated           Kind = "already_delegated"
	KindNotYetDelegated            Kind = "not_yet_delegated"
	KindInsufficientFunds          Kind = "insufficient_funds"
	KindInsufficientProposalDeposit Kind = "insufficient_proposal_deposit"
	KindInvalidWithdrawAmount      Kind = "invalid_withdraw_amount"
	KindNothingStaked              Kind = "nothing_staked"
	KindDataShouldBeGiven          Kind = "data_should_be_given"
	KindValidateMsg                Kind = "validate_msg"
)

// Error is the concrete error type returned by the engines. It carries a
// Kind for programmatic classification plus a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is allows errors.Is(err, errs.New(KindPollNotFound, "")) style matching on
// Kind alone, ignoring Message.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs a Kind-classified error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error without losing the original via
// errors.Unwrap.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Wrapped: err}
}

// Unauthorized reports that the caller is not the required principal.
func Unauthorized(format string, args ...interface{}) *Error {
	return New(KindUnauthorized, format, args...)
}

// PollNotFound reports that the poll id is zero or exceeds poll_count.
func PollNotFound(id uint64) *Error {
	return New(KindPollNotFound, "poll %d not found", id)
}

// InsufficientProposalDeposit carries the minimum deposit that was required.
func InsufficientProposalDeposit(required string) *Error {
	return New(KindInsufficientProposalDeposit, "deposit below required minimum %s", required)
}
