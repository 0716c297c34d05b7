// Package nge implements the Non-Fungible Governance Engine (spec §4.4):
// proposal lifecycle driven by NFT-identity membership, vote weight equal to
// the integer square root of minted balance, delegation, and cancellation.
// There is no Executed state and no deposit accounting.
package nge

import (
	"strings"

	"github.com/holiman/uint256"

	"daogov/errs"
)

// Length bounds mirror native/fge's (spec §7 "host-defined length bounds").
const (
	MaxTitleLen       = 64
	MaxDescriptionLen = 1024
	MaxLinkLen        = 256
)

// Config is the NGE's administrative parameters (spec §6 "Instantiate (NGE)").
type Config struct {
	Owner        string
	Token        string
	Quorum       float64
	Threshold    float64
	VotingPeriod uint64
}

// Validate checks the quorum/threshold invariant shared with the FGE.
func (c Config) Validate() error {
	if c.Quorum < 0 || c.Quorum > 1 {
		return errs.New(errs.KindValidateMsg, "quorum must be within [0, 1]")
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errs.New(errs.KindValidateMsg, "threshold must be within [0, 1]")
	}
	if c.Owner == "" || c.Token == "" {
		return errs.New(errs.KindValidateMsg, "owner and token are required")
	}
	return nil
}

// ConfigPatch carries UpdateConfig's optional fields.
type ConfigPatch struct {
	Owner        *string
	Token        *string
	Quorum       *float64
	Threshold    *float64
	VotingPeriod *uint64
}

// Apply returns a copy of cfg with every non-nil patch field substituted in.
func (p ConfigPatch) Apply(cfg Config) Config {
	if p.Owner != nil {
		cfg.Owner = *p.Owner
	}
	if p.Token != nil {
		cfg.Token = *p.Token
	}
	if p.Quorum != nil {
		cfg.Quorum = *p.Quorum
	}
	if p.Threshold != nil {
		cfg.Threshold = *p.Threshold
	}
	if p.VotingPeriod != nil {
		cfg.VotingPeriod = *p.VotingPeriod
	}
	return cfg
}

// State is the NGE's mutable counters (spec §3 "State").
type State struct {
	ContractAddr string
	PollCount    uint64
	TotalShare   *uint256.Int
}

// CreatePollMsg is the inner payload of a ReceiveNft call creating a
// proposal (spec §4.4 create_poll).
type CreatePollMsg struct {
	Title       string
	Description string
	Link        string
}

func validateStrings(title, description, link string) error {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || len(title) > MaxTitleLen {
		return errs.New(errs.KindValidateMsg, "title must be 1-%d characters", MaxTitleLen)
	}
	if description == "" || len(description) > MaxDescriptionLen {
		return errs.New(errs.KindValidateMsg, "description must be 1-%d characters", MaxDescriptionLen)
	}
	if link != "" && len(link) > MaxLinkLen {
		return errs.New(errs.KindValidateMsg, "link must be at most %d characters", MaxLinkLen)
	}
	return nil
}

// PayloadKind discriminates the inner payload of a ReceiveNft call (spec §6
// "Execute (NGE)": the NFT-inner payload is one of {Exit, DelegateVote,
// UnDelegateVote, CreatePoll, CastVote, CancelVote, EndPoll}).
type PayloadKind string

const (
	PayloadCreatePoll    PayloadKind = "create_poll"
	PayloadCastVote      PayloadKind = "cast_vote"
	PayloadCancelVote    PayloadKind = "cancel_vote"
	PayloadEndPoll       PayloadKind = "end_poll"
	PayloadDelegateVote  PayloadKind = "delegate_vote"
	PayloadUnDelegateVote PayloadKind = "undelegate_vote"
	PayloadExit          PayloadKind = "exit"
)

// Payload is the decoded inner message forwarded by the Membership Token
// Gateway's execute_dao (spec §4.5: "{sender, token_id, msg}").
type Payload struct {
	Kind         PayloadKind
	CreatePoll   CreatePollMsg
	PollID       uint64
	Vote         uint8 // bank.VoteOption, kept untyped here to avoid importing bank into the wire shape
	DelegatorID  string
}
