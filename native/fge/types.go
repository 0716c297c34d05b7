// Package fge implements the Fungible Governance Engine (spec §4.3):
// deposit-bearing proposal lifecycle over a fungible voting token, with
// timelock, snapshot-based quorum, and a self-referential submessage for
// atomic multi-message execution.
package fge

import (
	"strings"

	"github.com/holiman/uint256"

	"daogov/errs"
	"daogov/native/pollstore"
)

// Length bounds for poll title/description/link (spec §7: "host-defined
// length bounds"). Chosen to match typical on-chain text-field limits; see
// the grounding ledger for the rationale.
const (
	MaxTitleLen       = 64
	MaxDescriptionLen = 1024
	MaxLinkLen        = 256
)

// Config is the FGE's administrative parameters (spec §3 "Config").
type Config struct {
	Owner           string
	Token           string
	Quorum          float64
	Threshold       float64
	VotingPeriod    uint64
	TimelockPeriod  uint64
	ProposalDeposit *uint256.Int
	SnapshotPeriod  uint64
}

// Validate checks the quorum/threshold invariant (spec §3: "0 ≤ quorum ≤ 1
// and 0 ≤ threshold ≤ 1 at all times").
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

// ConfigPatch carries UpdateConfig's optional fields (spec §6 UpdateConfig).
// Nil pointers leave the corresponding field unchanged.
type ConfigPatch struct {
	Owner           *string
	Token           *string
	Quorum          *float64
	Threshold       *float64
	VotingPeriod    *uint64
	TimelockPeriod  *uint64
	ProposalDeposit *uint256.Int
	SnapshotPeriod  *uint64
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
	if p.TimelockPeriod != nil {
		cfg.TimelockPeriod = *p.TimelockPeriod
	}
	if p.ProposalDeposit != nil {
		cfg.ProposalDeposit = p.ProposalDeposit
	}
	if p.SnapshotPeriod != nil {
		cfg.SnapshotPeriod = *p.SnapshotPeriod
	}
	return cfg
}

// State is the FGE's mutable counters (spec §3 "State").
type State struct {
	ContractAddr string
	PollCount    uint64
	TotalShare   *uint256.Int
	TotalDeposit *uint256.Int
}

// CreatePollMsg is the inner payload of a Receive call creating a proposal
// (spec §4.3 receive, CreatePoll variant).
type CreatePollMsg struct {
	Title       string
	Description string
	Link        string
	ExecuteMsgs []pollstore.ExecuteMsg
}

// validateStrings enforces the title/description/link length bounds (spec
// §7 ValidateMsg kind).
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
