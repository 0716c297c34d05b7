package fge

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"daogov/storage"
)

// Singleton keys (spec §6 "Persisted layout": "singleton keys for Config,
// State, and an FGE tmp-poll-id scratch slot").
const (
	keyConfig      = "fge:config"
	keyState       = "fge:state"
	keyScratchPoll = "fge:scratch_poll_id"
)

type wireConfig struct {
	Owner           string `json:"owner"`
	Token           string `json:"token"`
	Quorum          float64 `json:"quorum"`
	Threshold       float64 `json:"threshold"`
	VotingPeriod    uint64  `json:"voting_period"`
	TimelockPeriod  uint64  `json:"timelock_period"`
	ProposalDeposit string  `json:"proposal_deposit"`
	SnapshotPeriod  uint64  `json:"snapshot_period"`
}

func loadConfig(db storage.Database) (Config, error) {
	raw, err := db.Get([]byte(keyConfig))
	if err != nil {
		return Config{}, fmt.Errorf("fge: config not instantiated")
	}
	var w wireConfig
	if err := json.Unmarshal(raw, &w); err != nil {
		return Config{}, err
	}
	return Config{
		Owner:           w.Owner,
		Token:           w.Token,
		Quorum:          w.Quorum,
		Threshold:       w.Threshold,
		VotingPeriod:    w.VotingPeriod,
		TimelockPeriod:  w.TimelockPeriod,
		ProposalDeposit: parseAmount(w.ProposalDeposit),
		SnapshotPeriod:  w.SnapshotPeriod,
	}, nil
}

func saveConfig(db storage.Database, cfg Config) error {
	w := wireConfig{
		Owner:           cfg.Owner,
		Token:           cfg.Token,
		Quorum:          cfg.Quorum,
		Threshold:       cfg.Threshold,
		VotingPeriod:    cfg.VotingPeriod,
		TimelockPeriod:  cfg.TimelockPeriod,
		ProposalDeposit: amountString(cfg.ProposalDeposit),
		SnapshotPeriod:  cfg.SnapshotPeriod,
	}
	blob, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return db.Put([]byte(keyConfig), blob)
}

type wireState struct {
	ContractAddr string `json:"contract_addr"`
	PollCount    uint64 `json:"poll_count"`
	TotalShare   string `json:"total_share"`
	TotalDeposit string `json:"total_deposit"`
}

func loadState(db storage.Database) (State, error) {
	raw, err := db.Get([]byte(keyState))
	if err != nil {
		return State{}, fmt.Errorf("fge: state not instantiated")
	}
	var w wireState
	if err := json.Unmarshal(raw, &w); err != nil {
		return State{}, err
	}
	return State{
		ContractAddr: w.ContractAddr,
		PollCount:    w.PollCount,
		TotalShare:   parseAmount(w.TotalShare),
		TotalDeposit: parseAmount(w.TotalDeposit),
	}, nil
}

func saveState(db storage.Database, st State) error {
	w := wireState{
		ContractAddr: st.ContractAddr,
		PollCount:    st.PollCount,
		TotalShare:   amountString(st.TotalShare),
		TotalDeposit: amountString(st.TotalDeposit),
	}
	blob, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return db.Put([]byte(keyState), blob)
}

func loadScratchPollID(db storage.Database) (uint64, bool, error) {
	raw, err := db.Get([]byte(keyScratchPoll))
	if err != nil {
		return 0, false, nil //nolint:nilerr // absent scratch slot is not an error
	}
	var id uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func saveScratchPollID(db storage.Database, id uint64) error {
	blob, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return db.Put([]byte(keyScratchPoll), blob)
}

func clearScratchPollID(db storage.Database) error {
	return db.Delete([]byte(keyScratchPoll))
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func parseAmount(s string) *uint256.Int {
	v := new(uint256.Int)
	if s == "" {
		return v
	}
	if err := v.SetFromDecimal(s); err != nil {
		return uint256.NewInt(0)
	}
	return v
}
