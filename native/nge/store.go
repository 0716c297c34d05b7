package nge

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"daogov/storage"
)

// Singleton keys (spec §6 "Persisted layout"). NGE has no scratch slot: it
// has no Executed state and no self-submessage.
const (
	keyConfig = "nge:config"
	keyState  = "nge:state"
)

type wireConfig struct {
	Owner        string  `json:"owner"`
	Token        string  `json:"token"`
	Quorum       float64 `json:"quorum"`
	Threshold    float64 `json:"threshold"`
	VotingPeriod uint64  `json:"voting_period"`
}

func loadConfig(db storage.Database) (Config, error) {
	raw, err := db.Get([]byte(keyConfig))
	if err != nil {
		return Config{}, fmt.Errorf("nge: config not instantiated")
	}
	var w wireConfig
	if err := json.Unmarshal(raw, &w); err != nil {
		return Config{}, err
	}
	return Config{
		Owner:        w.Owner,
		Token:        w.Token,
		Quorum:       w.Quorum,
		Threshold:    w.Threshold,
		VotingPeriod: w.VotingPeriod,
	}, nil
}

func saveConfig(db storage.Database, cfg Config) error {
	w := wireConfig{
		Owner:        cfg.Owner,
		Token:        cfg.Token,
		Quorum:       cfg.Quorum,
		Threshold:    cfg.Threshold,
		VotingPeriod: cfg.VotingPeriod,
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
}

func loadState(db storage.Database) (State, error) {
	raw, err := db.Get([]byte(keyState))
	if err != nil {
		return State{}, fmt.Errorf("nge: state not instantiated")
	}
	var w wireState
	if err := json.Unmarshal(raw, &w); err != nil {
		return State{}, err
	}
	return State{
		ContractAddr: w.ContractAddr,
		PollCount:    w.PollCount,
		TotalShare:   parseAmount(w.TotalShare),
	}, nil
}

func saveState(db storage.Database, st State) error {
	w := wireState{
		ContractAddr: st.ContractAddr,
		PollCount:    st.PollCount,
		TotalShare:   amountString(st.TotalShare),
	}
	blob, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return db.Put([]byte(keyState), blob)
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
