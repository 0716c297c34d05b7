package config

import (
	"encoding/hex"
	"os"

	"github.com/BurntSushi/toml"

	"daogov/crypto"
)

// Config is daogovd's on-disk configuration: where to persist state, which
// addresses to bind the query/admin APIs on, and the parameters each engine
// instantiates with on first run.
type Config struct {
	DataDir    string `toml:"DataDir"`
	QueryAddr  string `toml:"QueryAddr"`
	AdminAddr  string `toml:"AdminAddr"`
	LogFile    string `toml:"LogFile"`
	OwnerKey   string `toml:"OwnerKey"` // hex-encoded secp256k1 key; owner of both engines
	JWTSecret  string `toml:"JWTSecret"`

	// AuditDSN selects the audit sink's backing store: a "postgres://" or
	// "postgresql://" URL for production, or a SQLite file path for local/dev
	// deployments; a non-absolute path is placed in DataDir under its base
	// name.
	AuditDSN string `toml:"AuditDSN"`

	// ArchiveDir is where storage/archive writes periodic parquet exports of
	// terminal polls and votes. ArchiveInterval is how often it runs;
	// archiving is disabled when it is zero.
	ArchiveDir      string `toml:"ArchiveDir"`
	ArchiveInterval uint64 `toml:"ArchiveIntervalSeconds"`

	FGE FGEConfig `toml:"FGE"`
	NGE NGEConfig `toml:"NGE"`
}

// FGEConfig seeds the Fungible Governance Engine's Instantiate call (spec §6).
type FGEConfig struct {
	Token           string  `toml:"Token"`
	Quorum          float64 `toml:"Quorum"`
	Threshold       float64 `toml:"Threshold"`
	VotingPeriod    uint64  `toml:"VotingPeriod"`
	TimelockPeriod  uint64  `toml:"TimelockPeriod"`
	ProposalDeposit string  `toml:"ProposalDeposit"`
	SnapshotPeriod  uint64  `toml:"SnapshotPeriod"`
}

// NGEConfig seeds the Non-Fungible Governance Engine's Instantiate call.
type NGEConfig struct {
	Token        string  `toml:"Token"`
	Quorum       float64 `toml:"Quorum"`
	Threshold    float64 `toml:"Threshold"`
	VotingPeriod uint64  `toml:"VotingPeriod"`
}

// Load loads the configuration from path, writing a default file (with a
// freshly generated owner key) if none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.OwnerKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.OwnerKey = hex.EncodeToString(key.Bytes())

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         "./daogov-data",
		QueryAddr:       ":7010",
		AdminAddr:       ":7011",
		LogFile:         "./daogov-data/daogovd.log",
		OwnerKey:        hex.EncodeToString(key.Bytes()),
		AuditDSN:        "./daogov-data/audit.sqlite",
		ArchiveDir:      "./daogov-data/archive",
		ArchiveInterval: 3600,
		FGE: FGEConfig{
			Quorum:          0.3,
			Threshold:       0.5,
			VotingPeriod:    100_000,
			TimelockPeriod:  10_000,
			ProposalDeposit: "1000000",
			SnapshotPeriod:  5_000,
		},
		NGE: NGEConfig{
			Quorum:       0.3,
			Threshold:    0.5,
			VotingPeriod: 100_000,
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
