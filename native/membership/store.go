package membership

import (
	"encoding/json"

	"daogov/storage"
)

const (
	keyConfig    = "membership:config"
	prefixToken  = "membership:token:"
)

func tokenKey(tokenID string) []byte { return append([]byte(prefixToken), tokenID...) }

func loadConfig(db storage.Database) (Config, error) {
	raw, err := db.Get([]byte(keyConfig))
	if err != nil {
		return Config{}, ErrTokenNotFound
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func saveConfig(db storage.Database, cfg Config) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return db.Put([]byte(keyConfig), blob)
}

func ownerOf(db storage.Database, tokenID string) (string, bool, error) {
	raw, err := db.Get(tokenKey(tokenID))
	if err != nil {
		return "", false, nil //nolint:nilerr // storage.Database.Get errors mean "not found"
	}
	return string(raw), true, nil
}

func setOwner(db storage.Database, tokenID, owner string) error {
	return db.Put(tokenKey(tokenID), []byte(owner))
}
