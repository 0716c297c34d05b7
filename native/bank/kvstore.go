package bank

import (
	"encoding/json"

	"github.com/holiman/uint256"

	"daogov/storage"
)

// KVStore is a storage.Database-backed Store, keyed by a caller-supplied
// prefix so FGE and NGE can each keep an independent bank namespace within a
// shared database (spec §6 "Persisted layout": "Bank (voter-key → bank
// entry)").
type KVStore struct {
	db     storage.Database
	prefix string
}

// NewKVStore constructs a KVStore under the given key prefix.
func NewKVStore(db storage.Database, prefix string) *KVStore {
	return &KVStore{db: db, prefix: prefix}
}

func (s *KVStore) key(k Key) []byte {
	return append([]byte(s.prefix), k.Bytes()...)
}

type wireLocked struct {
	PollID  uint64 `json:"poll_id"`
	Vote    uint8  `json:"vote"`
	Balance string `json:"balance"`
}

type wireEntry struct {
	Share         string       `json:"share"`
	Locked        []wireLocked `json:"locked,omitempty"`
	Balance       string       `json:"balance,omitempty"`
	DelegateTo    string       `json:"delegate_to,omitempty"`
	HasDelegateTo bool         `json:"has_delegate_to,omitempty"`
	DelegatedFrom []string     `json:"delegated_from,omitempty"`
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

func encodeEntry(e *Entry) ([]byte, error) {
	w := wireEntry{Share: amountString(e.Share)}
	for _, l := range e.Locked {
		w.Locked = append(w.Locked, wireLocked{
			PollID:  l.PollID,
			Vote:    uint8(l.Info.Vote),
			Balance: amountString(l.Info.Balance),
		})
	}
	if e.Balance != nil {
		w.Balance = amountString(e.Balance)
	}
	if e.DelegateTo != nil {
		w.HasDelegateTo = true
		w.DelegateTo = string(*e.DelegateTo)
	}
	for _, d := range e.DelegatedFrom {
		w.DelegatedFrom = append(w.DelegatedFrom, string(d))
	}
	return json.Marshal(w)
}

func decodeEntry(raw []byte) (*Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	e := &Entry{Share: parseAmount(w.Share), Balance: parseAmount(w.Balance)}
	for _, l := range w.Locked {
		e.Locked = append(e.Locked, Locked{
			PollID: l.PollID,
			Info:   VoteInfo{Vote: VoteOption(l.Vote), Balance: parseAmount(l.Balance)},
		})
	}
	if w.HasDelegateTo {
		d := Key(w.DelegateTo)
		e.DelegateTo = &d
	}
	for _, d := range w.DelegatedFrom {
		e.DelegatedFrom = append(e.DelegatedFrom, Key(d))
	}
	return e, nil
}

// GetEntry implements Store.
func (s *KVStore) GetEntry(key Key) (*Entry, bool, error) {
	raw, err := s.db.Get(s.key(key))
	if err != nil {
		return nil, false, nil //nolint:nilerr // storage.Database.Get errors mean "not found"
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// PutEntry implements Store.
func (s *KVStore) PutEntry(key Key, entry *Entry) error {
	blob, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return s.db.Put(s.key(key), blob)
}
