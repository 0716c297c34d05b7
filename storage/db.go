package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// KV pairs a key with its value during a prefix scan.
type KV struct {
	Key   []byte
	Value []byte
}

// Database is a generic interface for a key-value store.
// This allows our engines to use any database backend (in-memory or persistent).
//
// IteratePrefix is needed beyond the original Put/Get/Close surface so the
// poll store (spec §4.2) can range-scan poll records and the status index
// without maintaining a separate id list.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	IteratePrefix(prefix []byte) ([]KV, error)
	Close() // A way to gracefully shut down the database connection.
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = value
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, fmt.Errorf("key not found")
	}
	return value, nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

// IteratePrefix returns every entry whose key starts with prefix, sorted by
// key, mirroring LevelDB's natural iteration order.
func (db *MemDB) IteratePrefix(prefix []byte) ([]KV, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []KV
	p := string(prefix)
	for k, v := range db.data {
		if strings.HasPrefix(k, p) {
			val := make([]byte, len(v))
			copy(val, v)
			out = append(out, KV{Key: []byte(k), Value: val})
		}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out, nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB (for mainnet) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	return ldb.db.Get(key, nil)
}

// Delete removes a key, succeeding even if the key is absent.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// IteratePrefix returns every entry whose key starts with prefix, in
// ascending key order, via goleveldb's native range iterator.
func (ldb *LevelDB) IteratePrefix(prefix []byte) ([]KV, error) {
	iter := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []KV
	for iter.Next() {
		k := make([]byte, len(iter.Key()))
		copy(k, iter.Key())
		v := make([]byte, len(iter.Value()))
		copy(v, iter.Value())
		out = append(out, KV{Key: k, Value: v})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
