// Package auditsink persists a durable, queryable mirror of every event the
// governance engines emit, separate from the authoritative KV poll/bank state
// in storage.Database. It is grounded on the teacher's otc-gateway
// Event/AutoMigrate pattern (services/otc-gateway/models/models.go), backed
// by gorm over either Postgres in production or a pure-Go SQLite driver for
// local/dev deployments, matching the teacher's own production-vs-test
// driver split (gorm.Open(postgres.Open(...)) in main.go,
// gorm.Open(sqlite.Open(...)) in its test helpers).
package auditsink

import (
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// AuditRecord is the durable mirror of one events.Event, one row per
// mutating call (spec SPEC_FULL.md §3 "Audit trail").
type AuditRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	OccurredAt  time.Time
	Engine      string `gorm:"size:16;index"`
	EventType   string `gorm:"size:64;index"`
	PollID      string `gorm:"size:32;index"`
	Actor       string `gorm:"size:128;index"`
	Fingerprint string `gorm:"size:64;index"`
	Attributes  string `gorm:"type:text"`
}

// AutoMigrate performs schema migration for the audit sink.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&AuditRecord{})
}

// List returns the most recent audit records matching q, newest first, for
// operator reconstruction of history without replaying the KV store.
func List(db *gorm.DB, q Query) ([]AuditRecord, error) {
	tx := db.Order("id desc").Limit(q.clampedLimit())
	if q.Engine != "" {
		tx = tx.Where("engine = ?", q.Engine)
	}
	if q.EventType != "" {
		tx = tx.Where("event_type = ?", q.EventType)
	}
	var out []AuditRecord
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Open opens a gorm connection for dsn and migrates the audit schema. A dsn
// beginning with "postgres://" or "postgresql://" uses the Postgres driver;
// anything else (a file path, or ":memory:") is treated as a SQLite
// database via the pure-Go glebarez driver, which needs no cgo toolchain.
func Open(dsn string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
