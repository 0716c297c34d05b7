package auditsink

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"daogov/core/events"
)

// Sink is an events.Emitter that mirrors every engine event into the audit
// database, the same wiring shape observability/metrics.Emitter already
// uses to drive Prometheus counters off the identical event stream.
type Sink struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewSink wraps db as an events.Emitter.
func NewSink(db *gorm.DB, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{db: db, logger: logger}
}

// Emit implements events.Emitter. Failures are logged rather than
// propagated: the audit mirror must never block or fail the governance
// operation it is recording.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || s.db == nil || evt == nil {
		return
	}
	raw := evt.Event()
	if raw == nil {
		return
	}
	attrs := raw.Attributes
	record := AuditRecord{
		OccurredAt:  time.Now(),
		Engine:      attrs["engine"],
		EventType:   raw.Type,
		PollID:      attrs["poll_id"],
		Fingerprint: attrs["messages_fingerprint"],
		Attributes:  encodeAttrs(attrs),
	}
	record.Actor = actor(attrs)
	if err := s.db.Create(&record).Error; err != nil {
		s.logger.Error("audit sink write failed", "event", raw.Type, "error", err)
	}
}

func actor(attrs map[string]string) string {
	for _, key := range []string{"creator", "sender", "voter", "owner", "account"} {
		if v, ok := attrs[key]; ok && v != "" {
			return v
		}
	}
	return ""
}
