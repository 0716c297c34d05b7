package auditsink

import "encoding/json"

// encodeAttrs renders an event's attribute map as a JSON object for storage
// in AuditRecord.Attributes; malformed input (which should not happen, since
// events.Event attributes are always string-keyed/string-valued) degrades to
// an empty object rather than failing the write.
func encodeAttrs(attrs map[string]string) string {
	blob, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(blob)
}

// Query selects which audit records List returns.
type Query struct {
	Engine    string
	EventType string
	Limit     int
}

func (q Query) clampedLimit() int {
	if q.Limit <= 0 || q.Limit > 200 {
		return 100
	}
	return q.Limit
}
