package fge

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"

	"daogov/native/pollstore"
)

// messagesFingerprint hashes an execute_msgs list into a stable digest used
// as a dedup/idempotency fingerprint on the poll's creation audit entry,
// grounded on the teacher's practice of content-hashing request bodies for
// idempotency comparison (services/otc-gateway/middleware/idempotency.go).
// An empty list yields an empty fingerprint: there is nothing to dedup.
func messagesFingerprint(msgs []pollstore.ExecuteMsg) string {
	if len(msgs) == 0 {
		return ""
	}
	h := blake3.New(32, nil)
	var orderBuf [8]byte
	for _, msg := range msgs {
		binary.BigEndian.PutUint64(orderBuf[:], msg.Order)
		h.Write(orderBuf[:])
		h.Write(msg.Target)
		h.Write(msg.Message)
	}
	return hex.EncodeToString(h.Sum(nil))
}
