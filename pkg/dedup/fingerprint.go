package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// Fingerprint derives the deduplication key for an event from its kind,
// primary id, and payload content. The event timestamp is deliberately
// excluded so that re-delivered frames dedupe while legitimate content
// updates (same kind + id, different payload) do not.
func Fingerprint(evt *models.Event) string {
	h := sha256.New()
	h.Write([]byte(evt.Kind))
	h.Write([]byte{0})
	h.Write([]byte(evt.PrimaryID))
	h.Write([]byte{0})
	h.Write(canonicalPayload(&evt.Payload))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// canonicalPayload serializes the payload deterministically. Struct fields
// marshal in declaration order and map keys sort, so identical payload
// content always produces identical bytes.
func canonicalPayload(p *models.Payload) []byte {
	data, err := json.Marshal(p)
	if err != nil {
		// Payload structs contain only marshalable types; this is unreachable
		// for events produced by the normalizer.
		return nil
	}
	return data
}
