package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one append-only audit record. Old/New carry the before/after
// snapshots of the mutated entity so state history can be reconstructed
// without replaying operations.
type Event struct {
	ID       int64
	Trace    uuid.UUID
	At       time.Time
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Old      json.RawMessage
	New      json.RawMessage
	Note     string
}

// JSON marshals a snapshot for an event field. Snapshots are plain structs
// under our control; a marshal failure is a programming error and is
// recorded in-band instead of dropped.
func JSON(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"_marshal_error":true}`)
	}
	return b
}
