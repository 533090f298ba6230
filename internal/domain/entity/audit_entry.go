package entity

import (
	"encoding/json"
	"time"
)

// AuditEntry registro inmutable de una operación sobre una entidad.
type AuditEntry struct {
	ID        string
	Entity    string
	EntityID  string
	Operation string
	Before    json.RawMessage
	After     json.RawMessage
	Actor     string
	At        time.Time
}
