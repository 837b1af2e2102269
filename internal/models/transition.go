package models

import "time"

// Transition records one status change of an entry. Appends are reported with
// From equal to To (both pending).
type Transition struct {
	SessionID string    `json:"sessionId" msgpack:"sessionId"`
	EntryID   string    `json:"entryId" msgpack:"entryId"`
	Seq       uint64    `json:"seq" msgpack:"seq"`
	Name      string    `json:"name" msgpack:"name"`
	From      Status    `json:"from" msgpack:"from"`
	To        Status    `json:"to" msgpack:"to"`
	Error     string    `json:"error,omitempty" msgpack:"error,omitempty"`
	At        time.Time `json:"at" msgpack:"at"`
}
