package models

import "time"

// Session is one intake session: a caller identity plus the entries it has
// submitted so far.
type Session struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
	EntryCount   int       `json:"entryCount"`
}

// NewSession creates a Session stamped with the current time.
func NewSession(id, clientID string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		ClientID:     clientID,
		CreatedAt:    now,
		LastAccessed: now,
	}
}
