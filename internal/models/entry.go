package models

import (
	"io"
	"time"
)

// Entry is one submitted document under tracking.
type Entry struct {
	ID        string    `json:"id" msgpack:"id"`
	Seq       uint64    `json:"seq" msgpack:"seq"`
	Name      string    `json:"name" msgpack:"name"`
	Size      int64     `json:"size" msgpack:"size"`
	Status    Status    `json:"status" msgpack:"status"`
	Error     string    `json:"error,omitempty" msgpack:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" msgpack:"updatedAt"`
}

// NewEntry creates an Entry in pending status.
func NewEntry(id, name string, size int64) Entry {
	now := time.Now()
	return Entry{
		ID:        id,
		Name:      name,
		Size:      size,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ContentSource yields the payload of a document. Open may be called once per
// upload attempt; the caller closes the returned reader.
type ContentSource interface {
	Open() (io.ReadCloser, error)
}

// ContentFunc adapts a function to ContentSource.
type ContentFunc func() (io.ReadCloser, error)

// Open calls f.
func (f ContentFunc) Open() (io.ReadCloser, error) { return f() }

// Document pairs an accepted Entry with the content it was created from.
type Document struct {
	Entry   Entry
	Content ContentSource
}
