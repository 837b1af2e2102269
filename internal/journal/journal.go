// Package journal keeps an append-only record of entry status transitions.
package journal

import (
	"context"
	"sort"
	"sync"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
)

// Journal records transitions and returns them per session in record order.
type Journal interface {
	Record(ctx context.Context, t models.Transition) error
	History(ctx context.Context, sessionID string) ([]models.Transition, error)
	Close() error
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) Record(context.Context, models.Transition) error { return nil }

func (NopJournal) History(context.Context, string) ([]models.Transition, error) {
	return []models.Transition{}, nil
}

func (NopJournal) Close() error { return nil }

// MemoryJournal keeps transitions in memory. Used when no database file is
// configured and in tests.
type MemoryJournal struct {
	mu      sync.RWMutex
	records map[string][]models.Transition
}

// NewMemoryJournal creates an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{records: make(map[string][]models.Transition)}
}

func (j *MemoryJournal) Record(_ context.Context, t models.Transition) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[t.SessionID] = append(j.records[t.SessionID], t)
	return nil
}

func (j *MemoryJournal) History(_ context.Context, sessionID string) ([]models.Transition, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]models.Transition, len(j.records[sessionID]))
	copy(out, j.records[sessionID])
	return out, nil
}

// Sessions returns the ids of every session with at least one record.
func (j *MemoryJournal) Sessions() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	ids := make([]string, 0, len(j.records))
	for id := range j.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (j *MemoryJournal) Close() error { return nil }

var (
	_ Journal = NopJournal{}
	_ Journal = (*MemoryJournal)(nil)
	_ Journal = (*DuckJournal)(nil)
)
