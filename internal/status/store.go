// Package status owns the ordered list of tracked entries for one intake
// session and serializes every mutation to them.
package status

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netysoft/Rag-ChatbotIA/internal/log"
	"github.com/netysoft/Rag-ChatbotIA/internal/metrics"
	"github.com/netysoft/Rag-ChatbotIA/internal/models"
)

var (
	ErrEntryNotFound     = errors.New("entry not found")
	ErrDuplicateEntry    = errors.New("duplicate entry id")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrClosed            = errors.New("status store closed")
)

// DefaultSubscriberBuffer is the channel capacity used when Subscribe is given
// a non-positive buffer.
const DefaultSubscriberBuffer = 64

// Store is the session-scoped list of entries. The list only grows; entries
// are addressed by id, never by position.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	entries   []models.Entry
	index     map[string]int
	nextSeq   uint64
	version   uint64
	subs      map[*Subscription]struct{}
	closed    bool
	logger    zerolog.Logger
}

// NewStore creates an empty store for the given session.
func NewStore(sessionID string) *Store {
	return &Store{
		sessionID: sessionID,
		index:     make(map[string]int),
		subs:      make(map[*Subscription]struct{}),
		logger:    log.WithComponent("status").With().Str(log.FieldSession, sessionID).Logger(),
	}
}

// SessionID returns the id of the owning session.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Append adds entries to the end of the list in the given order and returns
// them with their sequence numbers assigned. The whole batch is applied
// atomically: either every entry is appended or none is.
func (s *Store) Append(entries ...models.Entry) ([]models.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("append entry %q: empty id", e.Name)
		}
		if _, ok := s.index[e.ID]; ok {
			return nil, fmt.Errorf("append entry %s: %w", e.ID, ErrDuplicateEntry)
		}
		if _, ok := seen[e.ID]; ok {
			return nil, fmt.Errorf("append entry %s: %w", e.ID, ErrDuplicateEntry)
		}
		seen[e.ID] = struct{}{}
	}

	now := time.Now()
	out := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		s.nextSeq++
		e.Seq = s.nextSeq
		e.Status = models.StatusPending
		e.Error = ""
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now

		s.index[e.ID] = len(s.entries)
		s.entries = append(s.entries, e)
		out = append(out, e)

		s.version++
		s.publishLocked(models.Transition{
			SessionID: s.sessionID,
			EntryID:   e.ID,
			Seq:       e.Seq,
			Name:      e.Name,
			From:      models.StatusPending,
			To:        models.StatusPending,
			At:        now,
		})
	}
	return out, nil
}

// SetStatus moves the entry identified by id to next. Mutations to the same id
// apply in call order; a transition the state machine does not allow is
// rejected without changing anything. errMsg is kept only for StatusError.
func (s *Store) SetStatus(id string, next models.Status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	pos, ok := s.index[id]
	if !ok {
		return fmt.Errorf("set status of %s: %w", id, ErrEntryNotFound)
	}

	entry := &s.entries[pos]
	prev := entry.Status
	if !prev.CanTransition(next) {
		return fmt.Errorf("set status of %s from %s to %s: %w", id, prev, next, ErrInvalidTransition)
	}

	now := time.Now()
	entry.Status = next
	entry.UpdatedAt = now
	switch next {
	case models.StatusError:
		entry.Error = errMsg
	case models.StatusPending, models.StatusUploading, models.StatusSuccess:
		entry.Error = ""
	}

	s.version++
	s.publishLocked(models.Transition{
		SessionID: s.sessionID,
		EntryID:   entry.ID,
		Seq:       entry.Seq,
		Name:      entry.Name,
		From:      prev,
		To:        next,
		Error:     entry.Error,
		At:        now,
	})
	return nil
}

// Get returns a copy of the entry with the given id.
func (s *Store) Get(id string) (models.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return models.Entry{}, false
	}
	return s.entries[pos], true
}

// Snapshot returns a copy of every entry in submission order.
func (s *Store) Snapshot() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Version increases by one on every successful mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close tears the store down. Later mutations return ErrClosed and every
// subscriber channel is closed. Snapshot keeps working.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for sub := range s.subs {
		delete(s.subs, sub)
		if sub.queued {
			sub.finish()
			continue
		}
		close(sub.ch)
	}
	s.logger.Debug().Int("entries", len(s.entries)).Msg("status store closed")
}

// publishLocked must be called with s.mu held. It never blocks: a queued
// subscriber takes the event onto its queue, any other subscriber whose
// buffer is full misses it.
func (s *Store) publishLocked(t models.Transition) {
	for sub := range s.subs {
		if sub.queued {
			sub.enqueue(t)
			continue
		}
		select {
		case sub.ch <- t:
		default:
			metrics.NotificationsDroppedTotal.Inc()
			s.logger.Warn().
				Str(log.FieldEntry, t.EntryID).
				Stringer(log.FieldStatus, t.To).
				Msg("subscriber full, dropping notification")
		}
	}
}
