// Package intake validates batches of user-selected items and turns the
// accepted ones into tracked entries.
package intake

import (
	"mime"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netysoft/Rag-ChatbotIA/internal/log"
	"github.com/netysoft/Rag-ChatbotIA/internal/metrics"
	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/status"
)

// PDFContentType is the only declared media type accepted by default.
const PDFContentType = "application/pdf"

// Item is one candidate from a user selection.
type Item struct {
	Name        string
	Size        int64
	ContentType string
	Content     models.ContentSource
}

// IDFunc mints entry ids. Every call must return a value never returned before.
type IDFunc func() string

// NewID returns a time-ordered UUIDv7, falling back to a random UUIDv4.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Queue filters batches and appends accepted entries to a session's store.
type Queue struct {
	store  *status.Store
	accept string
	newID  IDFunc
	logger zerolog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithAcceptedType overrides the accepted media type.
func WithAcceptedType(mediaType string) Option {
	return func(q *Queue) { q.accept = strings.ToLower(mediaType) }
}

// WithIDFunc overrides id minting, mostly for tests.
func WithIDFunc(fn IDFunc) Option {
	return func(q *Queue) { q.newID = fn }
}

// NewQueue creates a Queue appending to store.
func NewQueue(store *status.Store, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		accept: PDFContentType,
		newID:  NewID,
		logger: log.WithComponent("intake").With().Str(log.FieldSession, store.SessionID()).Logger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// AcceptBatch keeps the items whose declared type matches the accepted type,
// appends one pending entry per kept item in batch order, and returns the new
// documents. Other items are dropped without an error. A batch with nothing
// accepted leaves the store untouched.
func (q *Queue) AcceptBatch(items []Item) ([]models.Document, error) {
	kept := make([]Item, 0, len(items))
	for _, it := range items {
		if !q.Accepts(it.ContentType) {
			metrics.IntakeRejectedTotal.Inc()
			q.logger.Debug().
				Str(log.FieldFile, it.Name).
				Str("content_type", it.ContentType).
				Msg("dropping item with unaccepted content type")
			continue
		}
		kept = append(kept, it)
	}
	if len(kept) == 0 {
		return nil, nil
	}

	entries := make([]models.Entry, len(kept))
	for i, it := range kept {
		entries[i] = models.NewEntry(q.newID(), it.Name, it.Size)
	}

	appended, err := q.store.Append(entries...)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, len(appended))
	for i, e := range appended {
		docs[i] = models.Document{Entry: e, Content: kept[i].Content}
	}
	metrics.IntakeAcceptedTotal.Add(float64(len(docs)))
	q.logger.Info().Int("accepted", len(docs)).Int("dropped", len(items)-len(docs)).Msg("batch accepted")
	return docs, nil
}

// Accepts reports whether a declared content type matches the accepted type.
// Parameters and letter case are ignored; an unparseable type never matches.
func (q *Queue) Accepts(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == q.accept
}
