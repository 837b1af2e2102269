// Package upload schedules staggered submissions of accepted documents and
// drives each entry through pending, uploading and a terminal status.
package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netysoft/Rag-ChatbotIA/internal/ingest"
	"github.com/netysoft/Rag-ChatbotIA/internal/log"
	"github.com/netysoft/Rag-ChatbotIA/internal/metrics"
	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/status"
)

const (
	// DefaultStaggerDelay separates the start of consecutive tasks in a batch.
	DefaultStaggerDelay = 100 * time.Millisecond

	// NoStagger starts every task of a batch at once.
	NoStagger time.Duration = -1

	// FallbackErrorMessage is recorded when a failure carries no message.
	FallbackErrorMessage = "unknown error"
)

// ErrNoContent is recorded for a document dispatched without a content source.
var ErrNoContent = errors.New("document has no content")

// Options configures an Orchestrator.
type Options struct {
	Store        *status.Store
	Client       ingest.Client
	CallerID     string
	StaggerDelay time.Duration
	Scheduler    Scheduler
}

// Orchestrator owns the upload tasks of one session.
type Orchestrator struct {
	store    *status.Store
	client   ingest.Client
	callerID string
	stagger  time.Duration
	sched    Scheduler
	logger   zerolog.Logger

	mu      sync.Mutex
	closed  bool
	nextKey uint64
	pending map[uint64]Timer
	wg      sync.WaitGroup
}

// NewOrchestrator creates an Orchestrator. A zero StaggerDelay uses the
// default; NoStagger or any negative value disables staggering.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("upload: store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("upload: ingestion client is required")
	}

	stagger := opts.StaggerDelay
	switch {
	case stagger == 0:
		stagger = DefaultStaggerDelay
	case stagger < 0:
		stagger = 0
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = SystemScheduler
	}

	return &Orchestrator{
		store:    opts.Store,
		client:   opts.Client,
		callerID: opts.CallerID,
		stagger:  stagger,
		sched:    sched,
		pending:  make(map[uint64]Timer),
		logger: log.WithComponent("upload").With().
			Str(log.FieldSession, opts.Store.SessionID()).
			Str(log.FieldClient, opts.CallerID).
			Logger(),
	}, nil
}

// StaggerDelay returns the effective delay between task starts.
func (o *Orchestrator) StaggerDelay() time.Duration {
	return o.stagger
}

// Dispatch schedules one task per document. The i-th document starts no
// earlier than i*StaggerDelay from now. Results surface through the store.
func (o *Orchestrator) Dispatch(docs []models.Document) {
	if len(docs) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		metrics.UploadsSuppressedTotal.Add(float64(len(docs)))
		o.logger.Debug().Int("documents", len(docs)).Msg("dispatch after close ignored")
		return
	}

	for i, doc := range docs {
		doc := doc // per-iteration copy; go 1.21 loop variables are shared
		key := o.nextKey
		o.nextKey++
		delay := time.Duration(i) * o.stagger

		o.wg.Add(1)
		o.pending[key] = o.sched.AfterFunc(delay, func() { o.fire(key, doc) })

		o.logger.Debug().
			Str(log.FieldEntry, doc.Entry.ID).
			Str(log.FieldFile, doc.Entry.Name).
			Dur(log.FieldDelay, delay).
			Msg("upload scheduled")
	}
}

// Close stops every task that has not started yet and suppresses any that
// race with it. Tasks already uploading keep running until their request
// returns; their final status write is dropped once the store is closed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true

	stopped := 0
	for key, t := range o.pending {
		if t.Stop() {
			stopped++
			o.wg.Done()
		}
		delete(o.pending, key)
	}
	if stopped > 0 {
		metrics.UploadsSuppressedTotal.Add(float64(stopped))
	}
	o.logger.Debug().Int("stopped", stopped).Msg("orchestrator closed")
}

// Wait blocks until every started task has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) fire(key uint64, doc models.Document) {
	defer o.wg.Done()

	o.mu.Lock()
	delete(o.pending, key)
	closed := o.closed
	o.mu.Unlock()

	if closed {
		metrics.UploadsSuppressedTotal.Inc()
		return
	}
	o.run(doc)
}

// run is the body of one task. The entry is addressed only by the id captured
// at dispatch time.
func (o *Orchestrator) run(doc models.Document) {
	id := doc.Entry.ID
	logger := o.logger.With().Str(log.FieldEntry, id).Str(log.FieldFile, doc.Entry.Name).Logger()

	started := false
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("upload task panicked")
			if started {
				o.finish(logger, id, fmt.Errorf("upload panicked: %v", r))
			}
		}
	}()

	if err := o.store.SetStatus(id, models.StatusUploading, ""); err != nil {
		if errors.Is(err, status.ErrClosed) {
			metrics.UploadsSuppressedTotal.Inc()
			logger.Debug().Msg("store closed before upload started")
			return
		}
		logger.Error().Err(err).Msg("cannot mark entry uploading")
		return
	}
	started = true
	metrics.UploadsStartedTotal.Inc()

	start := time.Now()
	err := o.upload(doc)
	logger.Info().Dur("elapsed", time.Since(start)).AnErr("upload_error", err).Msg("upload finished")
	o.finish(logger, id, err)
}

func (o *Orchestrator) upload(doc models.Document) error {
	if doc.Content == nil {
		return ErrNoContent
	}
	rc, err := doc.Content.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", doc.Entry.Name, err)
	}
	defer func() { _ = rc.Close() }()

	metrics.UploadsInFlight.Inc()
	defer metrics.UploadsInFlight.Dec()

	return o.client.Upload(context.Background(), ingest.Payload{Name: doc.Entry.Name, Content: rc}, o.callerID)
}

func (o *Orchestrator) finish(logger zerolog.Logger, id string, uploadErr error) {
	next, msg, outcome := models.StatusSuccess, "", metrics.OutcomeSuccess
	if uploadErr != nil {
		next, msg, outcome = models.StatusError, ErrorMessage(uploadErr), metrics.OutcomeError
	}
	metrics.UploadsCompletedTotal.WithLabelValues(outcome).Inc()

	if err := o.store.SetStatus(id, next, msg); err != nil {
		if errors.Is(err, status.ErrClosed) {
			logger.Debug().Stringer(log.FieldStatus, next).Msg("store closed, result discarded")
			return
		}
		logger.Error().Err(err).Stringer(log.FieldStatus, next).Msg("cannot record upload result")
	}
}

// ErrorMessage returns the text recorded for a failed upload: the error's own
// message, or FallbackErrorMessage when it has none.
func ErrorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return FallbackErrorMessage
	}
	return err.Error()
}
