package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netysoft/Rag-ChatbotIA/internal/ingest"
	"github.com/netysoft/Rag-ChatbotIA/internal/intake"
	"github.com/netysoft/Rag-ChatbotIA/internal/journal"
	"github.com/netysoft/Rag-ChatbotIA/internal/log"
	"github.com/netysoft/Rag-ChatbotIA/internal/metrics"
	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/status"
	"github.com/netysoft/Rag-ChatbotIA/internal/storage"
	"github.com/netysoft/Rag-ChatbotIA/internal/upload"
)

// DefaultMaxSessions limits concurrent sessions to prevent memory exhaustion
const DefaultMaxSessions = 64

// SessionMaxAge is how long to keep idle sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// watcherBuffer sizes the channel of the per-session queued subscription
// feeding the journal and spool cleanup. Backlog beyond it is queued, not
// dropped.
const watcherBuffer = 1024

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")
	ErrManagerClosed   = errors.New("session manager closed")
)

// Upload is one file handed to Submit.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Options configures a Manager.
type Options struct {
	Client          ingest.Client
	Spool           storage.Store
	Journal         journal.Journal
	DefaultClientID string
	StaggerDelay    time.Duration
	MaxSessions     int
	Scheduler       upload.Scheduler

	// AcceptedType overrides the media type sessions accept. Empty means PDF.
	AcceptedType string
}

// Manager owns the intake sessions: one status store, intake queue and
// upload orchestrator per session.
type Manager struct {
	client          ingest.Client
	spool           storage.Store
	journal         journal.Journal
	defaultClientID string
	acceptedType    string
	stagger         time.Duration
	maxSessions     int
	sched           upload.Scheduler
	logger          zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*SessionState
	closed   bool

	// inflight counts ended sessions whose uploads have not returned yet.
	inflight sync.WaitGroup
}

// SessionState holds the session metadata and its pipeline.
type SessionState struct {
	Session *models.Session
	Store   *status.Store
	Queue   *intake.Queue
	Orch    *upload.Orchestrator

	blobMu sync.Mutex
	blobs  map[string]string // entry id -> spool id
	done   chan struct{}
}

// NewManager creates a session manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Client == nil {
		return nil, errors.New("session: ingestion client is required")
	}
	if opts.Spool == nil {
		return nil, errors.New("session: spool storage is required")
	}
	j := opts.Journal
	if j == nil {
		j = journal.NopJournal{}
	}
	maxSessions := opts.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	clientID := opts.DefaultClientID
	if clientID == "" {
		clientID = ingest.DefaultClientID
	}

	return &Manager{
		client:          opts.Client,
		spool:           opts.Spool,
		journal:         j,
		defaultClientID: clientID,
		acceptedType:    opts.AcceptedType,
		stagger:         opts.StaggerDelay,
		maxSessions:     maxSessions,
		sched:           opts.Scheduler,
		logger:          log.WithComponent("session"),
		sessions:        make(map[string]*SessionState),
	}, nil
}

// Start opens a new session for clientID, or the default client when empty.
func (m *Manager) Start(clientID string) (*models.Session, error) {
	if clientID == "" {
		clientID = m.defaultClientID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if len(m.sessions) >= m.maxSessions {
		m.evictIdleLocked(len(m.sessions) - m.maxSessions + 1)
	}
	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("%w (max %d)", ErrTooManySessions, m.maxSessions)
	}

	id := uuid.New().String()
	store := status.NewStore(id)
	orch, err := upload.NewOrchestrator(upload.Options{
		Store:        store,
		Client:       m.client,
		CallerID:     clientID,
		StaggerDelay: m.stagger,
		Scheduler:    m.sched,
	})
	if err != nil {
		return nil, err
	}

	var queueOpts []intake.Option
	if m.acceptedType != "" {
		queueOpts = append(queueOpts, intake.WithAcceptedType(m.acceptedType))
	}

	state := &SessionState{
		Session: models.NewSession(id, clientID),
		Store:   store,
		Queue:   intake.NewQueue(store, queueOpts...),
		Orch:    orch,
		blobs:   make(map[string]string),
		done:    make(chan struct{}),
	}
	sub := store.SubscribeQueued(watcherBuffer)
	go m.watch(state, sub)

	m.sessions[id] = state
	metrics.ActiveSessions.Inc()
	m.logger.Info().Str(log.FieldSession, id).Str(log.FieldClient, clientID).Msg("session started")

	cp := *state.Session
	return &cp, nil
}

// watch journals every transition of a session and drops spooled payloads
// whose entries settled. It returns when the store closes.
func (m *Manager) watch(state *SessionState, sub *status.Subscription) {
	defer close(state.done)
	logger := m.logger.With().Str(log.FieldSession, state.Session.ID).Logger()

	for t := range sub.C() {
		if err := m.journal.Record(context.Background(), t); err != nil {
			metrics.JournalErrorsTotal.Inc()
			logger.Warn().Err(err).Str(log.FieldEntry, t.EntryID).Msg("journal write failed")
		}
		if t.To.Terminal() {
			m.releaseBlob(state, t.EntryID)
		}
	}
}

func (m *Manager) releaseBlob(state *SessionState, entryID string) {
	state.blobMu.Lock()
	blobID, ok := state.blobs[entryID]
	delete(state.blobs, entryID)
	state.blobMu.Unlock()
	if !ok {
		return
	}
	m.deleteBlob(blobID)
}

func (m *Manager) deleteBlob(blobID string) {
	if err := m.spool.Delete(blobID); err != nil {
		if !errors.Is(err, storage.ErrFileNotFound) {
			m.logger.Warn().Err(err).Str("spool_id", blobID).Msg("cannot delete spooled payload")
		}
		return
	}
	metrics.SpoolDeletedTotal.Inc()
}

// Submit spools the uploads the session accepts, appends them as pending
// entries and dispatches their uploads. Items of another type are dropped
// silently. It returns the accepted entries in submission order.
func (m *Manager) Submit(sessionID string, uploads []Upload) ([]models.Entry, error) {
	state, err := m.touch(sessionID)
	if err != nil {
		return nil, err
	}

	items := make([]intake.Item, 0, len(uploads))
	var spooled []string
	for _, u := range uploads {
		if !state.Queue.Accepts(u.ContentType) {
			items = append(items, intake.Item{Name: u.Name, ContentType: u.ContentType})
			continue
		}
		info, err := m.spool.Save(u.Name, u.Body)
		if err != nil {
			for _, id := range spooled {
				m.deleteBlob(id)
			}
			return nil, fmt.Errorf("spooling %s: %w", u.Name, err)
		}
		spooled = append(spooled, info.ID)
		items = append(items, intake.Item{
			Name:        u.Name,
			Size:        info.Size,
			ContentType: u.ContentType,
			Content:     storage.Source(m.spool, info.ID),
		})
	}

	docs, err := state.Queue.AcceptBatch(items)
	if err != nil {
		for _, id := range spooled {
			m.deleteBlob(id)
		}
		if errors.Is(err, status.ErrClosed) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, err
	}

	state.blobMu.Lock()
	for i, doc := range docs {
		state.blobs[doc.Entry.ID] = spooled[i]
	}
	state.blobMu.Unlock()

	state.Orch.Dispatch(docs)

	// the session may have ended between AcceptBatch and here
	if state.Store.Closed() {
		for _, doc := range docs {
			m.releaseBlob(state, doc.Entry.ID)
		}
	}

	entries := make([]models.Entry, len(docs))
	for i, doc := range docs {
		entries[i] = doc.Entry
	}
	return entries, nil
}

// Get returns a copy of the session metadata.
func (m *Manager) Get(sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	cp := *state.Session
	cp.EntryCount = state.Store.Len()
	return &cp, nil
}

// List returns every open session, oldest first.
func (m *Manager) List() []*models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, state := range m.sessions {
		cp := *state.Session
		cp.EntryCount = state.Store.Len()
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// TouchSession updates the LastAccessed timestamp for a session.
func (m *Manager) TouchSession(sessionID string) bool {
	_, err := m.touch(sessionID)
	return err == nil
}

func (m *Manager) touch(sessionID string) (*SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	state.Session.LastAccessed = time.Now()
	return state, nil
}

// Snapshot returns the session's entries in submission order.
func (m *Manager) Snapshot(sessionID string) ([]models.Entry, error) {
	state, err := m.touch(sessionID)
	if err != nil {
		return nil, err
	}
	return state.Store.Snapshot(), nil
}

// Subscribe registers for the session's transitions. The channel closes when
// the session ends.
func (m *Manager) Subscribe(sessionID string, buffer int) (*status.Subscription, error) {
	state, err := m.touch(sessionID)
	if err != nil {
		return nil, err
	}
	return state.Store.Subscribe(buffer), nil
}

// History returns the journaled transitions of a session, live or ended. An id
// that is neither live nor journaled yields ErrSessionNotFound.
func (m *Manager) History(ctx context.Context, sessionID string) ([]models.Transition, error) {
	history, err := m.journal.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		m.mu.RLock()
		_, live := m.sessions[sessionID]
		m.mu.RUnlock()
		if !live {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
	}
	return history, nil
}

// End tears a session down: pending uploads are cancelled, results of uploads
// still in flight are discarded and spooled payloads are removed.
func (m *Manager) End(sessionID string) error {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if ok && !m.closed {
		m.detachLocked(state)
	}
	closed := m.closed
	m.mu.Unlock()

	if closed {
		return ErrManagerClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	m.teardown(state)
	return nil
}

// detachLocked removes a session from the map and registers its uploads with
// inflight. Called with m.mu held, before teardown.
func (m *Manager) detachLocked(state *SessionState) {
	delete(m.sessions, state.Session.ID)
	m.inflight.Add(1)
}

// teardown stops a detached session and waits for its watcher. Uploads still
// running are awaited in the background and release inflight when done.
func (m *Manager) teardown(state *SessionState) {
	state.Orch.Close()
	state.Store.Close()
	<-state.done

	state.blobMu.Lock()
	blobs := state.blobs
	state.blobs = make(map[string]string)
	state.blobMu.Unlock()
	for _, id := range blobs {
		m.deleteBlob(id)
	}

	go func() {
		defer m.inflight.Done()
		state.Orch.Wait()
	}()

	metrics.ActiveSessions.Dec()
	m.logger.Info().
		Str(log.FieldSession, state.Session.ID).
		Int("entries", state.Store.Len()).
		Msg("session ended")
}

// settled reports whether no entry of the session is pending or uploading.
func (s *SessionState) settled() bool {
	for _, e := range s.Store.Snapshot() {
		if !e.Status.Terminal() {
			return false
		}
	}
	return true
}

// evictIdleLocked ends up to n settled sessions that are outside the
// keep-alive window, least recently used first. Called with m.mu held.
func (m *Manager) evictIdleLocked(n int) {
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	var candidates []*SessionState
	for _, state := range m.sessions {
		if state.Session.LastAccessed.Before(keepAliveCutoff) && state.settled() {
			candidates = append(candidates, state)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Session.LastAccessed.Before(candidates[j].Session.LastAccessed)
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	for _, state := range candidates {
		m.detachLocked(state)
		m.logger.Info().Str(log.FieldSession, state.Session.ID).Msg("evicting idle session to free a slot")
		m.teardown(state)
	}
}

// CleanupOldSessions ends sessions idle for longer than maxAge whose uploads
// have all settled, and returns how many were removed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.Lock()
	var expired []*SessionState
	for _, state := range m.sessions {
		if state.Session.LastAccessed.Before(cutoff) && state.settled() {
			m.detachLocked(state)
			expired = append(expired, state)
		}
	}
	m.mu.Unlock()

	for _, state := range expired {
		m.logger.Info().
			Str(log.FieldSession, state.Session.ID).
			Dur("idle", time.Since(state.Session.LastAccessed).Round(time.Second)).
			Msg("cleaned up aged session")
		m.teardown(state)
	}
	return len(expired)
}

// RunJanitor calls CleanupOldSessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval, maxAge time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.CleanupOldSessions(maxAge); n > 0 {
				m.logger.Debug().Int("removed", n).Msg("janitor pass")
			}
		}
	}
}

// Close ends every session and waits for their running uploads to return or
// for ctx to be done. The journal is closed last.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*SessionState, 0, len(m.sessions))
	for _, state := range m.sessions {
		open = append(open, state)
		m.detachLocked(state)
	}
	m.mu.Unlock()

	for _, state := range open {
		m.teardown(state)
	}

	waited := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(waited)
	}()

	var err error
	select {
	case <-waited:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for uploads: %w", ctx.Err())
	}

	if jerr := m.journal.Close(); jerr != nil && err == nil {
		err = jerr
	}
	return err
}
