package journal

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/netysoft/Rag-ChatbotIA/internal/log"
	"github.com/netysoft/Rag-ChatbotIA/internal/models"
)

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS transitions_id_seq`,
	`CREATE TABLE IF NOT EXISTS transitions (
		id          BIGINT DEFAULT nextval('transitions_id_seq') PRIMARY KEY,
		session_id  VARCHAR NOT NULL,
		entry_id    VARCHAR NOT NULL,
		seq         UBIGINT NOT NULL,
		name        VARCHAR NOT NULL,
		from_status VARCHAR NOT NULL,
		to_status   VARCHAR NOT NULL,
		error       VARCHAR,
		at          TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id)`,
}

// DuckJournal stores transitions in a DuckDB file.
type DuckJournal struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
	closed bool
	logger zerolog.Logger
}

// OpenDuckJournal opens or creates the journal database at dbPath.
func OpenDuckJournal(dbPath string) (*DuckJournal, error) {
	logger := log.WithComponent("journal").With().Str("path", dbPath).Logger()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warn().Err(err).Str("pragma", pragma).Msg("pragma failed")
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create transitions table: %w", err)
		}
	}

	logger.Info().Msg("transition journal opened")
	return &DuckJournal{db: db, dbPath: dbPath, logger: logger}, nil
}

// Path returns the database file path.
func (j *DuckJournal) Path() string {
	return j.dbPath
}

// Record appends one transition.
func (j *DuckJournal) Record(ctx context.Context, t models.Transition) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return sql.ErrConnDone
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO transitions (session_id, entry_id, seq, name, from_status, to_status, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.EntryID, t.Seq, t.Name, t.From.String(), t.To.String(), t.Error, t.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording transition of %s: %w", t.EntryID, err)
	}
	return nil
}

// History returns every transition of a session in record order.
func (j *DuckJournal) History(ctx context.Context, sessionID string) ([]models.Transition, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id, entry_id, seq, name, from_status, to_status, COALESCE(error, ''), at
		FROM transitions
		WHERE session_id = ?
		ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying history of %s: %w", sessionID, err)
	}
	defer rows.Close()

	out := make([]models.Transition, 0)
	for rows.Next() {
		var (
			t        models.Transition
			from, to string
		)
		if err := rows.Scan(&t.SessionID, &t.EntryID, &t.Seq, &t.Name, &from, &to, &t.Error, &t.At); err != nil {
			return nil, fmt.Errorf("scanning transition: %w", err)
		}
		if t.From, err = models.ParseStatus(from); err != nil {
			return nil, err
		}
		if t.To, err = models.ParseStatus(to); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close closes the database. The file is kept.
func (j *DuckJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
