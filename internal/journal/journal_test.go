package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
)

func sampleTransitions(sessionID string) []models.Transition {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Transition{
		{SessionID: sessionID, EntryID: "e1", Seq: 1, Name: "a.pdf", From: models.StatusPending, To: models.StatusPending, At: at},
		{SessionID: sessionID, EntryID: "e1", Seq: 1, Name: "a.pdf", From: models.StatusPending, To: models.StatusUploading, At: at.Add(time.Millisecond)},
		{SessionID: sessionID, EntryID: "e1", Seq: 1, Name: "a.pdf", From: models.StatusUploading, To: models.StatusError, Error: "upload failed: 502 Bad Gateway", At: at.Add(2 * time.Millisecond)},
	}
}

func TestJournals(t *testing.T) {
	tests := []struct {
		name string
		open func(t *testing.T) Journal
	}{
		{name: "memory", open: func(t *testing.T) Journal { return NewMemoryJournal() }},
		{name: "duckdb", open: func(t *testing.T) Journal {
			j, err := OpenDuckJournal(filepath.Join(t.TempDir(), "db", "journal.duckdb"))
			require.NoError(t, err)
			return j
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := tt.open(t)
			defer j.Close()
			ctx := context.Background()

			for _, tr := range sampleTransitions("s1") {
				require.NoError(t, j.Record(ctx, tr))
			}
			require.NoError(t, j.Record(ctx, sampleTransitions("s2")[0]))

			got, err := j.History(ctx, "s1")
			require.NoError(t, err)
			want := sampleTransitions("s1")
			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].EntryID, got[i].EntryID)
				assert.Equal(t, want[i].From, got[i].From)
				assert.Equal(t, want[i].To, got[i].To)
				assert.Equal(t, want[i].Error, got[i].Error)
				assert.Equal(t, want[i].Seq, got[i].Seq)
				assert.WithinDuration(t, want[i].At, got[i].At, time.Millisecond)
			}

			other, err := j.History(ctx, "s2")
			require.NoError(t, err)
			assert.Len(t, other, 1)

			none, err := j.History(ctx, "missing")
			require.NoError(t, err)
			assert.NotNil(t, none)
			assert.Empty(t, none)
		})
	}
}

func TestDuckJournalReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.duckdb")
	ctx := context.Background()

	j, err := OpenDuckJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, sampleTransitions("s1")[0]))
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())
	assert.Error(t, j.Record(ctx, sampleTransitions("s1")[1]))

	j, err = OpenDuckJournal(path)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.History(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestNopJournal(t *testing.T) {
	var j NopJournal
	require.NoError(t, j.Record(context.Background(), sampleTransitions("s")[0]))
	h, err := j.History(context.Background(), "s")
	require.NoError(t, err)
	assert.Empty(t, h)
	assert.NoError(t, j.Close())
}
