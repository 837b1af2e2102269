package status

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
)

func newEntries(names ...string) []models.Entry {
	out := make([]models.Entry, 0, len(names))
	for _, n := range names {
		out = append(out, models.NewEntry("id-"+n, n, 100))
	}
	return out
}

func TestStoreAppendPreservesOrder(t *testing.T) {
	s := NewStore("sess-1")

	first, err := s.Append(newEntries("a.pdf", "b.pdf")...)
	require.NoError(t, err)
	second, err := s.Append(newEntries("c.pdf")...)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first[0].Seq)
	assert.Equal(t, uint64(2), first[1].Seq)
	assert.Equal(t, uint64(3), second[0].Seq)

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		assert.Equal(t, name, snap[i].Name)
		assert.Equal(t, models.StatusPending, snap[i].Status)
	}
}

func TestStoreAppendRejectsDuplicatesAtomically(t *testing.T) {
	s := NewStore("sess-1")
	_, err := s.Append(newEntries("a.pdf")...)
	require.NoError(t, err)

	_, err = s.Append(append(newEntries("b.pdf"), newEntries("a.pdf")...)...)
	require.ErrorIs(t, err, ErrDuplicateEntry)
	assert.Equal(t, 1, s.Len(), "failed batch must not append anything")

	_, err = s.Append(models.Entry{Name: "noid.pdf"})
	assert.Error(t, err)
}

func TestStoreAppendEmptyIsNoop(t *testing.T) {
	s := NewStore("sess-1")
	sub := s.Subscribe(4)
	defer sub.Close()

	out, err := s.Append()
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, uint64(0), s.Version())
	assert.Len(t, sub.C(), 0)
}

func TestStoreSetStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.Status
		next    models.Status
		wantErr error
	}{
		{name: "pending to uploading", next: models.StatusUploading},
		{name: "pending to success skips uploading", next: models.StatusSuccess, wantErr: ErrInvalidTransition},
		{name: "uploading to success", path: []models.Status{models.StatusUploading}, next: models.StatusSuccess},
		{name: "uploading to error", path: []models.Status{models.StatusUploading}, next: models.StatusError},
		{name: "success is terminal", path: []models.Status{models.StatusUploading, models.StatusSuccess}, next: models.StatusError, wantErr: ErrInvalidTransition},
		{name: "error is terminal", path: []models.Status{models.StatusUploading, models.StatusError}, next: models.StatusUploading, wantErr: ErrInvalidTransition},
		{name: "unknown status", next: models.Status(99), wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore("sess-1")
			_, err := s.Append(newEntries("a.pdf")...)
			require.NoError(t, err)
			for _, st := range tt.path {
				require.NoError(t, s.SetStatus("id-a.pdf", st, "boom"))
			}
			before, _ := s.Get("id-a.pdf")

			err = s.SetStatus("id-a.pdf", tt.next, "boom")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				after, _ := s.Get("id-a.pdf")
				assert.Equal(t, before, after)
				return
			}
			require.NoError(t, err)
			after, _ := s.Get("id-a.pdf")
			assert.Equal(t, tt.next, after.Status)
		})
	}
}

func TestStoreErrorMessageOnlyOnError(t *testing.T) {
	s := NewStore("sess-1")
	_, err := s.Append(newEntries("a.pdf", "b.pdf")...)
	require.NoError(t, err)

	require.NoError(t, s.SetStatus("id-a.pdf", models.StatusUploading, "ignored"))
	require.NoError(t, s.SetStatus("id-a.pdf", models.StatusSuccess, "ignored"))
	require.NoError(t, s.SetStatus("id-b.pdf", models.StatusUploading, ""))
	require.NoError(t, s.SetStatus("id-b.pdf", models.StatusError, "upload failed: 500 Internal Server Error"))

	a, _ := s.Get("id-a.pdf")
	b, _ := s.Get("id-b.pdf")
	assert.Empty(t, a.Error)
	assert.Equal(t, "upload failed: 500 Internal Server Error", b.Error)
}

func TestStoreUnknownID(t *testing.T) {
	s := NewStore("sess-1")
	err := s.SetStatus("missing", models.StatusUploading, "")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestStoreNotifiesSubscribers(t *testing.T) {
	s := NewStore("sess-1")
	sub := s.Subscribe(16)
	defer sub.Close()

	_, err := s.Append(newEntries("a.pdf")...)
	require.NoError(t, err)
	require.NoError(t, s.SetStatus("id-a.pdf", models.StatusUploading, ""))
	require.NoError(t, s.SetStatus("id-a.pdf", models.StatusError, "nope"))
	// rejected mutation must not notify
	require.Error(t, s.SetStatus("id-a.pdf", models.StatusSuccess, ""))

	require.Len(t, sub.C(), 3)
	got := []models.Transition{<-sub.C(), <-sub.C(), <-sub.C()}
	assert.Equal(t, models.StatusPending, got[0].To)
	assert.Equal(t, models.StatusPending, got[1].From)
	assert.Equal(t, models.StatusUploading, got[1].To)
	assert.Equal(t, models.StatusError, got[2].To)
	assert.Equal(t, "nope", got[2].Error)
	for _, tr := range got {
		assert.Equal(t, "sess-1", tr.SessionID)
		assert.Equal(t, "id-a.pdf", tr.EntryID)
	}
	assert.Equal(t, uint64(3), s.Version())
}

func TestStoreFullSubscriberDoesNotBlock(t *testing.T) {
	s := NewStore("sess-1")
	sub := s.Subscribe(1)
	defer sub.Close()

	_, err := s.Append(newEntries("a.pdf", "b.pdf", "c.pdf")...)
	require.NoError(t, err)
	assert.Len(t, sub.C(), 1)
	assert.Equal(t, 3, s.Len())
}

func TestStoreQueuedSubscriberMissesNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStore("sess-1")
	sub := s.SubscribeQueued(2)

	const n = 500
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("doc-%03d.pdf", i)
	}
	// nothing reads while the batch and its status changes are published
	_, err := s.Append(newEntries(names...)...)
	require.NoError(t, err)
	for _, name := range names {
		require.NoError(t, s.SetStatus("id-"+name, models.StatusUploading, ""))
		require.NoError(t, s.SetStatus("id-"+name, models.StatusSuccess, ""))
	}
	s.Close()

	var got []models.Transition
	for tr := range sub.C() {
		got = append(got, tr)
	}
	require.Len(t, got, 3*n)
	for i, name := range names {
		assert.Equal(t, "id-"+name, got[i].EntryID)
		assert.Equal(t, models.StatusPending, got[i].To)
	}
	seen := make(map[string][]models.Status, n)
	for _, tr := range got[n:] {
		seen[tr.EntryID] = append(seen[tr.EntryID], tr.To)
	}
	for _, name := range names {
		assert.Equal(t, []models.Status{models.StatusUploading, models.StatusSuccess}, seen["id-"+name])
	}
	sub.Close()
}

func TestStoreQueuedSubscriberCloseDiscards(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewStore("sess-1")
	sub := s.SubscribeQueued(1)
	_, err := s.Append(newEntries("a.pdf", "b.pdf", "c.pdf")...)
	require.NoError(t, err)

	sub.Close()
	sub.Close()
	for range sub.C() {
	}
	require.NoError(t, s.SetStatus("id-a.pdf", models.StatusUploading, ""))
	s.Close()

	late := s.SubscribeQueued(1)
	_, open := <-late.C()
	assert.False(t, open)
	late.Close()
}

func TestStoreCloseGuardsMutations(t *testing.T) {
	s := NewStore("sess-1")
	_, err := s.Append(newEntries("a.pdf")...)
	require.NoError(t, err)
	sub := s.Subscribe(4)

	s.Close()
	s.Close()

	_, open := <-sub.C()
	assert.False(t, open, "subscriber channel should be closed")
	sub.Close()

	assert.ErrorIs(t, s.SetStatus("id-a.pdf", models.StatusUploading, ""), ErrClosed)
	_, err = s.Append(newEntries("b.pdf")...)
	assert.ErrorIs(t, err, ErrClosed)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, models.StatusPending, snap[0].Status)

	late := s.Subscribe(1)
	_, open = <-late.C()
	assert.False(t, open)
}

func TestStoreConcurrentMutationsByID(t *testing.T) {
	s := NewStore("sess-1")
	const n = 50
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("doc-%02d.pdf", i)
	}
	_, err := s.Append(newEntries(names...)...)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_ = s.SetStatus(id, models.StatusUploading, "")
			if i%2 == 0 {
				_ = s.SetStatus(id, models.StatusSuccess, "")
			} else {
				_ = s.SetStatus(id, models.StatusError, "failed")
			}
		}(i, "id-"+name)
	}
	wg.Wait()

	for i, e := range s.Snapshot() {
		assert.Equal(t, names[i], e.Name)
		if i%2 == 0 {
			assert.Equal(t, models.StatusSuccess, e.Status)
		} else {
			assert.Equal(t, models.StatusError, e.Status)
		}
	}
}
