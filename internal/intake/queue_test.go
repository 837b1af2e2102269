package intake

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/status"
)

func item(name, contentType string) Item {
	return Item{
		Name:        name,
		Size:        int64(len(name)),
		ContentType: contentType,
		Content: models.ContentFunc(func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(name)), nil
		}),
	}
}

func counterIDs() IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("entry-%d", n)
	}
}

func TestAcceptBatchFiltersAndPreservesOrder(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  []string
	}{
		{
			name: "two pdfs and one image",
			items: []Item{
				item("a.pdf", "application/pdf"),
				item("photo.png", "image/png"),
				item("b.pdf", "application/pdf"),
			},
			want: []string{"a.pdf", "b.pdf"},
		},
		{
			name: "parameters and case are ignored",
			items: []Item{
				item("c.pdf", "Application/PDF; charset=binary"),
				item("d.pdf", "application/pdf"),
			},
			want: []string{"c.pdf", "d.pdf"},
		},
		{
			name: "extension does not matter, declared type does",
			items: []Item{
				item("report.pdf", "application/octet-stream"),
				item("noext", "application/pdf"),
			},
			want: []string{"noext"},
		},
		{
			name: "empty and malformed types are dropped",
			items: []Item{
				item("x.pdf", ""),
				item("y.pdf", "application/"),
				item("z.pdf", "application/pdf"),
			},
			want: []string{"z.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := status.NewStore("sess")
			q := NewQueue(store, WithIDFunc(counterIDs()))

			docs, err := q.AcceptBatch(tt.items)
			require.NoError(t, err)
			require.Len(t, docs, len(tt.want))

			snap := store.Snapshot()
			require.Len(t, snap, len(tt.want))
			for i, name := range tt.want {
				assert.Equal(t, name, docs[i].Entry.Name)
				assert.Equal(t, name, snap[i].Name)
				assert.Equal(t, docs[i].Entry.ID, snap[i].ID)
				assert.Equal(t, models.StatusPending, snap[i].Status)
				assert.Empty(t, snap[i].Error)
			}
		})
	}
}

func TestAcceptBatchKeepsContentWithEntry(t *testing.T) {
	store := status.NewStore("sess")
	q := NewQueue(store)

	docs, err := q.AcceptBatch([]Item{
		item("skip.txt", "text/plain"),
		item("keep.pdf", "application/pdf"),
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	rc, err := docs[0].Content.Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "keep.pdf", string(body))
	assert.Equal(t, int64(len("keep.pdf")), docs[0].Entry.Size)
}

func TestAcceptBatchNothingAcceptedIsSilent(t *testing.T) {
	store := status.NewStore("sess")
	sub := store.Subscribe(4)
	defer sub.Close()
	q := NewQueue(store)

	docs, err := q.AcceptBatch([]Item{item("a.txt", "text/plain"), item("b.doc", "application/msword")})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 0, store.Len())
	assert.Len(t, sub.C(), 0)

	docs, err = q.AcceptBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestAcceptBatchIDsAreUniqueAcrossBatches(t *testing.T) {
	store := status.NewStore("sess")
	q := NewQueue(store)

	seen := map[string]bool{}
	for b := 0; b < 5; b++ {
		docs, err := q.AcceptBatch([]Item{item("a.pdf", PDFContentType), item("a.pdf", PDFContentType)})
		require.NoError(t, err)
		for _, d := range docs {
			assert.False(t, seen[d.Entry.ID], "id %s reused", d.Entry.ID)
			seen[d.Entry.ID] = true
		}
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 10, store.Len())
}

func TestAcceptBatchClosedStore(t *testing.T) {
	store := status.NewStore("sess")
	store.Close()
	q := NewQueue(store)

	_, err := q.AcceptBatch([]Item{item("a.pdf", PDFContentType)})
	assert.ErrorIs(t, err, status.ErrClosed)
}

func TestWithAcceptedType(t *testing.T) {
	q := NewQueue(status.NewStore("sess"), WithAcceptedType("Text/Plain"))
	assert.True(t, q.Accepts("text/plain; charset=utf-8"))
	assert.False(t, q.Accepts(PDFContentType))
}
