package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePDF = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n"

type ingestRecorder struct {
	mu       sync.Mutex
	names    []string
	clientID []string
	status   int
}

func newIngestServer(t *testing.T, status int) (*httptest.Server, *ingestRecorder) {
	t.Helper()
	rec := &ingestRecorder{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("pdf")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(file)
		assert.Equal(t, samplePDF, string(body))

		rec.mu.Lock()
		rec.names = append(rec.names, header.Filename)
		rec.clientID = append(rec.clientID, r.URL.Query().Get("client_id"))
		rec.mu.Unlock()

		w.WriteHeader(rec.status)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func executePush(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("INGEST_URL", "")
	t.Setenv("INGEST_CLIENT_ID", "")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--log-level", "error", "push"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestItemsFromPaths(t *testing.T) {
	dir := t.TempDir()
	pdf := writeFile(t, dir, "doc.pdf", samplePDF)
	txt := writeFile(t, dir, "notes.txt", "plain words")

	items, err := itemsFromPaths([]string{pdf, txt})
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "doc.pdf", items[0].Name)
	assert.Equal(t, int64(len(samplePDF)), items[0].Size)
	assert.Equal(t, "application/pdf", items[0].ContentType)
	assert.Equal(t, "text/plain; charset=utf-8", items[1].ContentType)

	rc, err := items[0].Content.Open()
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, samplePDF, string(body))
}

func TestItemsFromPaths_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{name: "missing", path: filepath.Join(dir, "missing.pdf"), wantErr: "file does not exist"},
		{name: "directory", path: dir, wantErr: "is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := itemsFromPaths([]string{tt.path})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPushUploadsPDFs(t *testing.T) {
	srv, rec := newIngestServer(t, http.StatusOK)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", samplePDF)
	b := writeFile(t, dir, "b.pdf", samplePDF)
	txt := writeFile(t, dir, "skip.txt", "not a pdf")

	out, err := executePush(t, "--endpoint", srv.URL+"/upload", "--client-id", "7", a, txt, b)
	require.NoError(t, err)

	assert.Contains(t, out, "Skipping 1 file(s)")
	assert.Contains(t, out, "2 succeeded")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf"}, rec.names)
	assert.Equal(t, []string{"7", "7"}, rec.clientID)
}

func TestPushReportsFailures(t *testing.T) {
	srv, _ := newIngestServer(t, http.StatusInternalServerError)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf", samplePDF)

	out, err := executePush(t, "--endpoint", srv.URL+"/upload", a)
	require.Error(t, err)
	assert.Equal(t, "1 of 1 uploads failed", err.Error())
	assert.Contains(t, out, "upload failed: 500 Internal Server Error")
}

func TestPushRejectsBatchWithoutPDFs(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", "plain words")

	_, err := executePush(t, "--endpoint", "http://127.0.0.1:1/upload", txt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the 1 files is a PDF")
}
