package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netysoft/Rag-ChatbotIA/internal/config"
)

func testConfig(t *testing.T, endpoint string) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Storage.DataDirectory = dir
	cfg.Storage.SpoolDirectory = filepath.Join(dir, "spool")
	cfg.Storage.JournalPath = filepath.Join(dir, "journal", "transitions.duckdb")
	cfg.Ingestion.Endpoint = endpoint
	cfg.Advanced.EnableRequestLogging = false
	return cfg
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		journal bool
	}{
		{name: "without journal", journal: false},
		{name: "with journal", journal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://127.0.0.1:1/upload")
			cfg.Advanced.EnableJournal = tt.journal

			srv, err := New(cfg, Info{Version: "test"})
			require.NoError(t, err)
			require.NotNil(t, srv.Echo())
			require.NotNil(t, srv.Sessions())

			rec := httptest.NewRecorder()
			srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			require.NoError(t, srv.Sessions().Close(context.Background()))
			if tt.journal {
				assert.FileExists(t, cfg.Storage.JournalPath)
			}
		})
	}
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	cfg := testConfig(t, "ftp://example.com/upload")

	_, err := New(cfg, Info{})
	require.Error(t, err)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1/upload")
	cfg.Advanced.EnableJournal = false

	srv, err := New(cfg, Info{Version: "test"})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Post(base+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	var sess struct {
		ID       string `json:"id"`
		ClientID string `json:"clientId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "2", sess.ClientID)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	_, err = srv.Sessions().Start("")
	assert.Error(t, err)
}
