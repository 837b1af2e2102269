package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netysoft/Rag-ChatbotIA/internal/session"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "api error", err: NewNotFoundError("session", "x"), wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "echo http error", err: echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), wantStatus: http.StatusMethodNotAllowed, wantCode: "HTTP_ERROR"},
		{name: "plain error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "UNKNOWN_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(tt.err, c)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestSessionError(t *testing.T) {
	tests := []struct {
		err      error
		wantCode string
	}{
		{err: fmt.Errorf("%w: abc", session.ErrSessionNotFound), wantCode: "NOT_FOUND"},
		{err: fmt.Errorf("%w (max 2)", session.ErrTooManySessions), wantCode: "SERVICE_UNAVAILABLE"},
		{err: session.ErrManagerClosed, wantCode: "SERVICE_UNAVAILABLE"},
		{err: errors.New("disk full"), wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			var apiErr *APIError
			require.True(t, errors.As(sessionError(tt.err, "abc"), &apiErr))
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}
