// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/session"
	"github.com/netysoft/Rag-ChatbotIA/internal/status"
	"github.com/netysoft/Rag-ChatbotIA/internal/storage"
)

// SessionHandler handles intake session operations
type SessionHandler interface {
	HandleStartSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleEndSession(c echo.Context) error
	HandleSubmitFiles(c echo.Context) error
	HandleGetEntries(c echo.Context) error
	HandleGetEntriesMsgpack(c echo.Context) error
	HandleGetHistory(c echo.Context) error
	HandleEntriesStream(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Start(clientID string) (*models.Session, error)
	Get(id string) (*models.Session, error)
	List() []*models.Session
	Submit(id string, uploads []session.Upload) ([]models.Entry, error)
	Snapshot(id string) ([]models.Entry, error)
	Subscribe(id string, buffer int) (*status.Subscription, error)
	History(ctx context.Context, id string) ([]models.Transition, error)
	End(id string) error
}

var _ SessionManager = (*session.Manager)(nil)

// SpoolUsage reports how much the payload spool holds.
type SpoolUsage interface {
	Usage() (files int, bytes int64)
}

var _ SpoolUsage = (*storage.LocalStore)(nil)
