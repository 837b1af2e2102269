// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions SessionManager
	spool    SpoolUsage
}

// NewHealthHandler creates a new health handler. sessions and spool may be nil.
func NewHealthHandler(version string, sessions SessionManager, spool SpoolUsage) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
		spool:    spool,
	}
}

type spoolHealth struct {
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
	Size  string `json:"size"`
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.sessions != nil {
		resp["sessions"] = len(h.sessions.List())
	}
	if h.spool != nil {
		files, bytes := h.spool.Usage()
		resp["spool"] = spoolHealth{Files: files, Bytes: bytes, Size: humanize.Bytes(uint64(bytes))}
	}
	return c.JSON(http.StatusOK, resp)
}
