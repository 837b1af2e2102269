// handlers_session.go - Intake session handlers
package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/session"
)

// FilesField is the multipart field carrying submitted documents.
const FilesField = "files"

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions       SessionManager
	maxUploadBytes int64
}

// NewSessionHandler creates a new session handler. maxUploadBytes of zero
// disables the per-file limit.
func NewSessionHandler(sessions SessionManager, maxUploadBytes int64) SessionHandler {
	return &SessionHandlerImpl{
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
	}
}

type startSessionRequest struct {
	ClientID string `json:"clientId"`
}

type submitResponse struct {
	SessionID string         `json:"sessionId"`
	Accepted  []models.Entry `json:"accepted"`
	Dropped   int            `json:"dropped"`
}

type entriesResponse struct {
	SessionID string         `json:"sessionId" msgpack:"sessionId"`
	Entries   []models.Entry `json:"entries" msgpack:"entries"`
}

// sessionError maps session manager errors onto API errors.
func sessionError(err error, id string) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return NewNotFoundError("session", id)
	case errors.Is(err, session.ErrTooManySessions):
		return NewServiceUnavailableError(err.Error())
	case errors.Is(err, session.ErrManagerClosed):
		return NewServiceUnavailableError("server is shutting down")
	}
	return NewInternalError("session operation failed", err)
}

// HandleStartSession opens a session for the given (or default) client id
func (h *SessionHandlerImpl) HandleStartSession(c echo.Context) error {
	var req startSessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
	}

	sess, err := h.sessions.Start(req.ClientID)
	if err != nil {
		return sessionError(err, "")
	}
	return c.JSON(http.StatusCreated, sess)
}

// HandleGetSession returns session metadata
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, err := h.sessions.Get(id)
	if err != nil {
		return sessionError(err, id)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleEndSession tears a session down
func (h *SessionHandlerImpl) HandleEndSession(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if err := h.sessions.End(id); err != nil {
		return sessionError(err, id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSubmitFiles accepts a multipart batch and starts the uploads. Files
// that are not PDFs are dropped without an error; the response reports how
// many were dropped.
func (h *SessionHandlerImpl) HandleSubmitFiles(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form", err)
	}
	defer func() { _ = form.RemoveAll() }()

	headers := form.File[FilesField]
	if len(headers) == 0 {
		return NewValidationError(FilesField)
	}

	for _, fh := range headers {
		if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
			return NewPayloadTooLargeError(fh.Filename, humanize.Bytes(uint64(h.maxUploadBytes)))
		}
	}

	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		return NewBadRequestError("cannot read uploaded file", err)
	}

	accepted, err := h.sessions.Submit(id, uploads)
	if err != nil {
		return sessionError(err, id)
	}

	return c.JSON(http.StatusAccepted, submitResponse{
		SessionID: id,
		Accepted:  accepted,
		Dropped:   len(uploads) - len(accepted),
	})
}

func openUploads(headers []*multipart.FileHeader) ([]session.Upload, func(), error) {
	var files []io.Closer
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	uploads := make([]session.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, closeAll, err
		}
		files = append(files, f)
		uploads = append(uploads, session.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}

// HandleGetEntries returns the session's entries in submission order
func (h *SessionHandlerImpl) HandleGetEntries(c echo.Context) error {
	id := c.Param("sessionId")
	entries, err := h.sessions.Snapshot(id)
	if err != nil {
		return sessionError(err, id)
	}
	return c.JSON(http.StatusOK, entriesResponse{SessionID: id, Entries: entries})
}

// HandleGetEntriesMsgpack returns the same snapshot msgpack-encoded
func (h *SessionHandlerImpl) HandleGetEntriesMsgpack(c echo.Context) error {
	id := c.Param("sessionId")
	entries, err := h.sessions.Snapshot(id)
	if err != nil {
		return sessionError(err, id)
	}

	data, err := msgpack.Marshal(entriesResponse{SessionID: id, Entries: entries})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleGetHistory returns the journaled transitions of a session
func (h *SessionHandlerImpl) HandleGetHistory(c echo.Context) error {
	id := c.Param("sessionId")
	history, err := h.sessions.History(c.Request().Context(), id)
	if err != nil {
		return sessionError(err, id)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId":   id,
		"transitions": history,
	})
}
