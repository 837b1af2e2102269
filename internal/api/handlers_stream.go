// handlers_stream.go - Server-sent events for entry snapshots
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/status"
)

// streamKeepAlive is how often an idle stream sends a comment line.
const streamKeepAlive = 15 * time.Second

// HandleEntriesStream pushes a full snapshot on connect and after every status
// change. The stream ends with an "end" event when the session ends.
func (h *SessionHandlerImpl) HandleEntriesStream(c echo.Context) error {
	id := c.Param("sessionId")
	sub, err := h.sessions.Subscribe(id, status.DefaultSubscriberBuffer)
	if err != nil {
		return sessionError(err, id)
	}
	defer sub.Close()

	// The stream outlives the server write timeout.
	_ = http.NewResponseController(c.Response()).SetWriteDeadline(time.Time{})

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	if !h.sendSnapshot(c, id) {
		return nil
	}

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-keepAlive.C:
			fmt.Fprint(c.Response(), ": keep-alive\n\n")
			c.Response().Flush()
		case _, ok := <-sub.C():
			if !ok {
				sendSSEEvent(c, "end", map[string]string{"sessionId": id})
				return nil
			}
			if !drain(sub) {
				sendSSEEvent(c, "end", map[string]string{"sessionId": id})
				return nil
			}
			if !h.sendSnapshot(c, id) {
				return nil
			}
		}
	}
}

// drain discards queued notifications so a burst produces one snapshot. It
// reports false when the subscription was closed.
func drain(sub *status.Subscription) bool {
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

func (h *SessionHandlerImpl) sendSnapshot(c echo.Context, id string) bool {
	entries, err := h.sessions.Snapshot(id)
	if err != nil {
		sendSSEEvent(c, "end", map[string]string{"sessionId": id})
		return false
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	sendSSEEvent(c, "snapshot", entriesResponse{SessionID: id, Entries: entries})
	return true
}

func sendSSEEvent(c echo.Context, event string, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, jsonData)
	c.Response().Flush()
}
