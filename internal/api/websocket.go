package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/netysoft/Rag-ChatbotIA/internal/log"
	"github.com/netysoft/Rag-ChatbotIA/internal/models"
	"github.com/netysoft/Rag-ChatbotIA/internal/status"
)

// WebSocket message types
const (
	// Client -> Server messages
	MsgTypePing = "ping"

	// Server -> Client messages
	MsgTypeSnapshot = "snapshot"
	MsgTypeEnded    = "ended"
	MsgTypeError    = "error"
	MsgTypePong     = "pong"
)

const wsWriteWait = 10 * time.Second

// WSMessage is the envelope of every WebSocket frame.
type WSMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	Entries   []models.Entry `json:"entries,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// WebSocketHandler pushes entry snapshots of one session over a WebSocket.
type WebSocketHandler struct {
	sessions     SessionManager
	upgrader     websocket.Upgrader
	maxReadBytes int64
	logger       zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. maxMessageKB caps
// inbound frames; zero uses 64KB.
func NewWebSocketHandler(sessions SessionManager, maxMessageKB int) *WebSocketHandler {
	if maxMessageKB <= 0 {
		maxMessageKB = 64
	}
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		maxReadBytes: int64(maxMessageKB) * 1024,
		logger:       log.WithComponent("websocket"),
	}
}

// HandleSessionSocket upgrades the connection and streams snapshots until the
// client disconnects or the session ends.
func (wsh *WebSocketHandler) HandleSessionSocket(c echo.Context) error {
	id := c.Param("sessionId")
	sub, err := wsh.sessions.Subscribe(id, status.DefaultSubscriberBuffer)
	if err != nil {
		return sessionError(err, id)
	}
	defer sub.Close()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.maxReadBytes)

	logger := wsh.logger.With().Str(log.FieldSession, id).Logger()
	logger.Debug().Msg("client connected")

	// Reader: answers pings and notices disconnects. All writes happen on this
	// goroutine's caller through the pongs channel.
	pongs := make(chan struct{}, 1)
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug().Err(err).Msg("connection error")
				}
				return
			}
			if msg.Type == MsgTypePing {
				select {
				case pongs <- struct{}{}:
				default:
				}
			}
		}
	}()

	if !wsh.sendSnapshot(ws, id) {
		return nil
	}

	for {
		select {
		case <-gone:
			logger.Debug().Msg("client disconnected")
			return nil
		case <-pongs:
			if wsh.send(ws, WSMessage{Type: MsgTypePong}) != nil {
				return nil
			}
		case _, ok := <-sub.C():
			if !ok || !drain(sub) {
				_ = wsh.send(ws, WSMessage{Type: MsgTypeEnded, SessionID: id})
				wsh.closeNormally(ws)
				return nil
			}
			if !wsh.sendSnapshot(ws, id) {
				return nil
			}
		}
	}
}

func (wsh *WebSocketHandler) sendSnapshot(ws *websocket.Conn, id string) bool {
	entries, err := wsh.sessions.Snapshot(id)
	if err != nil {
		_ = wsh.send(ws, WSMessage{Type: MsgTypeEnded, SessionID: id})
		wsh.closeNormally(ws)
		return false
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return wsh.send(ws, WSMessage{Type: MsgTypeSnapshot, SessionID: id, Entries: entries}) == nil
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.WriteJSON(msg)
}

func (wsh *WebSocketHandler) closeNormally(ws *websocket.Conn) {
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
		time.Now().Add(wsWriteWait))
}
