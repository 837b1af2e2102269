// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/netysoft/Rag-ChatbotIA/internal/log"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions       SessionManager
	Spool          SpoolUsage
	Version        string
	MaxUploadBytes int64
	SubmitRate     float64
	SubmitBurst    int
	WSMaxMessageKB int
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Session   SessionHandler
	WebSocket *WebSocketHandler
	Limiter   *IPRateLimiter
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions, deps.Spool),
		Session:   NewSessionHandler(deps.Sessions, deps.MaxUploadBytes),
		WebSocket: NewWebSocketHandler(deps.Sessions, deps.WSMaxMessageKB),
	}
	if deps.SubmitRate > 0 {
		h.Limiter = NewIPRateLimiter(deps.SubmitRate, deps.SubmitBurst, 10*time.Minute)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session routes
	sessions := e.Group("/api/sessions")
	sessions.POST("", handlers.Session.HandleStartSession)
	sessions.GET("/:sessionId", handlers.Session.HandleGetSession)
	sessions.DELETE("/:sessionId", handlers.Session.HandleEndSession)
	sessions.GET("/:sessionId/entries", handlers.Session.HandleGetEntries)
	sessions.GET("/:sessionId/entries/msgpack", handlers.Session.HandleGetEntriesMsgpack)
	sessions.GET("/:sessionId/history", handlers.Session.HandleGetHistory)
	sessions.GET("/:sessionId/stream", handlers.Session.HandleEntriesStream)

	var submitMiddleware []echo.MiddlewareFunc
	if handlers.Limiter != nil {
		submitMiddleware = append(submitMiddleware, RateLimitMiddleware(handlers.Limiter))
	}
	sessions.POST("/:sessionId/files", handlers.Session.HandleSubmitFiles, submitMiddleware...)

	RegisterWebSocketRoutes(e, handlers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/sessions/:sessionId", handlers.WebSocket.HandleSessionSocket)
}

// MiddlewareOptions configures SetupMiddleware.
type MiddlewareOptions struct {
	EnableCORS     bool
	AllowOrigins   string
	BodyLimit      string
	RequestLogging bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())

	if opts.RequestLogging {
		e.Use(RequestLogger(log.WithComponent("http")))
	}

	if opts.EnableCORS {
		origins := []string{"*"}
		if opts.AllowOrigins != "" && opts.AllowOrigins != "*" {
			origins = strings.Split(opts.AllowOrigins, ",")
			for i := range origins {
				origins[i] = strings.TrimSpace(origins[i])
			}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogUserAgent: false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = logger.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
