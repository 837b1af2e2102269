// Package server assembles the intake HTTP service from an AppConfig.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/netysoft/Rag-ChatbotIA/internal/api"
	"github.com/netysoft/Rag-ChatbotIA/internal/config"
	"github.com/netysoft/Rag-ChatbotIA/internal/ingest"
	"github.com/netysoft/Rag-ChatbotIA/internal/journal"
	"github.com/netysoft/Rag-ChatbotIA/internal/log"
	"github.com/netysoft/Rag-ChatbotIA/internal/session"
	"github.com/netysoft/Rag-ChatbotIA/internal/storage"
	"github.com/netysoft/Rag-ChatbotIA/internal/upload"
	"github.com/netysoft/Rag-ChatbotIA/internal/web"
)

// ShutdownTimeout bounds graceful shutdown once the run context is done.
const ShutdownTimeout = 15 * time.Second

// Info describes the running build.
type Info struct {
	Version   string
	BuildTime string
}

// Server is the configured HTTP service and the session manager behind it.
type Server struct {
	cfg      *config.AppConfig
	info     Info
	echo     *echo.Echo
	http     *http.Server
	sessions *session.Manager
	logger   zerolog.Logger
}

// New wires storage, journal, ingestion client, sessions and routes from cfg.
func New(cfg *config.AppConfig, info Info) (*Server, error) {
	logger := log.WithComponent("server")

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	spool, err := storage.NewLocalStore(cfg.GetSpoolDir())
	if err != nil {
		return nil, fmt.Errorf("initializing spool: %w", err)
	}

	client, err := ingest.NewHTTPClient(ingest.Options{
		Endpoint:  cfg.Ingestion.Endpoint,
		FieldName: cfg.Ingestion.FieldName,
		Timeout:   cfg.RequestTimeout(),
	})
	if err != nil {
		return nil, err
	}

	var j journal.Journal = journal.NopJournal{}
	if cfg.Advanced.EnableJournal {
		dj, err := journal.OpenDuckJournal(cfg.Storage.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		j = dj
	}

	stagger := cfg.StaggerDelay()
	if stagger == 0 {
		stagger = upload.NoStagger
	}
	sessions, err := session.NewManager(session.Options{
		Client:          client,
		Spool:           spool,
		Journal:         j,
		DefaultClientID: cfg.Ingestion.DefaultClientID,
		AcceptedType:    cfg.Ingestion.AcceptedType,
		StaggerDelay:    stagger,
		MaxSessions:     cfg.Sessions.MaxSessions,
	})
	if err != nil {
		_ = j.Close()
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareOptions{
		EnableCORS:     cfg.Server.EnableCORS,
		AllowOrigins:   cfg.Server.AllowOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
		RequestLogging: cfg.Advanced.EnableRequestLogging,
	})
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Sessions:       sessions,
		Spool:          spool,
		Version:        info.Version,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		SubmitRate:     cfg.Sessions.SubmitRatePerSecond,
		SubmitBurst:    cfg.Sessions.SubmitBurst,
		WSMaxMessageKB: cfg.Advanced.WebSocketMaxMessageSize,
	}))

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn().Err(err).Msg("failed to register dashboard routes")
		}
	}

	hs := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	return &Server{
		cfg:      cfg,
		info:     info,
		echo:     e,
		http:     hs,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// Echo returns the router, mostly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		_ = s.sessions.Close(ctx)
		return fmt.Errorf("listening on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln, runs the session janitor, and shuts both
// down gracefully once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Str("version", s.info.Version).
			Str("build_time", s.info.BuildTime).
			Str("ingest_endpoint", s.cfg.Ingestion.Endpoint).
			Str("data_dir", s.cfg.GetDataDir()).
			Msg("server listening")
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return s.sessions.RunJanitor(gctx, s.cfg.CleanupInterval(), s.cfg.SessionTimeout())
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)
		if cerr := s.sessions.Close(shutdownCtx); cerr != nil && err == nil {
			err = cerr
		}
		return err
	})

	return g.Wait()
}
