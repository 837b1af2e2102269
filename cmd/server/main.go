package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/netysoft/Rag-ChatbotIA/internal/config"
	"github.com/netysoft/Rag-ChatbotIA/internal/log"
	"github.com/netysoft/Rag-ChatbotIA/internal/server"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Default config lives next to the executable
	exePath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	configPath := flag.String("config", filepath.Join(filepath.Dir(exePath), "PDFIntake.config"), "configuration file (XML, or YAML by extension)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Configure(log.Config{
		Level:   cfg.Advanced.LogLevel,
		Console: cfg.Advanced.ConsoleLogs,
	})
	logger := log.WithComponent("main")
	logger.Info().Str("config", *configPath).Str("version", Version).Msg("starting pdf intake server")

	srv, err := server.New(cfg, server.Info{Version: Version, BuildTime: BuildTime})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
