package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/alcove/internal/config"
	"github.com/fyrsmithlabs/alcove/internal/embeddings"
	"github.com/fyrsmithlabs/alcove/internal/events"
	"github.com/fyrsmithlabs/alcove/internal/httpapi"
	"github.com/fyrsmithlabs/alcove/internal/library"
	"github.com/fyrsmithlabs/alcove/internal/logging"
	"github.com/fyrsmithlabs/alcove/internal/orchestrator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alcove daemon",
	Long: `Run the alcove HTTP API until interrupted.

Configuration is read from the config file and ALCOVE_* environment
variables. Libraries and their chunks persist under the configured
data directory.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	defer provider.Close()

	publisher, err := events.Connect(cfg.Events.URL, logger)
	if err != nil {
		return fmt.Errorf("connecting event publisher: %w", err)
	}
	defer publisher.Close()

	router := library.NewRouter(cfg.Library, logger)
	defer router.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := router.Load(ctx); err != nil {
		return fmt.Errorf("loading library registry: %w", err)
	}

	engine := orchestrator.NewEngine(router, provider, nil, publisher, cfg.Engine, logger)
	server, err := httpapi.NewServer(engine, httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, logger)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	return server.Start(ctx, cfg.Server.ShutdownTimeout)
}
