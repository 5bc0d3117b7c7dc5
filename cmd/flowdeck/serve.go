package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowdeck/flowdeck/internal/ai"
	"github.com/flowdeck/flowdeck/internal/archive"
	"github.com/flowdeck/flowdeck/internal/config"
	"github.com/flowdeck/flowdeck/internal/engine"
	"github.com/flowdeck/flowdeck/internal/jobs"
	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/internal/web"
	"github.com/flowdeck/flowdeck/pkg/auth"
	"github.com/flowdeck/flowdeck/pkg/session"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the flowdeck server",
		Long: `Start the flowdeck server.

Configuration is read from flowdeck.json in the working directory,
then overridden by FLOWDECK_* environment variables and flags.

Examples:
  flowdeck serve
  flowdeck serve --addr=:8080
  flowdeck serve --config=/etc/flowdeck/flowdeck.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, configPath, verbose)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from flowdeck.json)")
	cmd.Flags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "Configuration file path")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func runServe(addr, configPath string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	sessions, closeSessions, err := buildSessions(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	if cfg.Auth.ServiceURL == "" {
		return fmt.Errorf("auth.service_url is not configured")
	}
	gate := auth.NewGate(sessions, auth.NewRemoteProvider(cfg.Auth.ServiceURL), auth.WithLogger(logger))

	generator, err := buildGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	var eng *engine.Client
	if cfg.Engine.URL != "" {
		eng = engine.NewClient(cfg.Engine.URL, cfg.Engine.Key)
	} else {
		logger.Warn("engine.url not configured, engine events disabled")
	}

	var arch *archive.S3Store
	if cfg.Archive.Bucket != "" {
		arch, err = archive.New(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix, cfg.Archive.Region)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	// The dispatcher reports completed jobs back to the server so live
	// dashboards refresh; the server does not exist yet, hence the
	// indirection through the closure.
	var server *web.Server
	handler := jobs.NewGenerateHandler(db, generator, eng, arch, logger)
	dispatcher := jobs.NewDispatcher(handler,
		jobs.WithWorkers(cfg.Jobs.Workers),
		jobs.WithQueueSize(cfg.Jobs.QueueSize),
		jobs.WithLogger(logger),
		jobs.OnDone(func(r jobs.Result) { server.HandleJobResult(r) }),
	)

	server = web.New(web.Options{
		Config:   cfg,
		Logger:   logger,
		Store:    db,
		Sessions: sessions,
		Gate:     gate,
		Jobs:     dispatcher,
	})

	dispatcher.Start(ctx)
	defer dispatcher.Close()

	logger.Info("flowdeck serving", "addr", cfg.Server.Addr, "version", version)
	return server.Start(ctx)
}

// buildSessions constructs the configured session backend.
func buildSessions(ctx context.Context, cfg *config.Config, db *store.DB) (*session.Manager, func(), error) {
	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	opts := []session.ManagerOption{
		session.WithTTL(ttl),
		session.WithSecureCookies(cfg.Auth.SecureCookies),
	}

	switch cfg.Session.Backend {
	case "sql":
		sqlStore := session.NewSQLStore(db.Handle())
		if err := sqlStore.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate sessions: %w", err)
		}
		return session.NewManager(sqlStore, opts...), func() { sqlStore.Close() }, nil
	default:
		memStore := session.NewMemoryStore()
		return session.NewManager(memStore, opts...), func() { memStore.Close() }, nil
	}
}

// buildGenerator constructs the Gemini client from the configured key env var.
func buildGenerator(ctx context.Context, cfg *config.Config) (ai.Generator, error) {
	apiKey := os.Getenv(cfg.AI.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("AI API key missing: set %s", cfg.AI.APIKeyEnv)
	}
	generator, err := ai.NewGemini(ctx, apiKey, cfg.AI.Model)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return generator, nil
}
