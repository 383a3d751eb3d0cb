package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"contextflow/api/internal/app"
	"contextflow/api/internal/backup"
	"contextflow/api/internal/config"
	"contextflow/api/internal/gitrepo"
	"contextflow/api/internal/logger"
	"contextflow/api/internal/search"
	"contextflow/api/internal/session"
	"contextflow/api/internal/store"
)

var migrateFlags struct {
	down bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "contextflow-api",
		Short:        "ContextFlow collaborative project API",
		SilenceUsage: true,
		RunE:         runServe,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply every pending migration from MIGRATIONS_DIR.

With --down all migrations are rolled back in reverse order.`,
		RunE: runMigrate,
	}
	migrate.Flags().BoolVar(&migrateFlags.down, "down", false, "roll back all migrations")

	reindex := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the Meilisearch indexes from the database",
		RunE:  runReindex,
	}

	root.AddCommand(serve, migrate, reindex)
	return root
}

// bootstrap loads config, builds the logger and opens the database.
func bootstrap(ctx context.Context) (config.Config, *slog.Logger, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	log := logger.New(cfg.LogLevel)
	db, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return cfg, log, db, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrateFlags.down {
		return store.RollbackMigrations(ctx, db, cfg.MigrationsDir, log)
	}
	return store.ApplyMigrations(ctx, db, cfg.MigrationsDir, log)
}

func runReindex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return errors.New("MEILI_URL is not set")
	}
	meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
	defer meiliClient.Close()
	if !meiliClient.Healthy() {
		return fmt.Errorf("meilisearch at %s is unavailable", cfg.MeiliURL)
	}
	pgfts := search.NewPgFTS(db)
	return search.NewService(meiliClient, pgfts, log).ReindexFrom(ctx, pgfts)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, log, db, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, log); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return fmt.Errorf("failed to create repos dir: %w", err)
	}

	docs, err := session.NewRedisStore(cfg.RedisURL, cfg.DocumentTTL)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer docs.Close()

	pgfts := search.NewPgFTS(db)
	var indexer search.Indexer
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
		indexer = meiliClient
	}
	searchService := search.NewService(indexer, pgfts, log)
	if err := searchService.ReindexFrom(ctx, pgfts); err != nil {
		log.Warn("initial search reindex failed", logger.Error(err))
	}

	var backups *backup.Minio
	if cfg.Backup.Enabled() {
		backups, err = backup.NewMinio(ctx, cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("backup store: %w", err)
		}
	}

	service := app.New(app.Dependencies{
		Store:   store.NewPostgresStore(db),
		Docs:    docs,
		Git:     gitrepo.New(cfg.ReposDir),
		Search:  searchService,
		Backups: backups,
		Logger:  log,
	})
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("ContextFlow API listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", logger.Error(err))
	}
	log.Info("ContextFlow API stopped")
	return nil
}
