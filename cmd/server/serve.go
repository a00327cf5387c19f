package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sharelink/internal/server/api"
	"sharelink/internal/server/config"
	"sharelink/internal/server/database"
	"sharelink/internal/server/service"
	"sharelink/internal/server/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

// repository is what the services need from a link store.
type repository interface {
	service.LinkRepository
	service.UserRepository
}

// openRepository connects the backend selected by cfg.Repository. The
// returned func releases it.
func openRepository(ctx context.Context, cfg *config.Config) (repository, func(), error) {
	switch cfg.Repository {
	case config.RepositoryBadger:
		repo, err := database.NewBadgerRepository(cfg.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				slog.Error("failed to close badger repository", "error", err)
			}
		}, nil
	default:
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, err
		}
		return database.NewRepository(db), db.Close, nil
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"repository", cfg.Repository,
		"storage_type", cfg.StorageType,
		"max_file_size", cfg.MaxFileSize,
		"expired_retention", cfg.ExpiredRetention,
	)

	ctx := context.Background()
	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open repository: %w", err)
	}
	defer closeRepo()

	// Initialize storage
	store, err := storage.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}
	if err := store.EnsureReady(ctx); err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	slog.Info("blob store initialized", "type", cfg.StorageType)

	// Services
	links := service.NewLinkService(repo, store, cfg.MaxFileSize)
	access := service.NewAccessEngine(repo)
	previewer := service.NewPreviewer(store, service.PreviewerConfig{
		BaseURL:         cfg.BaseURL,
		OfficeViewerURL: cfg.OfficeViewerURL,
		MaxTextBytes:    cfg.TextPreviewMaxBytes,
		CacheSize:       cfg.PreviewCacheSize,
		CacheTTL:        cfg.PreviewCacheTTL,
	})
	users := service.NewUserService(repo)

	// Start cleanup service
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	cleanup := service.NewCleanupService(links, repo, cfg.CleanupInterval, cfg.ExpiredRetention)
	cleanup.Start(cleanupCtx)

	// Setup HTTP router
	handler := api.NewHandler(links, access, previewer, users, repo)
	e := api.SetupRouter(handler, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop cleanup service
	cleanupCancel()
	cleanup.Wait()

	slog.Info("server exited cleanly")
	return nil
}
