package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// cleanupParallelism bounds concurrent blob deletions per sweep.
const cleanupParallelism = 4

// CleanupService periodically removes links that expired longer than the
// retention window ago, blob first and then record.
type CleanupService struct {
	links     *LinkService
	repo      LinkRepository
	interval  time.Duration
	retention time.Duration
	done      chan struct{}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(links *LinkService, repo LinkRepository, interval, retention time.Duration) *CleanupService {
	return &CleanupService{
		links:     links,
		repo:      repo,
		interval:  interval,
		retention: retention,
		done:      make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	slog.Info("cleanup service started", "interval", cs.interval, "retention", cs.retention)

	go func() {
		defer close(cs.done)

		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		// Run once immediately on start
		cs.RunOnce(ctx)

		for {
			select {
			case <-ticker.C:
				cs.RunOnce(ctx)
			case <-ctx.Done():
				slog.Info("cleanup service stopping")
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

// RunOnce performs a single sweep and returns how many links were removed.
func (cs *CleanupService) RunOnce(ctx context.Context) int {
	cutoff := cs.links.now().Add(-cs.retention)

	expired, err := cs.repo.GetExpiredBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to get expired links", "error", err)
		return 0
	}
	if len(expired) == 0 {
		slog.Debug("no expired links to clean up")
		return 0
	}

	var cleaned, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cleanupParallelism)

	for _, link := range expired {
		g.Go(func() error {
			err := cs.links.delete(gctx, link.ID, "cleanup")
			switch {
			case err == nil:
				cleaned.Add(1)
			case errors.Is(err, ErrNotFound):
				// Removed concurrently by a request.
			default:
				failed.Add(1)
				slog.Error("failed to clean up expired link", "id", link.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("cleanup cycle complete",
		"cleaned", cleaned.Load(),
		"failed", failed.Load(),
		"total_expired", len(expired),
	)
	return int(cleaned.Load())
}
