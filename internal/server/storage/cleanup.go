package storage

import (
	"context"
	"log/slog"
	"time"

	"convertly/internal/server/database"
)

// cleanupBatchSize bounds how many entries one query fetches.
const cleanupBatchSize = 100

// PendingDeletions is the queue of staged files waiting to be removed.
type PendingDeletions interface {
	DuePendingDeletions(ctx context.Context, now time.Time, limit int) ([]*database.PendingDeletion, error)
	DeletePendingDeletion(ctx context.Context, id int64) error
}

// CleanupService periodically removes staged uploads whose retention
// delay has passed.
type CleanupService struct {
	pending  PendingDeletions
	store    Store
	interval time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(pending PendingDeletions, store Store, interval time.Duration) *CleanupService {
	return &CleanupService{
		pending:  pending,
		store:    store,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	slog.Info("cleanup service started", "interval", cs.interval)

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		// Run once immediately on start so entries left by a previous
		// process are not kept for another interval.
		cs.runCleanup(ctx)

		for {
			select {
			case <-ticker.C:
				cs.runCleanup(ctx)
			case <-ctx.Done():
				slog.Info("cleanup service stopping")
				close(cs.done)
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

func (cs *CleanupService) runCleanup(ctx context.Context) {
	var cleaned, failed int
	// Failed entries stay queued, so skip them for the rest of this cycle.
	skip := make(map[int64]bool)

	for ctx.Err() == nil {
		due, err := cs.pending.DuePendingDeletions(ctx, cs.now(), cleanupBatchSize+len(skip))
		if err != nil {
			slog.Error("failed to get pending deletions", "error", err)
			return
		}

		progressed := false
		for _, entry := range due {
			if skip[entry.ID] {
				continue
			}
			progressed = true

			if err := cs.store.Delete(entry.Path); err != nil {
				slog.Error("failed to delete staged file",
					"path", entry.Path,
					"error", err,
				)
				skip[entry.ID] = true
				failed++
				continue
			}

			if err := cs.pending.DeletePendingDeletion(ctx, entry.ID); err != nil {
				slog.Error("failed to delete pending entry",
					"id", entry.ID,
					"error", err,
				)
				skip[entry.ID] = true
				failed++
				continue
			}

			cleaned++
		}

		if !progressed || len(due) < cleanupBatchSize+len(skip) {
			break
		}
	}

	if cleaned > 0 || failed > 0 {
		slog.Info("cleanup cycle complete",
			"cleaned", cleaned,
			"failed", failed,
		)
	}
}
