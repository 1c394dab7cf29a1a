package history

import (
	"context"
	"time"
)

// CleanerLogger is the logging interface the cleaner reports through.
type CleanerLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Cleaner periodically prunes points past the retention window.
type Cleaner struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    CleanerLogger
}

// NewCleaner creates a cleaner that removes points older than
// retentionDays, checking every interval.
func NewCleaner(store Store, retentionDays int, interval time.Duration, logger CleanerLogger) *Cleaner {
	return &Cleaner{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks, pruning on each tick until the context is cancelled.
// An immediate pass runs at startup so a long-stopped system catches up
// without waiting a full interval.
func (c *Cleaner) Run(ctx context.Context) {
	c.prune(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.prune(ctx)
		}
	}
}

func (c *Cleaner) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-c.retention)

	removed, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("history retention prune failed", "error", err)
		return
	}
	if removed > 0 {
		c.logger.Info("pruned history points",
			"removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	}
}
