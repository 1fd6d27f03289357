package cmd

import (
	"context"
	"time"

	"pixconv/logger"
)

// recordMaxAge is how long history records are kept.
const recordMaxAge = 30 * 24 * time.Hour

// cleanupRoutine periodically cleans up old success and failure records
func cleanupRoutine(ctx context.Context, st *stores, every time.Duration) {
	logger.Infof("Cleanup routine started - will run every %v", every)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			runCleanup(st, recordMaxAge)
		}
	}
}

func runCleanup(st *stores, maxAge time.Duration) {
	logger.Debugf("Cleaning up records older than %v", maxAge)
	if n, err := st.success.CleanupOldRecords(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old success records: %v", err)
	} else {
		logger.Infof("Removed %d old success records", n)
	}
	if n, err := st.failures.CleanupOldFailures(maxAge); err != nil {
		logger.Errorf("Failed to cleanup old failure records: %v", err)
	} else {
		logger.Infof("Removed %d old failure records", n)
	}
}
