package app

import (
	"context"
	"log/slog"
	"time"
)

const maxBackoff = 5 * time.Minute

// runAutosave saves the shared list every interval while it keeps changing.
// Failed saves back off exponentially. A last save runs when ctx ends.
func runAutosave(ctx context.Context, s *store, interval time.Duration, logger *slog.Logger) error {
	failures := 0
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := s.saveIfChanged(); err != nil {
				logger.Error("final autosave failed", slog.Any("error", err))
			}
			return nil
		case <-timer.C:
		}

		if _, err := s.saveIfChanged(); err != nil {
			failures++
			wait := calculateBackoff(failures, interval)
			logger.Warn("autosave failed", slog.Any("error", err), slog.Int("failures", failures), slog.Duration("retry_in", wait))
			timer.Reset(wait)
			continue
		}
		failures = 0
		timer.Reset(interval)
	}
}

// calculateBackoff doubles base per failure up to maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	wait := base
	for i := 0; i < failures; i++ {
		wait *= 2
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}
