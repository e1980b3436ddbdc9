package estimate

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweeper reclaims artifacts orphaned by crashed processes and retries
// removals the reaper could not complete.
type Sweeper struct {
	Reaper *Reaper
	Roots  []string

	// MaxAge must exceed the longest a live job can hold its files, otherwise
	// the sweep races in-flight requests.
	MaxAge time.Duration
}

// Sweep removes every direct child of the roots older than MaxAge and returns
// how many were removed.
func (s *Sweeper) Sweep(now time.Time) int {
	removed := 0
	for _, root := range s.Roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Error("failed to list sweep root", "root", root, "error", err)
			}
			continue
		}

		var stale []string
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) > s.MaxAge {
				stale = append(stale, filepath.Join(root, entry.Name()))
			}
		}
		if len(stale) == 0 {
			continue
		}

		errs := s.Reaper.CleanAll(stale)
		removed += len(stale) - len(errs)
		slog.Info("swept stale job artifacts", "root", root, "removed", len(stale)-len(errs), "failed", len(errs))
	}

	if remaining := s.Reaper.Retry(); remaining > 0 {
		slog.Warn("sweep left artifacts behind", "pending", remaining)
	}
	return removed
}

// Run sweeps once immediately, then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.Sweep(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
