package estimate

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
)

// Reaper removes job artifacts. Paths it fails to remove are remembered and
// retried by Retry, which the sweeper calls periodically.
type Reaper struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewReaper() *Reaper {
	return &Reaper{pending: make(map[string]struct{})}
}

// CleanAll attempts to remove every path. Missing paths are not errors and a
// failure does not stop the remaining removals.
func (r *Reaper) CleanAll(paths []string) []error {
	var errs []error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			slog.Error("failed to remove artifact", "path", path, "error", err)
			errs = append(errs, fmt.Errorf("error removing %s: %w", path, err))
			r.remember(path)
			continue
		}
		r.forget(path)
	}
	return errs
}

func (r *Reaper) remember(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[path] = struct{}{}
}

func (r *Reaper) forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, path)
}

// Pending returns the paths whose removal previously failed.
func (r *Reaper) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.pending))
	for path := range r.pending {
		paths = append(paths, path)
	}
	return paths
}

// Retry re-attempts removal of pending paths and returns how many remain.
func (r *Reaper) Retry() int {
	paths := r.Pending()
	if len(paths) == 0 {
		return 0
	}
	errs := r.CleanAll(paths)
	if len(errs) > 0 {
		slog.Warn("artifacts still pending removal", "count", len(errs))
	}
	return len(errs)
}

// Scope collects the artifacts of one job and removes them when closed.
type Scope struct {
	reaper *Reaper
	jobId  uuid.UUID

	mu     sync.Mutex
	paths  []string
	closed bool
	errs   []error
}

func (r *Reaper) NewScope(jobId uuid.UUID) *Scope {
	return &Scope{reaper: r, jobId: jobId}
}

// Track registers paths for removal. Tracking after Close removes the paths
// immediately.
func (s *Scope) Track(paths ...string) {
	s.mu.Lock()
	if !s.closed {
		s.paths = append(s.paths, paths...)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.reaper.CleanAll(paths)
}

func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Close removes every tracked path, in reverse order of registration. Only
// the first call does any work; later calls return the same errors.
func (s *Scope) Close() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.errs
	}
	s.closed = true

	reversed := make([]string, len(s.paths))
	for i, path := range s.paths {
		reversed[len(s.paths)-1-i] = path
	}

	s.errs = s.reaper.CleanAll(reversed)
	if len(s.errs) > 0 {
		slog.Error("job cleanup incomplete", "job_id", s.jobId, "reason", ReasonCleanupFailure, "failed", len(s.errs))
	}
	return s.errs
}
