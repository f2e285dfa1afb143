package app

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/five82/immersive/internal/tasks"
	"github.com/five82/immersive/state"
)

// store keeps the tasks file and the shared list in step. It remembers the
// last version it wrote or read so autosave and reload skip no-op work.
type store struct {
	path     string
	provider *state.Provider[tasks.State, tasks.Actions]
	logger   *slog.Logger

	mu    sync.Mutex
	saved uint64
}

func newStore(path string, provider *state.Provider[tasks.State, tasks.Actions], logger *slog.Logger) *store {
	return &store{
		path:     path,
		provider: provider,
		logger:   logger,
		saved:    provider.Version(),
	}
}

// Save writes snap to the tasks file.
func (s *store) Save(snap tasks.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := tasks.Save(s.path, snap); err != nil {
		return err
	}
	s.saved = s.provider.Version()
	s.logger.Info("tasks saved", slog.String("path", s.path), slog.Int("tasks", len(snap.Tasks)))
	return nil
}

// saveIfChanged writes the shared list if it moved since the last save or
// reload. It reports whether it wrote.
func (s *store) saveIfChanged() (bool, error) {
	snap, version := s.provider.Channel().Load()
	s.mu.Lock()
	defer s.mu.Unlock()
	if version == s.saved {
		return false, nil
	}
	if err := tasks.Save(s.path, snap); err != nil {
		return false, err
	}
	s.saved = version
	s.logger.Debug("tasks autosaved", slog.Uint64("version", version))
	return true, nil
}

// Reload replaces the shared list with the tasks file when they differ. It
// is the watcher's handler, so it also sees the program's own saves.
func (s *store) Reload(ctx context.Context) error {
	next, err := tasks.Load(s.path)
	if err != nil {
		return err
	}
	if reflect.DeepEqual(next, s.provider.Snapshot()) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider.Actions().ReplaceAll(next)
	s.saved = s.provider.Version()
	s.logger.InfoContext(ctx, "tasks reloaded", slog.String("path", s.path), slog.Int("tasks", len(next.Tasks)))
	return nil
}
