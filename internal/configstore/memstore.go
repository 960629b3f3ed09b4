// ABOUTME: In-memory Store for tests and the fake relay binary

package configstore

import (
	"context"
	"log/slog"
	"sync"
)

// MemStore is a Store without persistence. Same commit and notification
// semantics as the SQLite store; snapshots vanish with the process.
type MemStore struct {
	watcher *watcher

	mu      sync.Mutex
	current Snapshot
}

// NewMem returns an empty in-memory store.
func NewMem(logger *slog.Logger) *MemStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemStore{watcher: newWatcher(logger)}
}

func (s *MemStore) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

func (s *MemStore) Update(ctx context.Context, fn Updater) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.current.Clone())
	s.current = next
	s.watcher.publish(next)
	return next.Clone(), nil
}

func (s *MemStore) Subscribe(ctx context.Context) (<-chan Snapshot, string) {
	return s.watcher.subscribe(ctx)
}

func (s *MemStore) Unsubscribe(id string) {
	s.watcher.unsubscribe(id)
}

func (s *MemStore) Close() error {
	s.watcher.close()
	return nil
}
