// ABOUTME: In-memory fan-out of committed snapshots to subscribers
// ABOUTME: Non-blocking sends; a slow subscriber misses commits, never stalls them

package configstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
// Config commits are rare, so a small buffer absorbs normal bursts.
const subscriberBufferSize = 8

type watcher struct {
	mu          sync.RWMutex
	subscribers map[string]chan Snapshot
	logger      *slog.Logger
}

func newWatcher(logger *slog.Logger) *watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &watcher{
		subscribers: make(map[string]chan Snapshot),
		logger:      logger.With("component", "configwatch"),
	}
}

// subscribe registers a subscriber and returns its channel and ID.
// The subscription is cleaned up automatically when ctx is canceled.
func (w *watcher) subscribe(ctx context.Context) (<-chan Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan Snapshot, subscriberBufferSize)

	w.mu.Lock()
	w.subscribers[subID] = ch
	w.mu.Unlock()

	w.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		w.unsubscribe(subID)
	}()

	return ch, subID
}

// publish delivers a committed snapshot to every subscriber without
// blocking the committer.
func (w *watcher) publish(snap Snapshot) {
	w.mu.RLock()
	targets := make([]chan Snapshot, 0, len(w.subscribers))
	for _, ch := range w.subscribers {
		targets = append(targets, ch)
	}
	w.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- snap.Clone():
		default:
			// Subscriber buffer full; it will observe the next commit.
			w.logger.Debug("dropped snapshot for slow subscriber")
		}
	}
}

// unsubscribe removes a subscription and closes its channel.
func (w *watcher) unsubscribe(subID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch, ok := w.subscribers[subID]
	if !ok {
		return
	}
	delete(w.subscribers, subID)
	close(ch)

	w.logger.Debug("subscriber removed", "sub_id", subID)
}

// close shuts down all subscriptions.
func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for subID, ch := range w.subscribers {
		close(ch)
		delete(w.subscribers, subID)
	}
}
