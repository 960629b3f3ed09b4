// ABOUTME: Thread-safe TTL cache remembering recently seen event IDs.
// ABOUTME: Keeps relay subscription streams and auth nonces single-delivery.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// trackerEntry stores the timestamp and list element for a tracked ID.
type trackerEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Tracker is a thread-safe, TTL-based, size-limited record of event IDs
// already handled. Relays legitimately deliver the same event on several
// subscriptions and reconnects; the tracker collapses those repeats.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
type Tracker struct {
	mu      sync.RWMutex
	seen    map[string]*trackerEntry
	order   *list.List // IDs in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a tracker with the specified TTL and maximum size.
// A background goroutine periodically sweeps expired entries.
func New(ttl time.Duration, maxSize int) *Tracker {
	t := &Tracker{
		seen:    make(map[string]*trackerEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Seen returns true if the ID has been remembered and is not expired.
func (t *Tracker) Seen(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.seen[id]
	if !ok {
		return false
	}
	return time.Since(entry.timestamp) < t.ttl
}

// SeenOrRemember atomically checks the ID and remembers it if new.
// Returns true if the ID was already present (a duplicate), false if it
// is new and now recorded. Single lock acquisition, so two goroutines
// racing on the same ID cannot both see "new".
func (t *Tracker) SeenOrRemember(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.seen[id]
	if ok && time.Since(entry.timestamp) < t.ttl {
		return true
	}

	t.rememberLocked(id)
	return false
}

// Remember records an ID. If the tracker is at capacity, the oldest
// entry is evicted to make room.
func (t *Tracker) Remember(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rememberLocked(id)
}

// Len returns the number of live entries, expired ones included until
// the next sweep.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.seen)
}

// rememberLocked is the internal insert. Must be called with mu held.
func (t *Tracker) rememberLocked(id string) {
	now := time.Now()

	// A repeat refreshes the timestamp and moves to the back of the
	// eviction order.
	if entry, exists := t.seen[id]; exists {
		entry.timestamp = now
		t.order.MoveToBack(entry.element)
		return
	}

	if len(t.seen) >= t.maxSize {
		t.evictOldest()
	}

	elem := t.order.PushBack(id)
	t.seen[id] = &trackerEntry{
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
// O(1) via the linked list.
func (t *Tracker) evictOldest() {
	front := t.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(string)
	t.order.Remove(front)
	delete(t.seen, id)
}

// sweepLoop runs in a background goroutine, periodically dropping
// expired entries.
func (t *Tracker) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for id, entry := range t.seen {
		if now.Sub(entry.timestamp) > t.ttl {
			t.order.Remove(entry.element)
			delete(t.seen, id)
		}
	}
}

// Close stops the background sweep goroutine. Safe to call multiple times.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		close(t.done)
		t.closed = true
	}
}
