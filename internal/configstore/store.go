// ABOUTME: Store interface and the corrupt-cache sentinel
// ABOUTME: Update is the single mutation entry point; updaters are pure

package configstore

import (
	"context"
	"errors"
)

// ErrConfigCorrupt means the persisted snapshot blob failed validation.
// The store recovers by falling back to the empty snapshot; the error
// exists for logging and diagnostics, never as a fatal condition.
var ErrConfigCorrupt = errors.New("persisted config corrupt")

// Updater maps the current snapshot to the next one. Updaters must be
// pure: no IO, no retained references to the input. The store clones
// before and copies after, so an updater composes with concurrent
// updaters regardless of ordering.
type Updater func(Snapshot) Snapshot

// Store is the owned configuration cell. Implementations serialize
// Update calls; readers always observe the latest committed value.
type Store interface {
	// Get returns a copy of the current snapshot.
	Get() Snapshot

	// Update applies fn to the current snapshot, persists the result,
	// notifies subscribers, and returns the committed value. Mutation
	// and persistence happen as one step under the store's lock.
	Update(ctx context.Context, fn Updater) (Snapshot, error)

	// Subscribe registers for committed snapshots. The channel receives
	// every commit after registration; slow consumers miss intermediate
	// values rather than blocking commits. The subscription ends when
	// ctx is canceled or Unsubscribe is called with the returned ID.
	Subscribe(ctx context.Context) (<-chan Snapshot, string)

	// Unsubscribe removes a subscription and closes its channel.
	Unsubscribe(id string)

	// Close releases resources. The store must not be used afterwards.
	Close() error
}
