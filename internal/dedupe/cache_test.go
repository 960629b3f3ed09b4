// ABOUTME: Tests for the event ID tracker.
// ABOUTME: Validates TTL expiration, size limits, eviction order, and concurrency safety.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Seen_Unknown(t *testing.T) {
	tracker := New(5*time.Minute, 100)
	defer tracker.Close()

	assert.False(t, tracker.Seen("e1f2"))
}

func TestTracker_Seen_Remembered(t *testing.T) {
	tracker := New(5*time.Minute, 100)
	defer tracker.Close()

	tracker.Remember("e1f2")
	assert.True(t, tracker.Seen("e1f2"))
}

func TestTracker_Seen_Expired(t *testing.T) {
	tracker := New(10*time.Millisecond, 100)
	defer tracker.Close()

	tracker.Remember("e1f2")
	assert.True(t, tracker.Seen("e1f2"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, tracker.Seen("e1f2"))
}

func TestTracker_Remember_RefreshesTimestamp(t *testing.T) {
	tracker := New(50*time.Millisecond, 100)
	defer tracker.Close()

	tracker.Remember("e1")

	// Refresh partway through the TTL, then wait past the original expiry.
	time.Sleep(30 * time.Millisecond)
	tracker.Remember("e1")
	time.Sleep(30 * time.Millisecond)

	assert.True(t, tracker.Seen("e1"), "refresh should extend the TTL")
}

func TestTracker_EvictionOrder(t *testing.T) {
	tracker := New(5*time.Minute, 3)
	defer tracker.Close()

	tracker.Remember("e1")
	tracker.Remember("e2")
	tracker.Remember("e3")

	// Refreshing e1 moves it to the back of the eviction order, so the
	// next insert at capacity should drop e2 instead.
	tracker.Remember("e1")
	tracker.Remember("e4")

	assert.True(t, tracker.Seen("e1"))
	assert.False(t, tracker.Seen("e2"), "oldest entry should be evicted")
	assert.True(t, tracker.Seen("e3"))
	assert.True(t, tracker.Seen("e4"))
}

func TestTracker_SeenOrRemember(t *testing.T) {
	tracker := New(5*time.Minute, 100)
	defer tracker.Close()

	assert.False(t, tracker.SeenOrRemember("e1"), "first sighting is new")
	assert.True(t, tracker.SeenOrRemember("e1"), "second sighting is a duplicate")
	assert.True(t, tracker.Seen("e1"))
}

func TestTracker_SeenOrRemember_Expired(t *testing.T) {
	tracker := New(10*time.Millisecond, 100)
	defer tracker.Close()

	assert.False(t, tracker.SeenOrRemember("e1"))
	assert.True(t, tracker.SeenOrRemember("e1"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, tracker.SeenOrRemember("e1"), "expired entry counts as new")
}

func TestTracker_SeenOrRemember_Atomic(t *testing.T) {
	tracker := New(5*time.Minute, 100)
	defer tracker.Close()

	const numGoroutines = 100

	// All goroutines race on the same ID; exactly one may see it as new.
	var winners int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			if !tracker.SeenOrRemember("contested") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), winners, "exactly one goroutine should see the ID as new")
}

func TestTracker_Sweep(t *testing.T) {
	// The sweep goroutine ticks every minute, so drive it directly.
	tracker := New(10*time.Millisecond, 100)
	defer tracker.Close()

	tracker.Remember("e1")
	tracker.Remember("e2")
	time.Sleep(20 * time.Millisecond)

	tracker.sweep()
	assert.Equal(t, 0, tracker.Len(), "sweep should drop expired entries")
}

func TestTracker_Len(t *testing.T) {
	tracker := New(5*time.Minute, 100)
	defer tracker.Close()

	assert.Equal(t, 0, tracker.Len())
	tracker.Remember("e1")
	tracker.Remember("e2")
	tracker.Remember("e1")
	assert.Equal(t, 2, tracker.Len())
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := New(5*time.Minute, 1000)
	defer tracker.Close()

	const numGoroutines = 50
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(n int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				id := fmt.Sprintf("e%d-%d", n%10, j%20)
				tracker.Remember(id)
				tracker.Seen(id)
				tracker.SeenOrRemember(id)
			}
		}(i)
	}

	wg.Wait()

	tracker.Remember("after")
	assert.True(t, tracker.Seen("after"))
}

func TestTracker_Close(t *testing.T) {
	tracker := New(5*time.Minute, 100)

	tracker.Remember("e1")
	assert.True(t, tracker.Seen("e1"))

	// Repeated closes must not panic.
	tracker.Close()
	tracker.Close()
}
