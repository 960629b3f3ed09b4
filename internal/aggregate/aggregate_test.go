// ABOUTME: Tests for concurrent aggregation, dedup merge, and failure absorption

package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/relay"
)

// fakeEndpoint serves canned events, optionally failing or stalling.
type fakeEndpoint struct {
	url    string
	events []*event.Event
	err    error
	delay  time.Duration // honors ctx while waiting
	stall  time.Duration // ignores ctx entirely
}

func (f *fakeEndpoint) URL() string { return f.url }

func (f *fakeEndpoint) Query(ctx context.Context, filters []event.Filter) ([]*event.Event, error) {
	if f.stall > 0 {
		time.Sleep(f.stall)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []*event.Event
	for _, ev := range f.events {
		for _, flt := range filters {
			if flt.Matches(ev) {
				out = append(out, ev)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEndpoint) Publish(ctx context.Context, ev *event.Event) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ev(id string, createdAt int64) *event.Event {
	return &event.Event{ID: id, CreatedAt: createdAt, Kind: event.KindNote}
}

func ids(events []*event.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestAggregator_Query_DedupesAcrossRelays(t *testing.T) {
	a := New(discardLogger(), time.Second)

	A, B, C := ev("aa", 1), ev("bb", 2), ev("cc", 3)
	endpoints := []relay.Endpoint{
		&fakeEndpoint{url: "wss://one", events: []*event.Event{A, B}},
		&fakeEndpoint{url: "wss://two", events: []*event.Event{B, C}},
		&fakeEndpoint{url: "wss://three", events: []*event.Event{B}},
	}

	merged, err := a.Query(context.Background(), endpoints, []event.Filter{{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb", "cc"}, ids(merged))
}

func TestAggregator_Query_EndpointFailureAbsorbed(t *testing.T) {
	a := New(discardLogger(), time.Second)

	endpoints := []relay.Endpoint{
		&fakeEndpoint{url: "wss://dead", err: errors.New("connection refused")},
		&fakeEndpoint{url: "wss://alive", events: []*event.Event{ev("aa", 1)}},
	}

	merged, err := a.Query(context.Background(), endpoints, []event.Filter{{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"aa"}, ids(merged))
}

func TestAggregator_Query_EndpointTimeoutAbsorbed(t *testing.T) {
	a := New(discardLogger(), 30*time.Millisecond)

	endpoints := []relay.Endpoint{
		&fakeEndpoint{url: "wss://slow", delay: 500 * time.Millisecond, events: []*event.Event{ev("slow", 1)}},
		&fakeEndpoint{url: "wss://fast", events: []*event.Event{ev("fast", 1)}},
	}

	start := time.Now()
	merged, err := a.Query(context.Background(), endpoints, []event.Filter{{}})
	require.NoError(t, err)

	assert.Equal(t, []string{"fast"}, ids(merged))
	assert.Less(t, time.Since(start), 400*time.Millisecond,
		"join should settle at the per-endpoint timeout, not the slow relay's schedule")
}

func TestAggregator_Query_AllEndpointsFail(t *testing.T) {
	a := New(discardLogger(), time.Second)

	endpoints := []relay.Endpoint{
		&fakeEndpoint{url: "wss://one", err: errors.New("boom")},
		&fakeEndpoint{url: "wss://two", err: errors.New("boom")},
	}

	merged, err := a.Query(context.Background(), endpoints, []event.Filter{{}})
	require.NoError(t, err, "total relay failure is still a partial (empty) result")
	assert.Empty(t, merged)
}

func TestAggregator_Query_NoEndpoints(t *testing.T) {
	a := New(discardLogger(), time.Second)

	merged, err := a.Query(context.Background(), nil, []event.Filter{{}})
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func TestAggregator_Query_CallerCancellation(t *testing.T) {
	a := New(discardLogger(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	endpoints := []relay.Endpoint{
		&fakeEndpoint{url: "wss://stuck", stall: 500 * time.Millisecond},
	}

	_, err := a.Query(ctx, endpoints, []event.Filter{{}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregator_Query_AppliesFilters(t *testing.T) {
	a := New(discardLogger(), time.Second)

	note := &event.Event{ID: "aa", Kind: event.KindNote, CreatedAt: 1}
	profile := &event.Event{ID: "bb", Kind: event.KindProfile, CreatedAt: 1}
	endpoints := []relay.Endpoint{
		&fakeEndpoint{url: "wss://one", events: []*event.Event{note, profile}},
	}

	merged, err := a.Query(context.Background(), endpoints, []event.Filter{{Kinds: []int{event.KindNote}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"aa"}, ids(merged))
}

func TestAggregator_QueryNewest(t *testing.T) {
	a := New(discardLogger(), time.Second)

	older := ev("aa", 10)
	newer := ev("bb", 20)
	endpoints := []relay.Endpoint{
		&fakeEndpoint{url: "wss://one", events: []*event.Event{older}},
		&fakeEndpoint{url: "wss://two", events: []*event.Event{newer}},
	}

	got, err := a.QueryNewest(context.Background(), endpoints, []event.Filter{{}})
	require.NoError(t, err)
	assert.Same(t, newer, got)
}

func TestAggregator_QueryNewest_TieBreaksOnLowestID(t *testing.T) {
	a := New(discardLogger(), time.Second)

	low := ev("0a", 10)
	high := ev("0b", 10)
	endpoints := []relay.Endpoint{
		&fakeEndpoint{url: "wss://one", events: []*event.Event{high}},
		&fakeEndpoint{url: "wss://two", events: []*event.Event{low}},
	}

	got, err := a.QueryNewest(context.Background(), endpoints, []event.Filter{{}})
	require.NoError(t, err)
	assert.Same(t, low, got)
}

func TestAggregator_QueryNewest_NoMatches(t *testing.T) {
	a := New(discardLogger(), time.Second)

	got, err := a.QueryNewest(context.Background(),
		[]relay.Endpoint{&fakeEndpoint{url: "wss://one"}}, []event.Filter{{}})
	require.NoError(t, err)
	assert.Nil(t, got)
}
