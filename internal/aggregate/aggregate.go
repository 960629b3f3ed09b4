// ABOUTME: Concurrent multi-relay query with dedup-by-id merge
// ABOUTME: Launch all, wait for all; endpoint failures yield zero results

package aggregate

import (
	"context"
	"log/slog"
	"time"

	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/relay"
)

// DefaultEndpointTimeout bounds each relay's contribution to a query.
const DefaultEndpointTimeout = 8 * time.Second

// Aggregator fans one filter set out to many relays and merges results.
type Aggregator struct {
	logger  *slog.Logger
	timeout time.Duration
}

// New creates an aggregator. A zero timeout selects the default.
func New(logger *slog.Logger, timeout time.Duration) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultEndpointTimeout
	}
	return &Aggregator{
		logger:  logger.With("component", "aggregate"),
		timeout: timeout,
	}
}

type endpointResult struct {
	idx    int
	events []*event.Event
	err    error
}

// Query runs the filters against every endpoint concurrently and returns
// the merged, deduplicated events. Results keep endpoint order, then
// arrival order within an endpoint; the first sighting of an ID wins and
// later copies are dropped. Endpoint failures and timeouts are logged
// and contribute nothing. The error return is reserved for ctx being
// canceled before the join completes.
func (a *Aggregator) Query(ctx context.Context, endpoints []relay.Endpoint, filters []event.Filter) ([]*event.Event, error) {
	if len(endpoints) == 0 {
		return nil, nil
	}

	results := make(chan endpointResult, len(endpoints))
	for i, ep := range endpoints {
		go func(idx int, ep relay.Endpoint) {
			qctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			evs, err := ep.Query(qctx, filters)
			results <- endpointResult{idx: idx, events: evs, err: err}
		}(i, ep)
	}

	perEndpoint := make([][]*event.Event, len(endpoints))
	for range endpoints {
		select {
		case res := <-results:
			if res.err != nil {
				a.logger.Warn("relay query failed",
					"relay", endpoints[res.idx].URL(),
					"error", res.err)
				continue
			}
			perEndpoint[res.idx] = res.events
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	seen := make(map[string]struct{})
	var merged []*event.Event
	for _, evs := range perEndpoint {
		for _, ev := range evs {
			if ev == nil || ev.ID == "" {
				continue
			}
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			merged = append(merged, ev)
		}
	}
	return merged, nil
}

// QueryNewest runs the filters and returns only the winning instance for
// the replaceable or addressable slot the caller queried: greatest
// CreatedAt across all relays, lowest ID on ties. Nil when no relay had
// a match.
func (a *Aggregator) QueryNewest(ctx context.Context, endpoints []relay.Endpoint, filters []event.Filter) (*event.Event, error) {
	merged, err := a.Query(ctx, endpoints, filters)
	if err != nil {
		return nil, err
	}
	return event.Newest(merged), nil
}
