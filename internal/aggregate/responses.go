// ABOUTME: Read patterns built on the dedup core: response collection and counting

package aggregate

import (
	"context"

	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/relay"
)

// responseKinds are the reply kinds collected for a published address:
// plain notes and threaded comments.
var responseKinds = []int{event.KindNote, event.KindComment}

// CollectResponses gathers every reply event referencing the parent
// address across the given relays, deduplicated and ordered newest
// first. Callers pass the relays the parent was published to plus the
// default relay; overlap is fine.
func (a *Aggregator) CollectResponses(ctx context.Context, endpoints []relay.Endpoint, parentAddr string) ([]*event.Event, error) {
	merged, err := a.Query(ctx, endpoints, []event.Filter{{
		Kinds: responseKinds,
		Tags:  map[string][]string{event.TagAddressRef: {parentAddr}},
	}})
	if err != nil {
		return nil, err
	}
	event.SortByCreatedAt(merged)
	return merged, nil
}

// Count summarizes a response collection without the payloads.
type Count struct {
	Events  int `json:"events"`
	Authors int `json:"authors"`
}

// CountResponses tallies distinct responses and distinct authors for the
// parent address. It reuses the same dedup-by-id merge as collection, so
// an event mirrored on three relays counts once.
func (a *Aggregator) CountResponses(ctx context.Context, endpoints []relay.Endpoint, parentAddr string) (Count, error) {
	merged, err := a.CollectResponses(ctx, endpoints, parentAddr)
	if err != nil {
		return Count{}, err
	}

	authors := make(map[string]struct{}, len(merged))
	for _, ev := range merged {
		authors[ev.PubKey] = struct{}{}
	}
	return Count{Events: len(merged), Authors: len(authors)}, nil
}
