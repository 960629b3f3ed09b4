// ABOUTME: Endpoint and Dialer interfaces decoupling callers from the socket layer

package relay

import (
	"context"
	"errors"

	"github.com/relaypress/relaypress/internal/event"
)

var (
	// ErrRejected means the relay acknowledged the publish negatively.
	ErrRejected = errors.New("relay rejected event")
	// ErrClosed means the endpoint's connection is gone and the caller
	// should redial.
	ErrClosed = errors.New("relay connection closed")
	// ErrTimeout means the deadline lapsed before the relay finished
	// answering.
	ErrTimeout = errors.New("relay timed out")
	// ErrQuery means the relay refused or aborted a subscription.
	ErrQuery = errors.New("relay query failed")
)

// Endpoint is one reachable relay. Implementations are safe for
// concurrent use; every method honors context cancellation.
type Endpoint interface {
	// URL returns the normalized websocket URL this endpoint dials.
	URL() string

	// Query runs a one-shot subscription and returns events received up
	// to the end-of-stored-events marker.
	Query(ctx context.Context, filters []event.Filter) ([]*event.Event, error)

	// Publish submits a signed event and waits for the relay's
	// acknowledgment. A negative acknowledgment surfaces as ErrRejected.
	Publish(ctx context.Context, ev *event.Event) error
}

// Dialer hands out endpoints by URL, reusing live connections where it
// can.
type Dialer interface {
	Endpoint(ctx context.Context, url string) (Endpoint, error)
}
