// ABOUTME: Pool of relay connections keyed by normalized URL.
// ABOUTME: Dials lazily, reuses healthy connections, merges live subscriptions.

package relaypool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relaypress/relaypress/internal/dedupe"
	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/relay"
)

// DefaultDialTimeout bounds how long a single relay dial may take.
const DefaultDialTimeout = 5 * time.Second

const (
	seenTTL     = 10 * time.Minute
	seenMaxSize = 4096
)

// Pool hands out connections to relays, dialing on first use. It
// implements relay.Dialer.
type Pool struct {
	logger      *slog.Logger
	dialTimeout time.Duration
	seen        *dedupe.Tracker

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
}

// Option configures a Pool.
type Option func(*Pool)

// WithDialTimeout overrides DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Pool) { p.dialTimeout = d }
}

// New creates an empty pool. Connections are established on demand by
// Endpoint and Subscribe.
func New(logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		logger:      logger.With("component", "relaypool"),
		dialTimeout: DefaultDialTimeout,
		seen:        dedupe.New(seenTTL, seenMaxSize),
		conns:       make(map[string]*Conn),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Endpoint returns a live connection to the given relay, dialing it if
// none exists yet. Dead connections are replaced transparently.
func (p *Pool) Endpoint(ctx context.Context, rawURL string) (relay.Endpoint, error) {
	url, err := relay.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, relay.ErrClosed
	}
	if c, ok := p.conns[url]; ok && !c.IsClosed() {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	c, err := dial(dialCtx, url, p.logger)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.Close()
		return nil, relay.ErrClosed
	}
	// Another caller may have raced us to the same relay.
	if existing, ok := p.conns[url]; ok && !existing.IsClosed() {
		p.mu.Unlock()
		c.Close()
		return existing, nil
	}
	p.conns[url] = c
	p.mu.Unlock()

	p.logger.Info("relay connected", "url", url)
	return c, nil
}

// Endpoints dials every given relay, returning the ones that answered.
// Unreachable relays are logged and skipped.
func (p *Pool) Endpoints(ctx context.Context, urls []string) []relay.Endpoint {
	deduped := relay.DedupeURLs(urls)
	eps := make([]relay.Endpoint, 0, len(deduped))
	for _, u := range deduped {
		ep, err := p.Endpoint(ctx, u)
		if err != nil {
			p.logger.Warn("skipping unreachable relay", "url", u, "error", err)
			continue
		}
		eps = append(eps, ep)
	}
	return eps
}

// Subscribe opens a live subscription on every reachable relay and
// merges the streams. The same event arriving from several relays is
// delivered once. The returned channel closes when ctx is done or all
// underlying subscriptions have ended.
func (p *Pool) Subscribe(ctx context.Context, urls []string, filters []event.Filter) (<-chan *event.Event, error) {
	eps := p.Endpoints(ctx, urls)
	if len(eps) == 0 {
		return nil, fmt.Errorf("no reachable relays among %d candidates", len(relay.DedupeURLs(urls)))
	}

	out := make(chan *event.Event, subBuffer)
	var wg sync.WaitGroup
	opened := 0
	for _, ep := range eps {
		c, ok := ep.(*Conn)
		if !ok {
			continue
		}
		sub, err := c.openSubscription(filters)
		if err != nil {
			p.logger.Warn("subscription failed", "url", c.URL(), "error", err)
			continue
		}
		opened++
		wg.Add(1)
		go p.forward(ctx, c, sub, out, &wg)
	}
	if opened == 0 {
		return nil, fmt.Errorf("no relay accepted the subscription")
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (p *Pool) forward(ctx context.Context, c *Conn, sub *subscription, out chan<- *event.Event, wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.closeSubscription(sub)

	for {
		select {
		case ev := <-sub.events:
			if p.seen.SeenOrRemember(ev.ID) {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Close tears down every connection. The pool cannot be reused.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.conns
	p.conns = make(map[string]*Conn)
	p.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	p.seen.Close()
	return nil
}
