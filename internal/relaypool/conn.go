// ABOUTME: A single relay connection with one read loop routing frames.
// ABOUTME: Tracks open subscriptions and pending publish acknowledgements.

package relaypool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/identity"
	"github.com/relaypress/relaypress/internal/relay"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 45 * time.Second

	// subBuffer bounds how far a slow consumer may fall behind before
	// events are dropped instead of blocking the read loop.
	subBuffer = 64
)

type ackResult struct {
	ok      bool
	message string
}

// subscription is one open REQ on a connection. The read loop feeds
// events; eose closes once the relay signals end of stored events; done
// closes when the subscription ends for any reason.
type subscription struct {
	id      string
	filters []event.Filter
	events  chan *event.Event
	eose    chan struct{}
	done    chan struct{}
	reason  string

	eoseOnce sync.Once
	doneOnce sync.Once
}

func (s *subscription) signalEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

func (s *subscription) terminate(reason string) {
	s.doneOnce.Do(func() {
		s.reason = reason
		close(s.done)
	})
}

// Conn is a live websocket connection to one relay. It implements
// relay.Endpoint. All writes go through a mutex; all reads happen on
// the single read loop started by dial.
type Conn struct {
	url    string
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]*subscription
	acks   map[string]chan ackResult
	closed bool

	done chan struct{}
}

func dial(ctx context.Context, url string, logger *slog.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	c := &Conn{
		url:    url,
		ws:     ws,
		logger: logger,
		subs:   make(map[string]*subscription),
		acks:   make(map[string]chan ackResult),
		done:   make(chan struct{}),
	}

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// URL reports the normalized relay address this connection serves.
func (c *Conn) URL() string { return c.url }

// IsClosed reports whether the connection has been torn down.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Query opens a subscription, collects stored events until the relay
// signals EOSE, then closes the subscription again.
func (c *Conn) Query(ctx context.Context, filters []event.Filter) ([]*event.Event, error) {
	sub, err := c.openSubscription(filters)
	if err != nil {
		return nil, err
	}
	defer c.closeSubscription(sub)

	var out []*event.Event
	for {
		select {
		case ev := <-sub.events:
			out = append(out, ev)
		case <-sub.eose:
			// Events routed before EOSE may still sit in the buffer.
			for {
				select {
				case ev := <-sub.events:
					out = append(out, ev)
				default:
					return out, nil
				}
			}
		case <-sub.done:
			return out, fmt.Errorf("%w: subscription closed by %s: %s", relay.ErrQuery, c.url, sub.reason)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return out, fmt.Errorf("%w: %s", relay.ErrTimeout, c.url)
			}
			return out, ctx.Err()
		}
	}
}

// Publish sends an event and waits for the relay's acknowledgement.
// A negative acknowledgement is reported as relay.ErrRejected.
func (c *Conn) Publish(ctx context.Context, ev *event.Event) error {
	ack := make(chan ackResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return relay.ErrClosed
	}
	if _, dup := c.acks[ev.ID]; dup {
		c.mu.Unlock()
		return fmt.Errorf("publish already pending for event %s", ev.ID)
	}
	c.acks[ev.ID] = ack
	c.mu.Unlock()

	data, err := encodeEvent(ev)
	if err != nil {
		c.dropAck(ev.ID)
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := c.write(data); err != nil {
		c.dropAck(ev.ID)
		return fmt.Errorf("sending EVENT to %s: %w", c.url, err)
	}

	select {
	case res := <-ack:
		if !res.ok {
			return fmt.Errorf("%w by %s: %s", relay.ErrRejected, c.url, res.message)
		}
		return nil
	case <-c.done:
		return relay.ErrClosed
	case <-ctx.Done():
		c.dropAck(ev.ID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: no acknowledgement from %s", relay.ErrTimeout, c.url)
		}
		return ctx.Err()
	}
}

// Close sends a close frame and tears the connection down.
func (c *Conn) Close() error {
	deadline := time.Now().Add(writeTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.logger.Debug("close frame not sent", "url", c.url, "error", err)
	}
	c.teardown()
	return nil
}

func (c *Conn) openSubscription(filters []event.Filter) (*subscription, error) {
	sub := &subscription{
		id:      uuid.New().String(),
		filters: filters,
		events:  make(chan *event.Event, subBuffer),
		eose:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, relay.ErrClosed
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	data, err := encodeReq(sub.id, filters)
	if err != nil {
		c.dropSubscription(sub)
		return nil, fmt.Errorf("encoding REQ: %w", err)
	}
	if err := c.write(data); err != nil {
		c.dropSubscription(sub)
		return nil, fmt.Errorf("%w: sending REQ to %s: %v", relay.ErrQuery, c.url, err)
	}
	return sub, nil
}

// closeSubscription ends a subscription and tells the relay, if it was
// still registered, to stop serving it.
func (c *Conn) closeSubscription(sub *subscription) {
	c.mu.Lock()
	_, present := c.subs[sub.id]
	delete(c.subs, sub.id)
	c.mu.Unlock()

	sub.terminate("")
	if !present {
		return
	}
	data, err := encodeClose(sub.id)
	if err != nil {
		return
	}
	if err := c.write(data); err != nil {
		c.logger.Debug("CLOSE not sent", "url", c.url, "sub_id", sub.id, "error", err)
	}
}

func (c *Conn) dropSubscription(sub *subscription) {
	c.mu.Lock()
	delete(c.subs, sub.id)
	c.mu.Unlock()
	sub.terminate("")
}

func (c *Conn) dropAck(eventID string) {
	c.mu.Lock()
	delete(c.acks, eventID)
	c.mu.Unlock()
}

func (c *Conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) readLoop() {
	defer c.teardown()

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("relay connection lost", "url", c.url, "error", err)
			}
			return
		}
		frame, err := decodeServerFrame(data)
		if err != nil {
			c.logger.Debug("dropping malformed frame", "url", c.url, "error", err)
			continue
		}
		c.route(frame)
	}
}

func (c *Conn) route(f *serverFrame) {
	switch f.label {
	case frameEvent:
		c.routeEvent(f)

	case frameEOSE:
		c.mu.Lock()
		sub := c.subs[f.subID]
		c.mu.Unlock()
		if sub != nil {
			sub.signalEOSE()
		}

	case frameOK:
		c.mu.Lock()
		ch := c.acks[f.eventID]
		delete(c.acks, f.eventID)
		c.mu.Unlock()
		if ch == nil {
			c.logger.Debug("acknowledgement for unknown event",
				"url", c.url, "event_id", f.eventID)
			return
		}
		ch <- ackResult{ok: f.ok, message: f.message}

	case frameNotice:
		c.logger.Info("relay notice", "url", c.url, "message", f.message)

	case frameClosed:
		c.mu.Lock()
		sub := c.subs[f.subID]
		delete(c.subs, f.subID)
		c.mu.Unlock()
		if sub != nil {
			c.logger.Warn("subscription closed by relay",
				"url", c.url, "sub_id", f.subID, "reason", f.message)
			sub.terminate(f.message)
		}
	}
}

// routeEvent screens an incoming event before delivering it: the id and
// signature must verify and the event must match the subscription.
func (c *Conn) routeEvent(f *serverFrame) {
	c.mu.Lock()
	sub := c.subs[f.subID]
	c.mu.Unlock()
	if sub == nil {
		c.logger.Debug("event for unknown subscription",
			"url", c.url, "sub_id", f.subID)
		return
	}

	ev := f.event
	if err := identity.VerifyEvent(ev); err != nil {
		c.logger.Warn("dropping unverifiable event",
			"url", c.url, "event_id", ev.ID, "error", err)
		return
	}
	if !matchesAny(sub.filters, ev) {
		c.logger.Debug("dropping event outside subscription filters",
			"url", c.url, "event_id", ev.ID)
		return
	}

	select {
	case sub.events <- ev:
	default:
		c.logger.Warn("subscription buffer full, dropping event",
			"url", c.url, "sub_id", sub.id, "event_id", ev.ID)
	}
}

func (c *Conn) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.acks = make(map[string]chan ackResult)
	c.mu.Unlock()

	close(c.done)
	for _, sub := range subs {
		sub.terminate("connection closed")
	}
	if err := c.ws.Close(); err != nil {
		c.logger.Debug("websocket close", "url", c.url, "error", err)
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "url", c.url, "error", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func matchesAny(filters []event.Filter, ev *event.Event) bool {
	for _, f := range filters {
		if f.Matches(ev) {
			return true
		}
	}
	return len(filters) == 0
}
