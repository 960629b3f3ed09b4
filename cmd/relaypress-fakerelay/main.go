// ABOUTME: In-memory relay for local development and end-to-end testing
// ABOUTME: Usage: relaypress-fakerelay [-addr localhost:7447] [-verify=false] [-seed events.json]

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaypress/relaypress/internal/event"
	"github.com/relaypress/relaypress/internal/identity"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	addr := flag.String("addr", "localhost:7447", "listen address")
	verify := flag.Bool("verify", true, "verify event IDs and signatures")
	seed := flag.String("seed", "", "JSON file with events to preload")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*addr, *verify, *seed, logger); err != nil {
		logger.Error("fakerelay failed", "error", err)
		os.Exit(1)
	}
}

func run(addr string, verify bool, seed string, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	relay := newRelayServer(logger, verify)

	if seed != "" {
		n, err := relay.loadSeed(seed)
		if err != nil {
			return fmt.Errorf("loading seed events: %w", err)
		}
		logger.Info("seed events loaded", "file", seed, "count", n)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           relay,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fakerelay listening", "url", "ws://"+addr, "verify", verify)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// relayServer stores events in memory and speaks the relay wire protocol:
// REQ answered with matches plus EOSE, EVENT acked with OK and pushed to
// open subscriptions, CLOSE dropping a subscription.
type relayServer struct {
	logger   *slog.Logger
	verify   bool
	upgrader websocket.Upgrader

	mu     sync.Mutex
	events map[string]*event.Event // by ID
	slots  map[string]string       // replaceable slot key -> current event ID
	conns  map[*clientConn]struct{}
}

type clientConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	subs    map[string][]event.Filter
}

func (c *clientConn) send(frame []any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.WriteJSON(frame)
}

func newRelayServer(logger *slog.Logger, verify bool) *relayServer {
	return &relayServer{
		logger: logger.With("component", "fakerelay"),
		verify: verify,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		events: make(map[string]*event.Event),
		slots:  make(map[string]string),
		conns:  make(map[*clientConn]struct{}),
	}
}

func (s *relayServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("upgrade failed", "error", err)
			return
		}
		s.serveConn(ws, r.RemoteAddr)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/nostr+json") {
		s.serveInfo(w)
		return
	}

	fmt.Fprintln(w, "relaypress fakerelay: connect with a websocket client")
}

// serveInfo answers the relay information document request.
func (s *relayServer) serveInfo(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/nostr+json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":           "relaypress-fakerelay",
		"description":    "in-memory relay for local development",
		"software":       "https://github.com/relaypress/relaypress",
		"version":        version,
		"supported_nips": []int{1, 11},
	})
}

func (s *relayServer) serveConn(ws *websocket.Conn, remote string) {
	conn := &clientConn{ws: ws, subs: make(map[string][]event.Filter)}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("client connected", "remote", remote)

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		ws.Close()
		s.logger.Debug("client disconnected", "remote", remote)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		s.dispatch(conn, data)
	}
}

func (s *relayServer) dispatch(conn *clientConn, data []byte) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
		conn.send([]any{"NOTICE", "could not parse message"})
		return
	}
	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		conn.send([]any{"NOTICE", "could not parse message"})
		return
	}

	switch label {
	case "REQ":
		s.handleReq(conn, parts)
	case "EVENT":
		s.handleEvent(conn, parts)
	case "CLOSE":
		var subID string
		if len(parts) > 1 {
			json.Unmarshal(parts[1], &subID)
		}
		s.mu.Lock()
		delete(conn.subs, subID)
		s.mu.Unlock()
	default:
		conn.send([]any{"NOTICE", "unrecognized message type: " + label})
	}
}

func (s *relayServer) handleReq(conn *clientConn, parts []json.RawMessage) {
	var subID string
	if len(parts) > 1 {
		json.Unmarshal(parts[1], &subID)
	}
	if subID == "" {
		conn.send([]any{"NOTICE", "REQ needs a subscription id"})
		return
	}

	var filters []event.Filter
	for _, raw := range parts[2:] {
		var f event.Filter
		if err := json.Unmarshal(raw, &f); err != nil {
			conn.send([]any{"CLOSED", subID, "invalid: malformed filter"})
			return
		}
		filters = append(filters, f)
	}

	s.mu.Lock()
	matches := s.matchStoredLocked(filters)
	conn.subs[subID] = filters
	s.mu.Unlock()

	for _, ev := range matches {
		conn.send([]any{"EVENT", subID, ev})
	}
	conn.send([]any{"EOSE", subID})
	s.logger.Debug("subscription opened", "sub", subID, "filters", len(filters), "served", len(matches))
}

// matchStoredLocked returns stored events matching any filter, newest
// first, honoring each filter's limit separately. Caller holds s.mu.
func (s *relayServer) matchStoredLocked(filters []event.Filter) []*event.Event {
	all := make([]*event.Event, 0, len(s.events))
	for _, ev := range s.events {
		all = append(all, ev)
	}
	sortNewestFirst(all)

	if len(filters) == 0 {
		return all
	}

	seen := make(map[string]bool)
	var out []*event.Event
	for _, f := range filters {
		n := 0
		for _, ev := range all {
			if !f.Matches(ev) {
				continue
			}
			n++
			if !seen[ev.ID] {
				seen[ev.ID] = true
				out = append(out, ev)
			}
			if f.Limit > 0 && n >= f.Limit {
				break
			}
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(events []*event.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}

func (s *relayServer) handleEvent(conn *clientConn, parts []json.RawMessage) {
	if len(parts) < 2 {
		conn.send([]any{"NOTICE", "EVENT needs a payload"})
		return
	}
	ev := &event.Event{}
	if err := json.Unmarshal(parts[1], ev); err != nil {
		conn.send([]any{"NOTICE", "could not parse event"})
		return
	}

	ok, fresh, msg := s.accept(ev)
	conn.send([]any{"OK", ev.ID, ok, msg})
	if !ok {
		s.logger.Debug("event rejected", "id", ev.ID, "reason", msg)
		return
	}
	if !fresh {
		return
	}
	s.logger.Debug("event accepted", "id", ev.ID, "kind", ev.Kind)

	// Push to open subscriptions, as a relay does after EOSE.
	type delivery struct {
		conn  *clientConn
		subID string
	}
	s.mu.Lock()
	var deliveries []delivery
	for c := range s.conns {
		for subID, filters := range c.subs {
			if matchesAny(filters, ev) {
				deliveries = append(deliveries, delivery{c, subID})
			}
		}
	}
	s.mu.Unlock()

	for _, d := range deliveries {
		d.conn.send([]any{"EVENT", d.subID, ev})
	}
}

// accept applies the storage rules: signature checks, duplicate detection,
// and replaceable or addressable slot supersession. ok is the OK frame
// verdict; fresh reports whether the event should reach subscribers.
func (s *relayServer) accept(ev *event.Event) (ok, fresh bool, msg string) {
	if s.verify {
		if !ev.CheckID() {
			return false, false, "invalid: id does not match event"
		}
		if err := identity.VerifyEvent(ev); err != nil {
			return false, false, "invalid: " + err.Error()
		}
	}

	if event.IsEphemeral(ev.Kind) {
		// Routed to subscribers, never stored.
		return true, true, ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.events[ev.ID]; exists {
		return true, false, "duplicate: already have this event"
	}

	slotKey := ""
	switch {
	case event.IsReplaceable(ev.Kind):
		slotKey = fmt.Sprintf("%d:%s", ev.Kind, ev.PubKey)
	case event.IsAddressable(ev.Kind):
		slotKey = ev.Address()
	}

	if slotKey != "" {
		if currentID, occupied := s.slots[slotKey]; occupied {
			current := s.events[currentID]
			if event.Newest([]*event.Event{current, ev}) == current {
				return true, false, "duplicate: have a newer event for this slot"
			}
			delete(s.events, currentID)
		}
		s.slots[slotKey] = ev.ID
	}

	s.events[ev.ID] = ev
	return true, true, ""
}

func matchesAny(filters []event.Filter, ev *event.Event) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

// loadSeed preloads events from a JSON array file, applying the same
// acceptance rules as the wire path.
func (s *relayServer) loadSeed(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var events []*event.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	n := 0
	for _, ev := range events {
		ok, fresh, msg := s.accept(ev)
		if !ok {
			return n, fmt.Errorf("event %s rejected: %s", ev.ID, msg)
		}
		if fresh {
			n++
		}
	}
	return n, nil
}
