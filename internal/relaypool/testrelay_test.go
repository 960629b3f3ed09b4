// ABOUTME: Minimal in-process relay used by the pool tests.
// ABOUTME: Stores events, answers REQ with matches + EOSE, acks EVENT with OK.

package relaypool

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/relaypress/relaypress/internal/event"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

type liveSub struct {
	ws      *websocket.Conn
	writeMu *sync.Mutex
	subID   string
	filters []event.Filter
}

type testRelay struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	stored   []*event.Event
	subs     []liveSub
	reject   string // when set, EVENT is refused with this message
	closeSub string // when set, REQ is answered with CLOSED and this reason
	silent   bool   // when set, REQ is registered but EOSE never sent
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	r := &testRelay{t: t}
	r.srv = httptest.NewServer(http.HandlerFunc(r.handle))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *testRelay) url() string {
	return "ws" + strings.TrimPrefix(r.srv.URL, "http")
}

func (r *testRelay) store(evs ...*event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, evs...)
}

func (r *testRelay) subCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// broadcast stores an event and pushes it to every open subscription it
// matches, as a relay does after EOSE.
func (r *testRelay) broadcast(ev *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, ev)
	for _, s := range r.subs {
		if !filtersMatch(s.filters, ev) {
			continue
		}
		s.writeMu.Lock()
		s.ws.WriteJSON([]any{"EVENT", s.subID, ev})
		s.writeMu.Unlock()
	}
}

func filtersMatch(filters []event.Filter, ev *event.Event) bool {
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

func (r *testRelay) handle(w http.ResponseWriter, req *http.Request) {
	ws, err := testUpgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	writeMu := &sync.Mutex{}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			r.dropConn(ws)
			return
		}
		var parts []json.RawMessage
		if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
			continue
		}
		var label string
		if err := json.Unmarshal(parts[0], &label); err != nil {
			continue
		}

		switch label {
		case "REQ":
			r.handleReq(ws, writeMu, parts)
		case "EVENT":
			r.handleEvent(ws, writeMu, parts)
		case "CLOSE":
			var subID string
			if len(parts) > 1 {
				json.Unmarshal(parts[1], &subID)
			}
			r.dropSub(ws, subID)
		}
	}
}

func (r *testRelay) handleReq(ws *websocket.Conn, writeMu *sync.Mutex, parts []json.RawMessage) {
	var subID string
	if len(parts) > 1 {
		json.Unmarshal(parts[1], &subID)
	}
	var filters []event.Filter
	for _, raw := range parts[2:] {
		var f event.Filter
		if err := json.Unmarshal(raw, &f); err == nil {
			filters = append(filters, f)
		}
	}

	r.mu.Lock()
	closeReason := r.closeSub
	silent := r.silent
	matches := make([]*event.Event, 0)
	for _, ev := range r.stored {
		if filtersMatch(filters, ev) {
			matches = append(matches, ev)
		}
	}
	if closeReason == "" {
		r.subs = append(r.subs, liveSub{ws: ws, writeMu: writeMu, subID: subID, filters: filters})
	}
	r.mu.Unlock()

	writeMu.Lock()
	defer writeMu.Unlock()
	if closeReason != "" {
		ws.WriteJSON([]any{"CLOSED", subID, closeReason})
		return
	}
	for _, ev := range matches {
		ws.WriteJSON([]any{"EVENT", subID, ev})
	}
	if !silent {
		ws.WriteJSON([]any{"EOSE", subID})
	}
}

func (r *testRelay) handleEvent(ws *websocket.Conn, writeMu *sync.Mutex, parts []json.RawMessage) {
	if len(parts) < 2 {
		return
	}
	ev := &event.Event{}
	if err := json.Unmarshal(parts[1], ev); err != nil {
		return
	}

	r.mu.Lock()
	reason := r.reject
	if reason == "" {
		r.stored = append(r.stored, ev)
	}
	r.mu.Unlock()

	writeMu.Lock()
	ws.WriteJSON([]any{"OK", ev.ID, reason == "", reason})
	writeMu.Unlock()
}

func (r *testRelay) dropSub(ws *websocket.Conn, subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.subs[:0]
	for _, s := range r.subs {
		if s.ws == ws && s.subID == subID {
			continue
		}
		kept = append(kept, s)
	}
	r.subs = kept
}

func (r *testRelay) dropConn(ws *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.subs[:0]
	for _, s := range r.subs {
		if s.ws == ws {
			continue
		}
		kept = append(kept, s)
	}
	r.subs = kept
}
