// ABOUTME: Gateway holding the attached signing identity behind one lock
// ABOUTME: Turns drafts into finalized signed events or ErrNotAuthenticated

package signer

import (
	"errors"
	"sync"
	"time"

	"github.com/relaypress/relaypress/internal/event"
)

// ErrNotAuthenticated means a signature was requested with no identity
// attached. Callers surface this to the user; it is never retried.
var ErrNotAuthenticated = errors.New("no signing identity attached")

// EventSigner is the raw signing capability the gateway wraps.
type EventSigner interface {
	PublicKeyHex() string
	SignEvent(ev *event.Event) error
}

// Draft is an unsigned event body. The gateway supplies everything else:
// author, timestamp, ID, signature.
type Draft struct {
	Kind    int
	Tags    event.Tags
	Content string
}

// Gateway serializes access to the current signing identity.
type Gateway struct {
	mu     sync.RWMutex
	signer EventSigner

	now func() time.Time
}

// New returns a gateway with no identity attached.
func New() *Gateway {
	return &Gateway{now: time.Now}
}

// SetIdentity attaches a signing capability, replacing any previous one.
func (g *Gateway) SetIdentity(s EventSigner) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signer = s
}

// ClearIdentity detaches the current signing capability.
func (g *Gateway) ClearIdentity() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signer = nil
}

// PublicKey returns the attached identity's hex public key, or false
// when anonymous.
func (g *Gateway) PublicKey() (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.signer == nil {
		return "", false
	}
	return g.signer.PublicKeyHex(), true
}

// Sign finalizes a draft: stamps the current time, then delegates to the
// attached identity for author, ID, and signature. The draft's tag slice
// is copied, never aliased, so callers may reuse drafts.
func (g *Gateway) Sign(draft Draft) (*event.Event, error) {
	g.mu.RLock()
	s := g.signer
	g.mu.RUnlock()
	if s == nil {
		return nil, ErrNotAuthenticated
	}

	tags := make(event.Tags, len(draft.Tags))
	copy(tags, draft.Tags)

	ev := &event.Event{
		Kind:      draft.Kind,
		CreatedAt: g.now().Unix(),
		Tags:      tags,
		Content:   draft.Content,
	}
	if err := s.SignEvent(ev); err != nil {
		return nil, err
	}
	return ev, nil
}
