// ABOUTME: Signed event record with canonical serialization and content-addressed ID
// ABOUTME: The ID is sha256 over the [0,pubkey,created_at,kind,tags,content] JSON array

package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Event is an immutable signed record. ID is a deterministic digest of the
// other fields (minus Sig) and is the deduplication key used everywhere.
// An Event with empty ID and Sig is a draft; the signer gateway finalizes it.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

const hexDigits = "0123456789abcdef"

// Serialize renders the canonical form the ID digest is computed over:
// a JSON array [0, pubkey, created_at, kind, tags, content] with the
// restricted escape set the wire protocol mandates. Field order is fixed,
// so the serialization is byte-stable for a given event.
func (e *Event) Serialize() []byte {
	out := make([]byte, 0, 100+len(e.Content)+len(e.Tags)*32)
	out = append(out, '[', '0', ',')
	out = appendEscaped(out, e.PubKey)
	out = append(out, ',')
	out = strconv.AppendInt(out, e.CreatedAt, 10)
	out = append(out, ',')
	out = strconv.AppendInt(out, int64(e.Kind), 10)
	out = append(out, ',')
	out = e.Tags.appendJSON(out)
	out = append(out, ',')
	out = appendEscaped(out, e.Content)
	out = append(out, ']')
	return out
}

// ComputeID returns the lowercase hex sha256 of the canonical serialization.
func (e *Event) ComputeID() string {
	sum := sha256.Sum256(e.Serialize())
	return hex.EncodeToString(sum[:])
}

// CheckID reports whether the stored ID matches the recomputed digest.
func (e *Event) CheckID() bool {
	return e.ID == e.ComputeID()
}

// UpdatedAt returns the logical timestamp used by merge decisions: the
// value of the updated_at tag when present and numeric, else CreatedAt.
func (e *Event) UpdatedAt() int64 {
	if v, ok := e.Tags.First(TagUpdatedAt); ok {
		if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
			return ts
		}
	}
	return e.CreatedAt
}

// appendEscaped writes s as a JSON string using the canonical escape set:
// backslash, double quote, and the control characters get dedicated
// escapes; everything else is copied byte for byte. No HTML escaping.
func appendEscaped(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			out = append(out, '\\', '"')
		case c == '\\':
			out = append(out, '\\', '\\')
		case c >= 0x20:
			out = append(out, c)
		case c == '\b':
			out = append(out, '\\', 'b')
		case c == '\t':
			out = append(out, '\\', 't')
		case c == '\n':
			out = append(out, '\\', 'n')
		case c == '\f':
			out = append(out, '\\', 'f')
		case c == '\r':
			out = append(out, '\\', 'r')
		default:
			out = append(out, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0x0f])
		}
	}
	return append(out, '"')
}

// Newest selects the winning instance among candidates for the same
// replaceable or addressable slot: greatest CreatedAt wins, and on equal
// CreatedAt the lexicographically lowest ID is retained, matching the
// wire protocol's replaceable-event tie-break. Returns nil for an empty
// candidate list.
func Newest(events []*Event) *Event {
	var best *Event
	for _, ev := range events {
		if ev == nil {
			continue
		}
		switch {
		case best == nil:
			best = ev
		case ev.CreatedAt > best.CreatedAt:
			best = ev
		case ev.CreatedAt == best.CreatedAt && ev.ID < best.ID:
			best = ev
		}
	}
	return best
}
