// ABOUTME: Tag list type with lookup and mutation helpers
// ABOUTME: Tags are ordered string arrays; the first element is the tag name

package event

// Common tag names used across kinds.
const (
	TagIdentifier = "d"
	TagRelay      = "r"
	TagEventRef   = "e"
	TagPubKeyRef  = "p"
	TagAddressRef = "a"
	TagTitle      = "title"
	TagSummary    = "summary"
	TagPublished  = "published_at"
	TagUpdatedAt  = "updated_at"
	TagClient     = "client"
	TagURL        = "u"
	TagMethod     = "method"
	TagHashtag    = "t"
)

// Tag is a single ordered tuple. Element zero is the name, element one
// the primary value, further elements are positional extras (markers,
// relay hints).
type Tag []string

// Name returns the tag name, or "" for a malformed empty tuple.
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the primary value, or "" when absent.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Tags is the ordered tag list of an event.
type Tags []Tag

// First returns the primary value of the first tag with the given name.
func (ts Tags) First(name string) (string, bool) {
	for _, t := range ts {
		if t.Name() == name && len(t) > 1 {
			return t[1], true
		}
	}
	return "", false
}

// All returns the primary values of every tag with the given name, in order.
func (ts Tags) All(name string) []string {
	var vals []string
	for _, t := range ts {
		if t.Name() == name && len(t) > 1 {
			vals = append(vals, t[1])
		}
	}
	return vals
}

// Find returns the first full tuple with the given name.
func (ts Tags) Find(name string) (Tag, bool) {
	for _, t := range ts {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Identifier returns the d-tag value, the slot key for addressable kinds.
func (ts Tags) Identifier() string {
	v, _ := ts.First(TagIdentifier)
	return v
}

func (ts Tags) appendJSON(out []byte) []byte {
	out = append(out, '[')
	for i, t := range ts {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '[')
		for j, s := range t {
			if j > 0 {
				out = append(out, ',')
			}
			out = appendEscaped(out, s)
		}
		out = append(out, ']')
	}
	return append(out, ']')
}
