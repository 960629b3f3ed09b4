// ABOUTME: Relay URL validation and normalization
// ABOUTME: Canonical form keeps list dedupe and connection reuse honest

package relay

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL validates s as a relay websocket URL and returns its
// canonical form: lowercase scheme and host, no trailing slash on a
// bare path. Schemes other than ws and wss are rejected.
func NormalizeURL(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty relay url")
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("parsing relay url %q: %w", s, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("relay url %q: scheme must be ws or wss", s)
	}
	if u.Host == "" {
		return "", fmt.Errorf("relay url %q: missing host", s)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "/" {
		u.Path = ""
	}
	u.Fragment = ""
	return u.String(), nil
}

// DedupeURLs drops exact duplicates while preserving first-occurrence
// order. Entries are compared as given; callers wanting canonical
// comparison normalize first.
func DedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
