// ABOUTME: Default publish-target resolution
// ABOUTME: Primary relay first, then fallbacks, then the user's write relays

package publish

import "github.com/relaypress/relaypress/internal/relay"

// DefaultFallbackRelays are tried for every publish in addition to the
// configured primary relay, so content survives the primary being down.
var DefaultFallbackRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
}

// ResolveTargets assembles the default publish-target list: the primary
// relay first, the built-in fallbacks, then the user's declared write
// relays. Duplicates are dropped keeping the first occurrence, so the
// primary keeps its leading position even when it reappears later.
func ResolveTargets(primary string, fallbacks, writeRelays []string) []string {
	out := make([]string, 0, 1+len(fallbacks)+len(writeRelays))
	if primary != "" {
		out = append(out, primary)
	}
	out = append(out, fallbacks...)
	out = append(out, writeRelays...)

	deduped := relay.DedupeURLs(out)
	cleaned := deduped[:0]
	for _, u := range deduped {
		if u != "" {
			cleaned = append(cleaned, u)
		}
	}
	return cleaned
}
