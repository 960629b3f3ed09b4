// Package aggregate runs one logical query against several relays at
// once and merges the answers into a single deduplicated result.
//
// Relays overlap: the same event is usually mirrored on most of the
// relays a site publishes to. The aggregator queries every endpoint
// concurrently under its own timeout, absorbs per-endpoint failures,
// concatenates whatever arrived, and collapses duplicates by event ID
// with first-seen-wins. A relay being down costs its contribution,
// never the whole read.
package aggregate
