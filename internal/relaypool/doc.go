// ABOUTME: Websocket relay pool speaking the NIP-01 client protocol.
// ABOUTME: Lazily dials relays, reuses connections, and streams verified events.

// Package relaypool maintains websocket connections to Nostr relays.
//
// A Pool hands out relay.Endpoint values backed by live connections,
// dialing on first use and reusing healthy connections afterwards. Each
// connection runs a single read loop that routes incoming frames to the
// subscription or publish acknowledgement waiting on them, in the style
// of a pending-request table.
//
// Events received from relays are screened before they reach callers:
// the id is recomputed, the signature is checked, and the event must
// match the subscription's filters. Live subscriptions additionally
// dedupe across relays, since the same event is usually stored by
// several of them.
package relaypool
