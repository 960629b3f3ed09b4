// Package engine wires the relaypress core together and drives the
// sync loop.
//
// # Overview
//
// The Engine owns the signer gateway, the aggregator, the fan-out
// publisher, and the config reconciler, binding them to a config store
// and a relay pool supplied by the caller. It is the Core behind the
// management API: configuration reads and updates, note and article
// publishing, and response collection all pass through it.
//
// # Target and endpoint resolution
//
// The engine is both the publisher's target source and the reconciler's
// endpoint source. Publish targets resolve as primary relay, built-in
// fallbacks, then the relays the identity declared writable. Sync reads
// come from the declared read relays once a relay list is known, and
// from the configured bootstrap set before that.
//
// # Lifecycle
//
// Run performs one reconciliation immediately and then re-syncs on the
// configured interval until the context is canceled. The reconciler's
// own guards keep repeated passes cheap: a synced site config is not
// re-fetched within a session, and unchanged remote state writes
// nothing.
package engine
