// Package event defines the signed event record exchanged with relays,
// the query filter shape, and the selection rules for replaceable and
// addressable event kinds.
package event
