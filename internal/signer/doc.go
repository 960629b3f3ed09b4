// Package signer gates every signature the application produces.
//
// The Gateway wraps whatever signing capability is currently attached,
// usually a key loaded from the keystore. Collaborators hand it a draft
// (kind, tags, content) and get back a finalized event: timestamped,
// content-addressed, signed. With no identity attached every operation
// fails with ErrNotAuthenticated; nothing in the system signs around
// the gateway.
//
// The gateway also mints the bearer tokens for the companion scheduling
// API: a short-lived authorization event binding the target URL and
// HTTP method, base64-encoded into an Authorization header. Tokens are
// minted fresh per request and never cached, so a captured token cannot
// be replayed against a different URL or method.
package signer
