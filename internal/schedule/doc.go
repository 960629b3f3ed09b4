// ABOUTME: HTTP client for the companion note-scheduling service.
// ABOUTME: Every request carries a freshly minted signed-event bearer token.

// Package schedule talks to the companion service that holds notes for
// later publication. The service is optional; the daemon only creates
// this client when a scheduler URL is configured.
//
// Authentication uses the signed-event bearer scheme: each request
// mints a one-shot token bound to its exact URL and method, so tokens
// cannot be replayed against other endpoints.
package schedule
