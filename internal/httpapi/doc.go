// Package httpapi serves the local management API for relaypressd.
//
// # Overview
//
// The Server exposes the running daemon over HTTP: reading and patching
// the effective site configuration, publishing notes and long-form
// articles, listing responses to published content, and proxying the
// companion scheduler. Handlers delegate the actual work to a Core
// implementation (the engine); this package owns only transport
// concerns.
//
// # Endpoints
//
//   - GET /healthz - liveness check (no auth)
//   - GET /api/config - effective configuration snapshot
//   - PATCH /api/config - overlay site fields, navigation, theme
//   - POST /api/publish - sign and fan out a text note
//   - POST /api/articles - publish or schedule a long-form article
//   - GET /api/responses - replies and comments for a published address
//   - GET /api/responses/count - distinct response and author tallies
//   - GET /api/schedule - pending scheduled notes
//   - POST /api/schedule - hand a note to the scheduler
//   - DELETE /api/schedule/{id} - cancel a pending note
//
// # Authentication
//
// With auth.jwt_secret configured, every /api/* route requires an
// HS256 bearer token minted for subject "admin" (see JWTVerifier).
// Without a secret the API runs open and logs a warning, which is only
// sensible on a loopback or tailnet-private listener.
//
// # Listeners
//
// The server binds a plain TCP address, or joins a tailnet via tsnet
// when tailscale.enabled is set, optionally with Tailscale-issued TLS
// certificates or a public Funnel ingress.
package httpapi
