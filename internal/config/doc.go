// Package config handles configuration loading for relaypressd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package validates required fields and normalizes keys
// and relay addresses on load.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${RELAYPRESS_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  interval: "5m"
//	  endpoint_timeout: "8s"
//	publish:
//	  target_timeout: "5s"
//
// # Configuration Sections
//
// Site identity:
//
//	site:
//	  controller_pubkey: "npub1..."   # hex also accepted
//	  preferred_relay: "wss://relay.example"
//
// Relays:
//
//	relays:
//	  bootstrap:
//	    - "wss://relay.damus.io"
//	  publish_fallback: []            # defaults built in
//
// Signing identity (pick one):
//
//	identity:
//	  keystore_path: "~/.config/relaypress/key.json"
//	  # secret_key: "${RELAYPRESS_SECRET_KEY}"
//
// Local API:
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	auth:
//	  jwt_secret: "${RELAYPRESS_JWT_SECRET}"
//
// Tailscale (replaces server.http_addr when enabled):
//
//	tailscale:
//	  enabled: false
//	  hostname: "relaypress"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: false    # serve on :443 with Tailscale certs
//	  funnel: false   # expose publicly via Tailscale Funnel
//
// Scheduler (optional companion service):
//
//	scheduler:
//	  url: "https://scheduler.example"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
