// ABOUTME: Bearer token minting for the companion scheduling API
// ABOUTME: One fresh signed authorization event per HTTP request

package signer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaypress/relaypress/internal/event"
)

// AuthScheme is the Authorization header scheme carrying signed-event
// bearer tokens.
const AuthScheme = "Nostr"

// AuthToken mints a fresh base64 bearer token authorizing exactly one
// HTTP call: a signed authorization-kind event tagging the request URL
// and method, timestamped to now. Tokens must not be cached; the server
// rejects a token whose URL or method does not match the request it
// arrives on.
func (g *Gateway) AuthToken(rawURL, method string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("auth token requires a url")
	}
	ev, err := g.Sign(Draft{
		Kind: event.KindHTTPAuth,
		Tags: event.Tags{
			{event.TagURL, rawURL},
			{event.TagMethod, strings.ToUpper(method)},
		},
	})
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encoding auth event: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// AuthorizationHeader returns the full Authorization header value for
// one HTTP call: the scheme prefix plus a freshly minted token.
func (g *Gateway) AuthorizationHeader(rawURL, method string) (string, error) {
	token, err := g.AuthToken(rawURL, method)
	if err != nil {
		return "", err
	}
	return AuthScheme + " " + token, nil
}
