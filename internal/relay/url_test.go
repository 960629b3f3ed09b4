// ABOUTME: Tests for relay URL normalization and list dedupe

package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain wss", "wss://relay.example", "wss://relay.example", false},
		{"plain ws", "ws://localhost:7777", "ws://localhost:7777", false},
		{"uppercase host lowered", "wss://Relay.Example.COM", "wss://relay.example.com", false},
		{"uppercase scheme lowered", "WSS://relay.example", "wss://relay.example", false},
		{"trailing slash stripped", "wss://relay.example/", "wss://relay.example", false},
		{"path preserved", "wss://relay.example/v1", "wss://relay.example/v1", false},
		{"surrounding space trimmed", "  wss://relay.example ", "wss://relay.example", false},
		{"http rejected", "https://relay.example", "", true},
		{"no scheme rejected", "relay.example", "", true},
		{"empty rejected", "", "", true},
		{"missing host rejected", "wss://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDedupeURLs_PreservesFirstOccurrenceOrder(t *testing.T) {
	in := []string{"wss://b", "wss://a", "wss://b", "wss://c", "wss://a"}
	assert.Equal(t, []string{"wss://b", "wss://a", "wss://c"}, DedupeURLs(in))
}

func TestDedupeURLs_Empty(t *testing.T) {
	assert.Empty(t, DedupeURLs(nil))
}
