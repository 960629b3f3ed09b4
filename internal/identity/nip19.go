// ABOUTME: Bech32 encoding of public and secret keys (npub/nsec forms)
// ABOUTME: Converts between 32-byte hex and the human-readable key strings

package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	hrpPublicKey = "npub"
	hrpSecretKey = "nsec"
)

// EncodeNpub renders a 64-char hex public key as an npub string.
func EncodeNpub(pubHex string) (string, error) {
	return encodeKey(hrpPublicKey, pubHex)
}

// DecodeNpub parses an npub string back into 64-char lowercase hex.
func DecodeNpub(npub string) (string, error) {
	return decodeKey(hrpPublicKey, npub)
}

// EncodeNsec renders a 64-char hex secret key as an nsec string.
func EncodeNsec(secHex string) (string, error) {
	return encodeKey(hrpSecretKey, secHex)
}

// DecodeNsec parses an nsec string back into 64-char lowercase hex.
func DecodeNsec(nsec string) (string, error) {
	return decodeKey(hrpSecretKey, nsec)
}

func encodeKey(hrp, keyHex string) (string, error) {
	raw, err := hex.DecodeString(keyHex)
	if err != nil {
		return "", fmt.Errorf("decoding key hex: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	words, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("converting key bits: %w", err)
	}
	encoded, err := bech32.Encode(hrp, words)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", hrp, err)
	}
	return encoded, nil
}

func decodeKey(wantHRP, encoded string) (string, error) {
	hrp, words, err := bech32.Decode(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", wantHRP, err)
	}
	if hrp != wantHRP {
		return "", fmt.Errorf("expected %s prefix, got %s", wantHRP, hrp)
	}
	raw, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return "", fmt.Errorf("converting key bits: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	return hex.EncodeToString(raw), nil
}

// NormalizePubKey accepts either a 64-char hex public key or an npub
// string and returns the lowercase hex form used on the wire.
func NormalizePubKey(s string) (string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, hrpPublicKey+"1") {
		return DecodeNpub(s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("public key is neither npub nor hex: %w", err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("public key must be 32 bytes, got %d", len(raw))
	}
	return strings.ToLower(s), nil
}
