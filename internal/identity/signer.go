// ABOUTME: In-process signer holding a decrypted secp256k1 private key
// ABOUTME: Finalizes event drafts with author, ID, and BIP-340 signature

package identity

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/relaypress/relaypress/internal/event"
)

// LocalSigner signs events with a private key held in process memory.
type LocalSigner struct {
	priv *btcec.PrivateKey
}

// NewLocalSigner builds a signer from a 64-char hex secret key.
func NewLocalSigner(secHex string) (*LocalSigner, error) {
	raw, err := hex.DecodeString(secHex)
	if err != nil {
		return nil, fmt.Errorf("decoding secret key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secret key must be 32 bytes, got %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &LocalSigner{priv: priv}, nil
}

// Generate creates a signer around a fresh random keypair.
func Generate() (*LocalSigner, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &LocalSigner{priv: priv}, nil
}

// PublicKeyHex returns the 64-char hex x-only public key.
func (s *LocalSigner) PublicKeyHex() string {
	return hex.EncodeToString(schnorr.SerializePubKey(s.priv.PubKey()))
}

// SecretKeyHex returns the 64-char hex secret key, for keystore export.
func (s *LocalSigner) SecretKeyHex() string {
	return hex.EncodeToString(s.priv.Serialize())
}

// Npub returns the bech32 form of the public key.
func (s *LocalSigner) Npub() (string, error) {
	return EncodeNpub(s.PublicKeyHex())
}

// SignEvent stamps ev with the signer's public key, computes the
// content-addressed ID over the final field values, and attaches a
// BIP-340 signature. Any pre-existing ID or Sig is overwritten.
func (s *LocalSigner) SignEvent(ev *event.Event) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	if ev.Tags == nil {
		ev.Tags = event.Tags{}
	}
	ev.PubKey = s.PublicKeyHex()
	ev.ID = ev.ComputeID()

	digest, err := hex.DecodeString(ev.ID)
	if err != nil {
		return fmt.Errorf("decoding event id: %w", err)
	}
	sig, err := schnorr.Sign(s.priv, digest)
	if err != nil {
		return fmt.Errorf("signing event: %w", err)
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}
