// ABOUTME: Read-side event authentication: ID recomputation plus signature check

package identity

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/relaypress/relaypress/internal/event"
)

var (
	// ErrBadID means the stored ID does not match the recomputed digest.
	ErrBadID = errors.New("event id does not match content")
	// ErrBadSignature means the signature does not verify against the
	// author's public key.
	ErrBadSignature = errors.New("event signature invalid")
)

// VerifyEvent authenticates ev: the ID must equal the digest of the
// canonical serialization and the signature must verify against the
// author key. Events failing either check must be discarded by callers.
func VerifyEvent(ev *event.Event) error {
	if ev == nil {
		return fmt.Errorf("nil event")
	}
	if !ev.CheckID() {
		return ErrBadID
	}

	pkRaw, err := hex.DecodeString(ev.PubKey)
	if err != nil {
		return fmt.Errorf("decoding author key: %w", err)
	}
	pub, err := schnorr.ParsePubKey(pkRaw)
	if err != nil {
		return fmt.Errorf("parsing author key: %w", err)
	}

	sigRaw, err := hex.DecodeString(ev.Sig)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigRaw)
	if err != nil {
		return fmt.Errorf("parsing signature: %w", err)
	}

	digest, err := hex.DecodeString(ev.ID)
	if err != nil {
		return fmt.Errorf("decoding event id: %w", err)
	}
	if !sig.Verify(digest, pub) {
		return ErrBadSignature
	}
	return nil
}
