// ABOUTME: Persisted blob codec: envelope versions plus legacy shape repair
// ABOUTME: Any unreadable shape surfaces as ErrConfigCorrupt, never a crash

package configstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	// storageKey is the fixed app_state key the snapshot lives under.
	storageKey = "relaypress:config"

	// blobVersion is the current envelope version. Version 1 blobs were
	// the bare snapshot with no envelope.
	blobVersion = 2
)

type blobEnvelope struct {
	Version  int             `json:"version"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// encodeBlob wraps a snapshot in the current envelope for persistence.
func encodeBlob(s Snapshot) ([]byte, error) {
	snap, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return json.Marshal(blobEnvelope{Version: blobVersion, Snapshot: snap})
}

// decodeBlob reads a persisted blob of any historical shape: current
// envelope, bare version 1 snapshot, or the legacy wrapped-navigation
// bug. The repaired flag reports whether a legacy shape was rewritten.
// The payload is schema-validated before decoding; failures come back
// wrapping ErrConfigCorrupt.
func decodeBlob(data []byte) (Snapshot, bool, error) {
	raw, err := snapshotPayload(data)
	if err != nil {
		return Snapshot{}, false, err
	}

	raw, repaired, err := repairNavigationShape(raw)
	if err != nil {
		return Snapshot{}, false, err
	}

	if err := ValidateSnapshotJSON(raw); err != nil {
		return Snapshot{}, repaired, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, repaired, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	return s, repaired, nil
}

// snapshotPayload unwraps the envelope, passing bare version 1 blobs
// through unchanged.
func snapshotPayload(data []byte) (json.RawMessage, error) {
	var env blobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	if env.Version == 0 && env.Snapshot == nil {
		return json.RawMessage(data), nil
	}
	if env.Version > blobVersion {
		return nil, fmt.Errorf("%w: unsupported blob version %d", ErrConfigCorrupt, env.Version)
	}
	if env.Snapshot == nil {
		return nil, fmt.Errorf("%w: envelope missing snapshot", ErrConfigCorrupt)
	}
	return env.Snapshot, nil
}

// repairNavigationShape unwraps the historical double-nesting bug where
// navigation was stored as {"navigation": [...]} instead of the bare
// array. One level only; anything deeper fails validation downstream.
func repairNavigationShape(raw json.RawMessage) (json.RawMessage, bool, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}

	nav, ok := m["navigation"]
	if !ok {
		return raw, false, nil
	}
	trimmed := bytes.TrimSpace(nav)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw, false, nil
	}

	var wrapper struct {
		Navigation json.RawMessage `json:"navigation"`
	}
	if err := json.Unmarshal(nav, &wrapper); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	if wrapper.Navigation == nil {
		delete(m, "navigation")
	} else {
		m["navigation"] = wrapper.Navigation
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, false, fmt.Errorf("re-encoding repaired snapshot: %w", err)
	}
	return out, true, nil
}
