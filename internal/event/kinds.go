// ABOUTME: Kind numbers used by the system and the replaceable/addressable rules
// ABOUTME: Address() builds the coordinate key for addressable slots

package event

import "strconv"

// Kinds this system reads or writes.
const (
	KindProfile   = 0
	KindNote      = 1
	KindContacts  = 3
	KindComment   = 1111
	KindRelayList = 10002
	KindHTTPAuth  = 27235
	KindLongForm  = 30023
	KindAppData   = 30078
)

// SiteConfigIdentifier is the d-tag value of the kind 30078 slot holding
// the published site configuration.
const SiteConfigIdentifier = "site-config"

// IsReplaceable reports whether only the newest event per (pubkey, kind)
// is retained.
func IsReplaceable(kind int) bool {
	return kind == KindProfile || kind == KindContacts ||
		(kind >= 10000 && kind < 20000)
}

// IsAddressable reports whether only the newest event per
// (pubkey, kind, d-tag) is retained.
func IsAddressable(kind int) bool {
	return kind >= 30000 && kind < 40000
}

// IsEphemeral reports whether relays are expected to route the event
// without storing it.
func IsEphemeral(kind int) bool {
	return kind >= 20000 && kind < 30000
}

// Address returns the coordinate "kind:pubkey:d" identifying the slot an
// addressable event occupies, or "" when the kind is not addressable.
func (e *Event) Address() string {
	if !IsAddressable(e.Kind) {
		return ""
	}
	return strconv.Itoa(e.Kind) + ":" + e.PubKey + ":" + e.Tags.Identifier()
}
