// Package reconcile converges the local snapshot with the authoritative
// state published on the relay network.
//
// Three layers feed the effective configuration, in increasing
// priority: built-in defaults, the locally persisted snapshot, and the
// controller's published events. Resolution is field-scoped: each
// section (theme, relay metadata, site config, navigation) is decided
// independently, and site config merges key by key so a sparse remote
// update never erases unrelated local fields.
//
// Remote wins only when strictly newer by the event's embedded logical
// timestamp. Arrival order means nothing; a lagging relay replaying an
// old controller event can never roll the snapshot back.
//
// Two remote sources exist. The current user's relay-list event updates
// relay metadata and may re-run any time. The controller's addressable
// configuration event updates site config and navigation, guarded to
// run at most once per identity session after it first succeeds.
// Every failure inside a sync (timeout, bad signature, undecodable
// field) is absorbed and logged; a sync never propagates an error to
// its caller.
package reconcile
