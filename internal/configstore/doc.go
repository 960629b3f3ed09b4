// Package configstore owns the locally persisted configuration snapshot.
//
// The snapshot is a partial view: any field may be absent, and readers
// overlay built-in defaults. Persistence is a single versioned JSON
// blob in SQLite, validated against an embedded schema on load. A blob
// that fails validation is reported as corrupt and the store falls back
// to an empty snapshot instead of refusing to start.
//
// All mutation flows through Update, which applies a pure updater
// function to the current value, persists the result, and notifies
// subscribers in one step. Components never hold references into the
// snapshot; they receive copies.
package configstore
