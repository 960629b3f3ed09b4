// ABOUTME: The single newer-wins comparator every merge decision routes through

package reconcile

// newerThan reports whether a remote logical timestamp beats the local
// one. Strictly greater: equal timestamps keep local, so replaying the
// already-applied event is a no-op.
func newerThan(remote, local int64) bool {
	return remote > local
}
