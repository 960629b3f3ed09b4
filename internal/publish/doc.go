// Package publish signs drafts and fans the signed event out to a set
// of relays, settling with a per-target outcome report.
//
// Redundant delivery is the availability story: the event goes to every
// target concurrently, each under its own timeout, and no single relay
// failing or stalling holds up or fails the job. Signing is the only
// step whose failure rejects the whole publish; after that the caller
// always gets the signed event back plus a settlement report saying
// which relays acknowledged it.
package publish
