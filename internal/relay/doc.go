// Package relay defines the endpoint abstraction consumed by the sync,
// publish, and aggregation layers, plus relay URL hygiene helpers.
package relay
