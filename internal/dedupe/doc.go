// Package dedupe tracks recently seen event IDs in a time-based cache
// so repeated relay deliveries are processed once within the window.
package dedupe
