// ABOUTME: Markdown helpers and draft builders for publishable content.
// ABOUTME: Excerpts, headings, slugs, and long-form article drafts.

// Package content turns authored markdown into publishable event
// drafts. Long-form articles become addressable kind 30023 events whose
// slot is keyed by a slug derived from the title; short notes and
// comments get their reference tags filled in from the parent event.
package content
