// Package index implements the dual retrieval index: a per-document facts
// index over source chunks and a global style bank over reusable
// conversational patterns.
//
// Both sides expose the same retrieval contract. Results are ordered by
// similarity with ties broken by original chunk order, so identical inputs
// always retrieve identically. An index is immutable once built; rebuilding
// produces a replacement rather than mutating in place.
package index
