// Package mock provides deterministic, offline implementations of every
// capability contract. Identical inputs always produce identical outputs,
// which the planner and verification tests rely on.
package mock
