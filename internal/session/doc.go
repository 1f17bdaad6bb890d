// Package session provides a namespaced, cache-backed store for
// conversational session payloads, with explicit idle reaping. The cache
// holds the fast-path working set only; authoritative game state lives
// in the relational store.
package session
