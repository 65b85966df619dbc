// Package embedcache caches embedding vectors in BadgerDB.
//
// The Cache wraps any ai.Embedder: hits are served from the store, misses
// are delegated and remembered. Keys combine the embedding model and text
// content, so the same text embedded under two models occupies two entries.
// By default the store lives in memory; WithPath persists it across runs.
package embedcache
