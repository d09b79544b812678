// Package thumbcache stores decoded thumbnails in two tiers.
//
// The memory tier is an LRU bounded by item count. The disk tier keeps one
// encoded blob per key under blobs/, named by the BLAKE2b-256 of the key,
// and a SQLite index of keys, sizes and write sequence. The disk tier is
// bounded by bytes and evicts oldest writes first; its size is summed once
// when opened and tracked incrementally afterwards.
//
// Writes reach disk asynchronously. Use Flush to wait for them.
package thumbcache
