// Package database provides the SQLite index behind the thumbnail disk
// cache.
//
// Each row maps a cache key to the size of its blob and the sequence number
// of the write that produced it, which is what oldest-write-first eviction
// orders by. The database uses WAL mode and includes automatic schema
// initialization and migration.
package database
