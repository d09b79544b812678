// Package main provides the entry point for peekraw.
//
// peekraw is a gallery browser for folders of camera RAW and image files.
// Thumbnails are taken from the previews cameras embed in RAW files, so a
// folder of large files becomes browsable within seconds.
//
// # Application Lifecycle
//
// The serve command follows a structured initialization sequence:
//
//  1. Memory Configuration: Sets GOMEMLIMIT from MEMORY_LIMIT if present
//  2. Configuration Loading: Reads flags and environment variables and
//     validates the cache and config directories
//  3. Thumbnail Cache: Opens the memory tier and the disk tier with its
//     SQLite index
//  4. Component Initialization:
//     - Memory Monitor: Pauses decoding while the heap is near its limit
//     - Main Loop: Serializes gallery updates and pipeline events
//     - Thumbnail Pipeline: Decodes previews in the background
//     - Metrics Collector: Samples cache and gallery gauges
//  5. HTTP Server Setup: Configures routes and middleware and starts the server
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM, cancels the running
//     pipeline and flushes pending cache writes
//
// # Commands
//
//	peekraw scan ~/Pictures/2024-trip
//	peekraw serve --port 9000 ~/Pictures
//	peekraw cache stats
//	peekraw cache purge
//
// # Environment Variables
//
//   - PEEKRAW_CACHE_DIR: Thumbnail cache location (default: user cache dir)
//   - PEEKRAW_CONFIG_DIR: Settings location (default: user config dir)
//   - PORT: HTTP listen port (default: 8080)
//   - MEMORY_CACHE_ITEMS: Thumbnails kept in memory (default: 100)
//   - DISK_CACHE_SIZE: Disk cache budget, 0 disables (default: 100MiB)
//   - DISK_CACHE_COMPRESSION: Compress cached thumbnails with zstd
//   - THUMBNAIL_SIZE: Thumbnail bounding box in pixels (default: 400)
//   - DECODE_WORKERS: Decode concurrency, a number or auto (default: 1)
//   - ENUMERATION_ERRORS: ignore, warn or strict (default: warn)
//   - VIPS_ENABLED: Use libvips for full-size decodes
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: Heap limit and backpressure
//   - LOG_LEVEL, DEBUG, LOG_FILE: Logging
package main
