// Package startup handles configuration loading and the startup/shutdown
// logging shared by the commands.
//
// # Configuration
//
// Configuration is read through a viper instance from [NewViper], which
// binds every key to its environment variable and default. Commands bind
// their flags on top and pass the instance to [LoadConfigFrom]; [LoadConfig]
// reads the environment alone.
//
//   - PEEKRAW_CACHE_DIR: Cache directory (default: $XDG_CACHE_HOME/peekraw)
//   - PEEKRAW_CONFIG_DIR: Settings directory (default: $XDG_CONFIG_HOME/peekraw)
//   - MEMORY_CACHE_ITEMS: Thumbnails kept in memory (default: 100)
//   - DISK_CACHE_SIZE: Disk tier budget, e.g. "100MiB"; 0 disables it (default: 100MiB)
//   - DISK_CACHE_COMPRESSION: zstd-compress disk entries (default: false)
//   - THUMBNAIL_SIZE: Longest thumbnail edge in pixels (default: 400)
//   - DECODE_WORKERS: Concurrent decodes, or "auto" (default: 1)
//   - ENUMERATION_ERRORS: ignore, warn or strict (default: warn)
//   - VIPS_ENABLED: Use libvips for full-size decoding (default: false)
//   - PORT: HTTP port for the serve command (default: 8080)
//   - LOG_LEVEL, DEBUG, LOG_FILE: see package logging
//   - MEMORY_LIMIT, MEMORY_RATIO, GOMEMLIMIT: see package memory
//
// # Directory Setup
//
//   - Config directory: required, created if missing
//   - Cache directory: optional; when it is not writable thumbnails are
//     cached in memory only
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
//
// # Lifecycle Logging
//
//   - [PrintBanner], [LogSystemInfo], [LogConfig]: startup summary
//   - [LogMemoryConfig], [LogCacheInit], [LogDecoderInit]: component setup
//   - [LogHTTPRoutes]: registered HTTP routes (debug level)
//   - [LogServerStarted]: endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownComplete]: graceful shutdown
package startup
