// Package metrics provides Prometheus instrumentation for peekraw.
//
// All metrics are prefixed with "peekraw_" and registered on the default
// registry through promauto, so importing the package is enough to make
// them available on the /metrics endpoint served by the serve command.
//
// Metrics are grouped by the component that records them:
//
//   - HTTP: request counts, durations and in-flight requests
//   - Cache: per-tier hits, misses and evictions, disk tier size, recovered
//     disk errors and write-through queue depth
//   - Pipeline: runs started and canceled, item outcomes, stale events
//     discarded by the run guard, run duration
//   - Decoder: decode durations and failures by reason
//   - Gallery: snapshot version and items by state (sampled by Collector)
//   - Filesystem: stale file handle retries, enumeration counts
//   - Database: disk index query counts, durations and file size
//   - Memory: GOMEMLIMIT, heap usage ratio and decode pauses
//
// Gauges that describe aggregate state are sampled by a Collector from a
// StatsProvider instead of being updated on every mutation.
package metrics
