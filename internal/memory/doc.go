// Package memory keeps thumbnail decoding inside the container's memory
// budget.
//
// Full-size RAW decodes allocate tens of megabytes each, much of it outside
// the Go heap when libvips is enabled. Two mechanisms bound that:
//
//   - [ConfigureFromEnv] sets GOMEMLIMIT from MEMORY_LIMIT (bytes or a size
//     such as "2GiB") scaled by MEMORY_RATIO (default 0.75). An explicit
//     GOMEMLIMIT wins.
//   - [Monitor] samples the heap and, once usage crosses the critical
//     water mark, holds new decodes back until it falls under the high
//     water mark. It is passed to the pipeline as its Gate.
//
// Without a limit the monitor never pauses.
//
//	memory.ConfigureFromEnv()
//	mon := memory.NewMonitor(memory.DefaultConfig())
//	mon.Start()
//	defer mon.Stop()
package memory
