/*
Package workers sizes worker pools from the CPUs actually available.

runtime.NumCPU reports the host's CPUs even inside a container, while
GOMAXPROCS follows the container's CPU limit (Go 1.19+). Count starts
from GOMAXPROCS:

	workers.ForCPU(4)    // decoding: one per CPU, at most 4
	workers.Count(2, 16) // two per CPU, at most 16

A positive integer in DECODE_WORKERS overrides the calculation. Parse turns
the configured value ("auto" or a number) into a pool size for the
thumbnail pipeline.
*/
package workers
