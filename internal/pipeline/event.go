package pipeline

import (
	"fmt"
	"image"

	"peekraw/internal/fileref"
)

// RunID identifies one run. IDs increase monotonically; zero means no run
// has started.
type RunID uint64

// EventKind is the type of a pipeline event.
type EventKind int

const (
	// RunStarted is emitted by Start before any item event of the run.
	RunStarted EventKind = iota
	// ItemReady carries a thumbnail that is now in the cache.
	ItemReady
	// ItemFailed reports an item that could not be decoded. It is not
	// retried within the run.
	ItemFailed
	// RunFinished is emitted after the last item of a run that was not
	// canceled.
	RunFinished
)

func (k EventKind) String() string {
	switch k {
	case RunStarted:
		return "run_started"
	case ItemReady:
		return "item_ready"
	case ItemFailed:
		return "item_failed"
	case RunFinished:
		return "run_finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is delivered to the handler on the interactive context.
type Event struct {
	Kind  EventKind
	Run   RunID
	ID    fileref.ID
	Image image.Image
	Err   error
	// FromCache is set on ItemReady events served without decoding.
	FromCache bool
}
