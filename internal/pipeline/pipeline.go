package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"peekraw/internal/decoder"
	"peekraw/internal/fileref"
	"peekraw/internal/logging"
	"peekraw/internal/metrics"

	"github.com/sourcegraph/conc/stream"
)

// Cache is the part of the thumbnail cache the pipeline uses.
type Cache interface {
	Get(key fileref.ID) (image.Image, bool)
	Put(key fileref.ID, img image.Image)
}

// Tracker receives per-item state before the handler sees the event.
type Tracker interface {
	MarkReady(id fileref.ID)
	MarkUnsupported(id fileref.ID)
}

// Dispatcher schedules work on the interactive context without blocking.
type Dispatcher interface {
	Dispatch(fn func())
}

// Handler consumes events on the interactive context.
type Handler func(Event)

// Gate holds decodes back while resources are short. Wait returns when a
// decode may proceed or ctx is done.
type Gate interface {
	Wait(ctx context.Context) error
}

// Config wires a Pipeline to its collaborators.
type Config struct {
	Cache      Cache
	Decoder    decoder.Decoder
	Dispatcher Dispatcher
	// Tracker, Handler and Gate are optional.
	Tracker Tracker
	Handler Handler
	Gate    Gate
	// Workers > 1 decodes concurrently; events still follow batch order.
	Workers int
}

// Pipeline decodes thumbnails for a batch of files in the background and
// reports each item as it completes. Starting a new run cancels the
// previous one; at most one run decodes at a time.
type Pipeline struct {
	cache      Cache
	decoder    decoder.Decoder
	dispatcher Dispatcher
	tracker    Tracker
	handler    Handler
	gate       Gate
	workers    int

	current atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// New creates a pipeline. Cache, Decoder and Dispatcher are required.
func New(cfg Config) *Pipeline {
	if cfg.Cache == nil || cfg.Decoder == nil || cfg.Dispatcher == nil {
		panic("pipeline: Cache, Decoder and Dispatcher are required")
	}
	return &Pipeline{
		cache:      cfg.Cache,
		decoder:    cfg.Decoder,
		dispatcher: cfg.Dispatcher,
		tracker:    cfg.Tracker,
		handler:    cfg.Handler,
		gate:       cfg.Gate,
		workers:    max(cfg.Workers, 1),
	}
}

// Current returns the id of the latest run.
func (p *Pipeline) Current() RunID {
	return RunID(p.current.Load())
}

// Start cancels the in-flight run, if any, and begins a run over batch. It
// must be called on the interactive context so that no event of an older
// run can be delivered after it returns.
func (p *Pipeline) Start(batch []fileref.FileRef) RunID {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.Current()
	}

	if p.cancel != nil {
		select {
		case <-p.done:
		default:
			metrics.PipelineRunsCanceled.Inc()
			logging.Debug("Canceling pipeline run %d", p.Current())
		}
		p.cancel()
	}

	id := RunID(p.current.Add(1))
	ctx, cancel := context.WithCancel(context.Background())
	prev := p.done
	done := make(chan struct{})
	p.cancel, p.done = cancel, done
	p.mu.Unlock()

	metrics.PipelineRunsTotal.Inc()
	logging.Debug("Starting pipeline run %d with %d items", id, len(batch))

	p.emit(Event{Kind: RunStarted, Run: id})

	// Copy so the caller may reuse its slice.
	items := append([]fileref.FileRef(nil), batch...)
	go p.run(ctx, id, items, prev, done)
	return id
}

// Wait blocks until the latest run has exited, finished or canceled.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close cancels the active run and waits for it. Later Starts are ignored.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.Wait()
}

func (p *Pipeline) run(ctx context.Context, id RunID, batch []fileref.FileRef, prev <-chan struct{}, done chan struct{}) {
	defer close(done)

	// Serialize with the run being replaced.
	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	metrics.PipelineIsRunning.Set(1)
	defer metrics.PipelineIsRunning.Set(0)

	// Phase 1: everything already cached, in batch order.
	misses := make([]fileref.FileRef, 0, len(batch))
	for _, ref := range batch {
		if ctx.Err() != nil {
			return
		}
		if img, ok := p.cache.Get(ref.ID()); ok {
			metrics.PipelineItemsTotal.WithLabelValues("cache_hit").Inc()
			p.emit(Event{Kind: ItemReady, Run: id, ID: ref.ID(), Image: img, FromCache: true})
			continue
		}
		misses = append(misses, ref)
	}

	// Phase 2: decode the rest, in batch order.
	if p.workers > 1 && len(misses) > 1 {
		p.decodeConcurrently(ctx, id, misses)
	} else {
		for _, ref := range misses {
			if p.wait(ctx) != nil {
				return
			}
			img, err := p.decode(ref)
			p.complete(ctx, id, ref, img, err)
		}
	}

	if ctx.Err() != nil {
		logging.Debug("Pipeline run %d canceled", id)
		return
	}

	metrics.PipelineRunDuration.Observe(time.Since(start).Seconds())
	logging.Debug("Pipeline run %d finished in %v (%d cached, %d decoded)",
		id, time.Since(start).Round(time.Millisecond), len(batch)-len(misses), len(misses))
	p.emit(Event{Kind: RunFinished, Run: id})
}

// decodeConcurrently decodes on a bounded pool. Completions run in
// submission order, one at a time.
func (p *Pipeline) decodeConcurrently(ctx context.Context, id RunID, refs []fileref.FileRef) {
	s := stream.New().WithMaxGoroutines(p.workers)
	for _, ref := range refs {
		if p.wait(ctx) != nil {
			break
		}
		s.Go(func() stream.Callback {
			if ctx.Err() != nil {
				return func() {}
			}
			img, err := p.decode(ref)
			return func() { p.complete(ctx, id, ref, img, err) }
		})
	}
	s.Wait()
}

func (p *Pipeline) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.gate == nil {
		return nil
	}
	return p.gate.Wait(ctx)
}

func (p *Pipeline) decode(ref fileref.FileRef) (image.Image, error) {
	var img image.Image
	err := ref.WithAccess(func(path string) error {
		var err error
		img, err = p.decoder.DecodeThumbnail(path)
		return err
	})
	return img, err
}

// complete caches and reports one decode result. Results that arrive after
// the run was canceled are dropped.
func (p *Pipeline) complete(ctx context.Context, id RunID, ref fileref.FileRef, img image.Image, err error) {
	if ctx.Err() != nil {
		logging.Debug("Discarding result for %s from canceled run %d", ref, id)
		return
	}

	if err != nil {
		metrics.PipelineItemsTotal.WithLabelValues("failed").Inc()
		switch {
		case errors.Is(err, fileref.ErrStaleReference):
			logging.Warn("Skipping %s: %v", ref, err)
		case errors.Is(err, decoder.ErrNoThumbnail):
			logging.Debug("No thumbnail in %s", ref)
		default:
			logging.Debug("Failed to decode %s: %v", ref, err)
		}
		p.emit(Event{Kind: ItemFailed, Run: id, ID: ref.ID(), Err: err})
		return
	}

	p.cache.Put(ref.ID(), img)
	metrics.PipelineItemsTotal.WithLabelValues("decoded").Inc()
	p.emit(Event{Kind: ItemReady, Run: id, ID: ref.ID(), Image: img})
}

func (p *Pipeline) emit(ev Event) {
	p.dispatcher.Dispatch(func() { p.deliver(ev) })
}

// deliver runs on the interactive context.
func (p *Pipeline) deliver(ev Event) {
	if ev.Run != p.Current() {
		metrics.PipelineStaleEventsDiscarded.Inc()
		return
	}

	if p.tracker != nil {
		switch ev.Kind {
		case ItemReady:
			p.tracker.MarkReady(ev.ID)
		case ItemFailed:
			p.tracker.MarkUnsupported(ev.ID)
		}
	}

	if p.handler != nil {
		p.handler(ev)
	}
}
