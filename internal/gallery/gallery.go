package gallery

import (
	"context"
	"errors"
	"fmt"
	"image"

	"peekraw/internal/decoder"
	"peekraw/internal/fileref"
	"peekraw/internal/mainloop"
	"peekraw/internal/metrics"
	"peekraw/internal/pipeline"
	"peekraw/internal/thumbcache"
)

// ErrNotFound is returned for ids that are not in the current snapshot.
var ErrNotFound = errors.New("item not in gallery")

// Config wires a Gallery.
type Config struct {
	Loop    *mainloop.Loop
	Cache   *thumbcache.Cache
	Decoder decoder.Decoder
	// Workers is the decode concurrency; 1 decodes sequentially.
	Workers int
	// OnEvent observes pipeline events after the snapshot has been updated.
	OnEvent pipeline.Handler
	// Gate, when set, holds decodes back under memory pressure.
	Gate pipeline.Gate
}

// Gallery ties a snapshot to the thumbnail pipeline. Open and Refresh hop
// onto the main loop, so they must not be called from it.
type Gallery struct {
	loop    *mainloop.Loop
	cache   *thumbcache.Cache
	decoder decoder.Decoder
	snap    *Snapshot
	pipe    *pipeline.Pipeline
}

// New creates a gallery with an empty snapshot.
func New(cfg Config) *Gallery {
	g := &Gallery{
		loop:    cfg.Loop,
		cache:   cfg.Cache,
		decoder: cfg.Decoder,
		snap:    NewSnapshot(),
	}
	g.pipe = pipeline.New(pipeline.Config{
		Cache:      cfg.Cache,
		Decoder:    cfg.Decoder,
		Dispatcher: cfg.Loop,
		Tracker:    g.snap,
		Handler:    cfg.OnEvent,
		Gate:       cfg.Gate,
		Workers:    cfg.Workers,
	})
	return g
}

// Open replaces the gallery contents with refs and starts producing their
// thumbnails. Once queued the switch always happens, so ctx only carries
// values; Open fails only when the loop has stopped.
func (g *Gallery) Open(ctx context.Context, refs []fileref.FileRef) (pipeline.RunID, error) {
	var id pipeline.RunID
	err := g.loop.Call(context.WithoutCancel(ctx), func() {
		g.snap.Reset(refs)
		id = g.pipe.Start(g.snap.Items())
	})
	return id, err
}

// Refresh restarts the pipeline over the current items. Unsupported items
// get another chance; cached thumbnails are reused. Like Open, it is not
// abandoned when ctx ends.
func (g *Gallery) Refresh(ctx context.Context) (pipeline.RunID, error) {
	var id pipeline.RunID
	err := g.loop.Call(context.WithoutCancel(ctx), func() {
		items := g.snap.Items()
		g.snap.Reset(items)
		id = g.pipe.Start(items)
	})
	return id, err
}

// Snapshot returns the live snapshot.
func (g *Gallery) Snapshot() *Snapshot {
	return g.snap
}

// State classifies one item.
func (g *Gallery) State(id fileref.ID) State {
	return g.snap.State(id, g.cache)
}

// Thumbnail returns the cached thumbnail for id.
func (g *Gallery) Thumbnail(id fileref.ID) (image.Image, bool) {
	return g.cache.Get(id)
}

// ThumbnailData returns the cached thumbnail for id as JPEG bytes. Disk hits
// are served as stored.
func (g *Gallery) ThumbnailData(id fileref.ID) ([]byte, bool, error) {
	return g.cache.GetEncoded(id)
}

// Image decodes the full image for an item on the caller's goroutine.
func (g *Gallery) Image(id fileref.ID) (image.Image, error) {
	ref, ok := g.snap.Item(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
	}

	var img image.Image
	err := ref.WithAccess(func(path string) error {
		var err error
		img, err = g.decoder.Decode(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// CacheStats returns the thumbnail cache statistics.
func (g *Gallery) CacheStats() thumbcache.Stats {
	return g.cache.Stats()
}

// Ping returns once the main loop has run a no-op, or ctx ends first.
func (g *Gallery) Ping(ctx context.Context) error {
	return g.loop.Call(ctx, func() {})
}

// Current returns the id of the latest pipeline run.
func (g *Gallery) Current() pipeline.RunID {
	return g.pipe.Current()
}

// Wait blocks until the latest pipeline run has exited and the events it
// dispatched have been applied to the snapshot. It must not be called from
// the main loop.
func (g *Gallery) Wait() {
	g.pipe.Wait()
	_ = g.loop.Call(context.Background(), func() {})
}

// Close stops the pipeline.
func (g *Gallery) Close() {
	g.pipe.Close()
}

// GetStats implements metrics.StatsProvider.
func (g *Gallery) GetStats() metrics.Stats {
	cs := g.cache.Stats()
	pending, ready, unsupported := g.snap.Counts()
	return metrics.Stats{
		MemoryItems:      cs.MemoryItems,
		DiskBytes:        cs.DiskBytes,
		DiskEntries:      cs.DiskEntries,
		PendingItems:     pending,
		ReadyItems:       ready,
		UnsupportedItems: unsupported,
		SnapshotVersion:  g.snap.Version(),
	}
}
