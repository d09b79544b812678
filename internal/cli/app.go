package cli

import (
	"context"
	"fmt"
	"time"

	"peekraw/internal/decoder"
	"peekraw/internal/fileref"
	"peekraw/internal/filesource"
	"peekraw/internal/gallery"
	"peekraw/internal/logging"
	"peekraw/internal/mainloop"
	"peekraw/internal/memory"
	"peekraw/internal/pipeline"
	"peekraw/internal/settings"
	"peekraw/internal/startup"
	"peekraw/internal/thumbcache"
)

// app holds the components shared by the scan and serve commands.
type app struct {
	settings *settings.Store
	cache    *thumbcache.Cache
	loop     *mainloop.Loop
	monitor  *memory.Monitor
	grants   *fileref.Grants
	source   *filesource.Source
	gallery  *gallery.Gallery

	stopLoop context.CancelFunc
	vips     bool
}

func newApp(ctx context.Context, cfg *startup.Config, onEvent pipeline.Handler) (*app, error) {
	store, err := settings.Load(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	cacheStart := time.Now()
	cache, err := thumbcache.Open(ctx, thumbcache.Options{
		MemoryItems: cfg.MemoryCacheItems,
		Disk:        cfg.DiskOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open thumbnail cache: %w", err)
	}
	startup.LogCacheInit(time.Since(cacheStart), cache.Stats())

	a := &app{settings: store, cache: cache}

	if cfg.VipsEnabled {
		if err := decoder.InitVips(); err != nil {
			logging.Warn("libvips unavailable, using pure Go decoders: %v", err)
		} else {
			a.vips = true
		}
	}
	dec := decoder.NewRaw(decoder.Options{
		ThumbnailSize: cfg.ThumbnailSize,
		UseVips:       a.vips,
	})
	startup.LogDecoderInit(a.vips, cfg.DecodeWorkers, cfg.ThumbnailSize)

	a.monitor = memory.NewMonitor(memory.DefaultConfig())
	a.monitor.Start()

	a.loop = mainloop.New()
	loopCtx, cancel := context.WithCancel(context.Background())
	a.stopLoop = cancel
	go func() {
		if err := a.loop.Run(loopCtx); err != nil && loopCtx.Err() == nil {
			logging.Error("Main loop stopped: %v", err)
		}
	}()

	a.grants = fileref.NewGrants()
	a.source = filesource.New(filesource.Options{
		Policy:   cfg.EnumerationPolicy,
		Scope:    a.grants,
		Settings: store,
	})
	a.gallery = gallery.New(gallery.Config{
		Loop:    a.loop,
		Cache:   cache,
		Decoder: dec,
		Workers: cfg.DecodeWorkers,
		OnEvent: onEvent,
		Gate:    a.monitor,
	})
	return a, nil
}

// open replaces the gallery with the given selection.
func (a *app) open(ctx context.Context, paths []string) (*filesource.Listing, pipeline.RunID, error) {
	listing, err := a.source.Pick(ctx, paths)
	if err != nil {
		return nil, 0, err
	}
	run, err := a.gallery.Open(ctx, listing.Refs)
	if err != nil {
		return nil, 0, err
	}
	return listing, run, nil
}

func (a *app) close() error {
	a.gallery.Close()
	a.stopLoop()
	<-a.loop.Done()
	a.monitor.Stop()

	if n := a.grants.Outstanding(); n > 0 {
		logging.Warn("%d file access grants still held at exit", n)
	}

	err := a.cache.Close()
	if a.vips {
		decoder.ShutdownVips()
	}
	return err
}
