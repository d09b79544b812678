package gallery

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"peekraw/internal/decoder"
	"peekraw/internal/fileref"
	"peekraw/internal/mainloop"
	"peekraw/internal/pipeline"
	"peekraw/internal/thumbcache"
)

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
}

type fixture struct {
	gallery *Gallery
	loop    *mainloop.Loop
	cache   *thumbcache.Cache
	refs    []fileref.FileRef
	events  []pipeline.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 800, 600)
	writeJPEG(t, filepath.Join(dir, "b.jpg"), 300, 200)
	if err := os.WriteFile(filepath.Join(dir, "c.nef"), []byte("not a raw file"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	bookmarks := fileref.NewBookmarks(fileref.NewGrants())
	var refs []fileref.FileRef
	for _, name := range []string{"a.jpg", "b.jpg", "c.nef"} {
		ref, err := bookmarks.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
		refs = append(refs, ref)
	}

	cache, err := thumbcache.Open(context.Background(), thumbcache.Options{
		MemoryItems: 10,
		Disk:        thumbcache.DiskOptions{Dir: filepath.Join(dir, "cache")},
	})
	if err != nil {
		t.Fatalf("thumbcache.Open() error = %v", err)
	}

	loop := mainloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()

	f := &fixture{loop: loop, cache: cache, refs: refs}
	f.gallery = New(Config{
		Loop:    loop,
		Cache:   cache,
		Decoder: decoder.NewRaw(decoder.Options{ThumbnailSize: 200}),
		Workers: 1,
		OnEvent: func(ev pipeline.Event) { f.events = append(f.events, ev) },
	})

	t.Cleanup(func() {
		f.gallery.Close()
		cancel()
		<-loop.Done()
		_ = cache.Close()
	})
	return f
}

// settle waits for the run and for its events to be delivered.
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	f.gallery.Wait()
}

func TestGallery_OpenProducesStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.gallery.Open(ctx, f.refs)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.settle(t)

	if id != f.gallery.Current() {
		t.Errorf("Open() returned run %d, current is %d", id, f.gallery.Current())
	}

	want := []State{Ready, Ready, Unsupported}
	for i, state := range want {
		if got := f.gallery.State(f.refs[i].ID()); got != state {
			t.Errorf("State(%s) = %s, want %s", f.refs[i], got, state)
		}
	}

	thumb, ok := f.gallery.Thumbnail(f.refs[0].ID())
	if !ok {
		t.Fatal("Thumbnail(a) missing")
	}
	if b := thumb.Bounds(); b.Dx() != 200 || b.Dy() != 150 {
		t.Errorf("thumbnail size = %dx%d, want 200x150", b.Dx(), b.Dy())
	}

	var last pipeline.EventKind = -1
	if n := len(f.events); n > 0 {
		last = f.events[n-1].Kind
	}
	if last != pipeline.RunFinished {
		t.Errorf("last event = %v, want run_finished", last)
	}

	stats := f.gallery.GetStats()
	if stats.ReadyItems != 2 || stats.UnsupportedItems != 1 || stats.PendingItems != 0 {
		t.Errorf("GetStats() = %+v", stats)
	}
}

func TestGallery_RefreshReusesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.gallery.Open(ctx, f.refs); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.settle(t)
	f.events = nil
	before := f.gallery.Snapshot().Version()

	if _, err := f.gallery.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	f.settle(t)

	if f.gallery.Snapshot().Version() <= before {
		t.Error("Refresh() did not advance the snapshot version")
	}
	cached := 0
	for _, ev := range f.events {
		if ev.Kind == pipeline.ItemReady && ev.FromCache {
			cached++
		}
	}
	if cached != 2 {
		t.Errorf("%d items served from cache on refresh, want 2", cached)
	}
	if got := f.gallery.State(f.refs[2].ID()); got != Unsupported {
		t.Errorf("State(c) after refresh = %s, want unsupported", got)
	}
}

func TestGallery_Image(t *testing.T) {
	f := newFixture(t)
	if _, err := f.gallery.Open(context.Background(), f.refs); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	f.settle(t)

	img, err := f.gallery.Image(f.refs[0].ID())
	if err != nil {
		t.Fatalf("Image() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Errorf("Image() size = %dx%d, want 800x600", b.Dx(), b.Dy())
	}

	if _, err := f.gallery.Image("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Image(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := f.gallery.Image(f.refs[2].ID()); err == nil {
		t.Error("Image() of an unreadable file should fail")
	}
}

func TestGallery_WaitAppliesFinalEvents(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		if _, err := f.gallery.Open(context.Background(), f.refs); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		f.gallery.Wait()

		// Read without another loop round-trip.
		if got := f.gallery.State(f.refs[2].ID()); got != Unsupported {
			t.Fatalf("iteration %d: State(c) = %s, want unsupported", i, got)
		}
		pending, ready, unsupported := f.gallery.Snapshot().Counts()
		if pending != 0 || ready != 2 || unsupported != 1 {
			t.Fatalf("iteration %d: counts = %d/%d/%d, want 0/2/1", i, pending, ready, unsupported)
		}
	}
}

func TestGallery_OpenAppliesAfterCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id, err := f.gallery.Open(ctx, f.refs)
	if err != nil {
		t.Fatalf("Open() with canceled context error = %v, want nil", err)
	}
	if id != f.gallery.Current() {
		t.Errorf("Open() returned run %d, current is %d", id, f.gallery.Current())
	}
	if got := len(f.gallery.Snapshot().Items()); got != len(f.refs) {
		t.Errorf("snapshot has %d items, want %d", got, len(f.refs))
	}
	f.settle(t)

	if _, err := f.gallery.Refresh(ctx); err != nil {
		t.Errorf("Refresh() with canceled context error = %v, want nil", err)
	}
	f.settle(t)
}
