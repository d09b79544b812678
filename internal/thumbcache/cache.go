package thumbcache

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"peekraw/internal/fileref"
	"peekraw/internal/logging"
	"peekraw/internal/metrics"
)

// Options configures a Cache.
type Options struct {
	// MemoryItems bounds the memory tier. Zero means DefaultMemoryItems.
	MemoryItems int
	// Disk configures the disk tier. An empty Disk.Dir disables it.
	Disk DiskOptions
	// Codec encodes thumbnails for the disk tier. Nil means JPEGCodec.
	Codec Codec
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	MemoryItems   int
	MemoryLimit   int
	DiskBytes     int64
	DiskLimit     int64
	DiskEntries   int
	PendingWrites int

	MemoryHits uint64
	DiskHits   uint64
	Misses     uint64
}

type opKind int

const (
	opPut opKind = iota
	opRemove
	opPurge
	opFlush
)

type writeOp struct {
	kind opKind
	key  fileref.ID
	img  image.Image
	gen  uint64
	done chan error
}

// pendingWrite is a Put whose disk write has not completed yet.
type pendingWrite struct {
	img image.Image
	gen uint64
}

// Cache is a two-tier thumbnail cache: an LRU memory tier bounded by item
// count over a disk tier bounded by bytes. The disk tier is a superset of
// the memory tier once queued writes have been applied.
//
// Put writes through to disk asynchronously on a single writer goroutine,
// in call order. Get never blocks on that writer.
type Cache struct {
	codec Codec
	disk  *DiskStore

	mu      sync.Mutex
	mem     *memoryTier
	pending map[fileref.ID]pendingWrite
	gen     uint64
	epoch   uint64 // bumped by Remove and Purge

	qmu    sync.Mutex
	qcond  *sync.Cond
	queue  []writeOp
	closed bool
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error

	memoryHits atomic.Uint64
	diskHits   atomic.Uint64
	misses     atomic.Uint64
}

// Open creates a cache, opening the disk tier when configured.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	mem, err := newMemoryTier(opts.MemoryItems)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		codec:   opts.Codec,
		mem:     mem,
		pending: make(map[fileref.ID]pendingWrite),
		done:    make(chan struct{}),
	}
	if c.codec == nil {
		c.codec = JPEGCodec{Quality: DefaultJPEGQuality}
	}
	c.qcond = sync.NewCond(&c.qmu)

	if opts.Disk.Dir != "" {
		c.disk, err = OpenDisk(ctx, opts.Disk)
		if err != nil {
			return nil, err
		}
	}

	go c.writeLoop()
	return c, nil
}

// Get returns the thumbnail for key. A memory miss falls through to disk;
// a disk hit is promoted into memory. Disk failures are reported as a miss.
func (c *Cache) Get(key fileref.ID) (image.Image, bool) {
	c.mu.Lock()
	if img, ok := c.mem.get(key); ok {
		c.mu.Unlock()
		c.hit("memory", &c.memoryHits)
		return img, true
	}
	if p, ok := c.pending[key]; ok {
		c.mem.add(key, p.img)
		c.mu.Unlock()
		c.hit("memory", &c.memoryHits)
		return p.img, true
	}
	epoch := c.epoch
	c.mu.Unlock()
	metrics.CacheRequestsTotal.WithLabelValues("memory", "miss").Inc()

	img, ok := c.readDisk(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		// Removed or purged while reading.
		c.misses.Add(1)
		return nil, false
	}
	// A Put that landed during the read wins over the older disk copy.
	if cur, ok := c.mem.peek(key); ok {
		c.diskHits.Add(1)
		return cur, true
	}
	if p, ok := c.pending[key]; ok {
		c.mem.add(key, p.img)
		c.diskHits.Add(1)
		return p.img, true
	}
	c.mem.add(key, img)
	c.diskHits.Add(1)
	return img, true
}

// GetEncoded returns the thumbnail for key in the cache codec's format. A
// memory hit is encoded; a disk hit returns the stored bytes unchanged and
// is not promoted, so serving it costs no decode.
func (c *Cache) GetEncoded(key fileref.ID) ([]byte, bool, error) {
	c.mu.Lock()
	img, ok := c.mem.get(key)
	if !ok {
		if p, found := c.pending[key]; found {
			img, ok = p.img, true
		}
	}
	c.mu.Unlock()

	if ok {
		c.hit("memory", &c.memoryHits)
		data, err := c.codec.Encode(img)
		if err != nil {
			return nil, false, err
		}
		return data, true, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues("memory", "miss").Inc()

	if c.disk == nil {
		c.misses.Add(1)
		return nil, false, nil
	}
	data, ok, err := c.disk.Get(string(key))
	if err != nil {
		metrics.CacheDiskErrorsTotal.WithLabelValues("read").Inc()
		logging.Warn("Disk cache read failed for %s: %v", key, err)
	}
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues("disk", "miss").Inc()
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hit("disk", &c.diskHits)
	return data, true, nil
}

func (c *Cache) hit(tier string, counter *atomic.Uint64) {
	counter.Add(1)
	metrics.CacheRequestsTotal.WithLabelValues(tier, "hit").Inc()
}

func (c *Cache) readDisk(key fileref.ID) (image.Image, bool) {
	if c.disk == nil {
		return nil, false
	}

	data, ok, err := c.disk.Get(string(key))
	if err != nil {
		metrics.CacheDiskErrorsTotal.WithLabelValues("read").Inc()
		logging.Warn("Disk cache read failed for %s: %v", key, err)
	}
	if !ok {
		metrics.CacheRequestsTotal.WithLabelValues("disk", "miss").Inc()
		return nil, false
	}

	img, err := c.codec.Decode(data)
	if err != nil {
		metrics.CacheDiskErrorsTotal.WithLabelValues("read").Inc()
		metrics.CacheRequestsTotal.WithLabelValues("disk", "miss").Inc()
		logging.Warn("Disk cache entry for %s is unreadable: %v", key, err)
		return nil, false
	}
	metrics.CacheRequestsTotal.WithLabelValues("disk", "hit").Inc()
	return img, true
}

// Put stores img under key in memory and schedules the disk write. A later
// Put for the same key replaces the earlier one in both tiers.
func (c *Cache) Put(key fileref.ID, img image.Image) {
	c.mu.Lock()
	c.mem.add(key, img)
	c.gen++
	gen := c.gen
	if c.disk != nil {
		c.pending[key] = pendingWrite{img: img, gen: gen}
	}
	c.mu.Unlock()

	if c.disk != nil {
		c.enqueue(writeOp{kind: opPut, key: key, img: img, gen: gen})
	}
}

// Contains reports whether key is cached in either tier without touching
// recency.
func (c *Cache) Contains(key fileref.ID) bool {
	c.mu.Lock()
	if c.mem.contains(key) {
		c.mu.Unlock()
		return true
	}
	_, ok := c.pending[key]
	c.mu.Unlock()
	if ok {
		return true
	}
	return c.disk != nil && c.disk.Contains(string(key))
}

// Remove drops key from both tiers.
func (c *Cache) Remove(key fileref.ID) {
	c.mu.Lock()
	c.mem.remove(key)
	delete(c.pending, key)
	c.epoch++
	c.mu.Unlock()

	if c.disk != nil {
		c.enqueue(writeOp{kind: opRemove, key: key})
	}
}

// Purge empties both tiers and waits for the disk tier to be cleared.
func (c *Cache) Purge() error {
	c.mu.Lock()
	c.mem.purge()
	c.pending = make(map[fileref.ID]pendingWrite)
	c.epoch++
	c.mu.Unlock()

	if c.disk == nil {
		return nil
	}
	return c.wait(opPurge)
}

// Flush blocks until every write queued before the call has been applied.
func (c *Cache) Flush() {
	if c.disk == nil {
		return
	}
	_ = c.wait(opFlush)
}

func (c *Cache) wait(kind opKind) error {
	done := make(chan error, 1)
	if !c.enqueue(writeOp{kind: kind, done: done}) {
		return errClosed
	}
	return <-done
}

var errClosed = errors.New("cache is closed")

func (c *Cache) enqueue(op writeOp) bool {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	if c.closed {
		logging.Debug("Dropping cache write for %s: cache closed", op.key)
		return false
	}
	c.queue = append(c.queue, op)
	metrics.CacheWriteQueueDepth.Set(float64(len(c.queue)))
	c.qcond.Signal()
	return true
}

func (c *Cache) writeLoop() {
	defer close(c.done)
	for {
		c.qmu.Lock()
		for len(c.queue) == 0 && !c.closed {
			c.qcond.Wait()
		}
		if len(c.queue) == 0 {
			c.qmu.Unlock()
			return
		}
		op := c.queue[0]
		c.queue[0] = writeOp{}
		c.queue = c.queue[1:]
		metrics.CacheWriteQueueDepth.Set(float64(len(c.queue)))
		c.qmu.Unlock()

		c.apply(op)
	}
}

func (c *Cache) apply(op writeOp) {
	switch op.kind {
	case opPut:
		c.write(op)
	case opRemove:
		c.disk.Remove(string(op.key))
	case opPurge:
		op.done <- c.disk.Purge()
	case opFlush:
		op.done <- nil
	}
}

func (c *Cache) write(op writeOp) {
	defer func() {
		c.mu.Lock()
		if p, ok := c.pending[op.key]; ok && p.gen == op.gen {
			delete(c.pending, op.key)
		}
		c.mu.Unlock()
	}()

	// A newer Put or a Remove superseded this one while it was queued.
	c.mu.Lock()
	p, ok := c.pending[op.key]
	c.mu.Unlock()
	if !ok || p.gen != op.gen {
		return
	}

	data, err := c.codec.Encode(op.img)
	if err != nil {
		metrics.CacheDiskErrorsTotal.WithLabelValues("write").Inc()
		logging.Warn("Failed to encode thumbnail for %s: %v", op.key, err)
		return
	}

	if err := c.disk.Put(string(op.key), data); err != nil {
		if errors.Is(err, ErrTooLarge) {
			logging.Debug("Not caching %s on disk: %v", op.key, err)
			return
		}
		metrics.CacheDiskErrorsTotal.WithLabelValues("write").Inc()
		logging.Warn("Disk cache write failed for %s: %v", op.key, err)
	}
}

// Stats returns current sizes and hit counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		MemoryItems:   c.mem.len(),
		MemoryLimit:   c.mem.limit,
		PendingWrites: len(c.pending),
	}
	c.mu.Unlock()

	if c.disk != nil {
		s.DiskBytes, s.DiskEntries = c.disk.Size()
		s.DiskLimit = c.disk.Limit()
	}
	s.MemoryHits = c.memoryHits.Load()
	s.DiskHits = c.diskHits.Load()
	s.Misses = c.misses.Load()
	return s
}

// Disk returns the disk tier, or nil when it is disabled.
func (c *Cache) Disk() *DiskStore {
	return c.disk
}

// Close drains queued writes and closes the disk tier.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.qmu.Lock()
		c.closed = true
		c.qcond.Broadcast()
		c.qmu.Unlock()
		<-c.done

		if c.disk != nil {
			c.closeErr = c.disk.Close()
		}
	})
	return c.closeErr
}
