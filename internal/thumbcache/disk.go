package thumbcache

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"peekraw/internal/database"
	"peekraw/internal/logging"
	"peekraw/internal/metrics"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/btree"
	"golang.org/x/crypto/blake2b"
)

// DefaultDiskBytes is the default byte limit of the disk tier.
const DefaultDiskBytes = 100 << 20

const (
	blobDir   = "blobs"
	blobExt   = ".thumb"
	tmpPrefix = ".tmp-"
	indexFile = "index.db"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ErrTooLarge is returned by DiskStore.Put for a blob bigger than the whole
// quota.
var ErrTooLarge = errors.New("entry larger than disk cache limit")

// DiskOptions configures a DiskStore.
type DiskOptions struct {
	// Dir holds the blobs directory and the index database.
	Dir string
	// MaxBytes bounds the tracked size of all blobs.
	MaxBytes int64
	// Compress stores blobs zstd-compressed. Blobs written either way are
	// readable regardless of the current setting.
	Compress bool
}

type diskEntry struct {
	seq  uint64
	size int64
}

// DiskStore is a byte-size bounded blob store that evicts in write order,
// oldest first.
type DiskStore struct {
	dir      string
	maxBytes int64
	db       *database.Database

	enc *zstd.Encoder
	dec *zstd.Decoder

	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	entries map[string]diskEntry
	order   btree.Map[uint64, string]
	total   int64
	nextSeq uint64
}

// OpenDisk opens the store in opts.Dir, loading the index and reconciling it
// with the blobs actually present.
func OpenDisk(ctx context.Context, opts DiskOptions) (*DiskStore, error) {
	if opts.Dir == "" {
		return nil, errors.New("disk cache directory is required")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultDiskBytes
	}

	if err := os.MkdirAll(filepath.Join(opts.Dir, blobDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := database.New(ctx, filepath.Join(opts.Dir, indexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	d := &DiskStore{
		dir:      opts.Dir,
		maxBytes: opts.MaxBytes,
		db:       db,
		dec:      dec,
		entries:  make(map[string]diskEntry),
		nextSeq:  1,
	}

	if opts.Compress {
		d.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
	}

	if err := d.load(ctx); err != nil {
		d.Close()
		return nil, err
	}

	logging.Info("Disk cache: %s, %d entries, %s of %s",
		opts.Dir, len(d.entries), humanize.IBytes(uint64(d.total)), humanize.IBytes(uint64(d.maxBytes)))
	return d, nil
}

// load fills the in-memory index from the database. Rows without a blob are
// dropped, and blobs without a row are deleted.
func (d *DiskStore) load(ctx context.Context) error {
	rows, err := d.db.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cache index: %w", err)
	}

	var stale []string
	known := make(map[string]bool, len(rows))
	for _, row := range rows {
		path := d.blobPath(row.Key)
		info, err := os.Stat(path)
		if err != nil {
			stale = append(stale, row.Key)
			continue
		}
		d.entries[row.Key] = diskEntry{seq: row.Seq, size: info.Size()}
		d.order.Set(row.Seq, row.Key)
		d.total += info.Size()
		if row.Seq >= d.nextSeq {
			d.nextSeq = row.Seq + 1
		}
		known[filepath.Base(path)] = true
	}

	if len(stale) > 0 {
		logging.Warn("Dropping %d cache index rows with missing blobs", len(stale))
		if err := d.db.Delete(ctx, stale...); err != nil {
			metrics.CacheDiskErrorsTotal.WithLabelValues("index").Inc()
			logging.Warn("Failed to drop stale cache index rows: %v", err)
		}
	}

	d.sweep(known)

	d.mu.Lock()
	evicted := d.evictLocked()
	d.mu.Unlock()
	d.forget(evicted)

	d.updateMetrics()
	return nil
}

// sweep removes temp files left by interrupted writes and blobs the index
// does not know about.
func (d *DiskStore) sweep(known map[string]bool) {
	dir := filepath.Join(d.dir, blobDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		logging.Warn("Failed to list cache blobs: %v", err)
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || known[name] {
			continue
		}
		if strings.HasPrefix(name, tmpPrefix) || strings.HasSuffix(name, blobExt) {
			logging.Debug("Removing orphaned cache file %s", name)
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}

func (d *DiskStore) blobPath(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return filepath.Join(d.dir, blobDir, hex.EncodeToString(sum[:])+blobExt)
}

// Get returns the blob stored for key. A missing key returns ok=false and a
// nil error; a read failure returns ok=false and the error.
func (d *DiskStore) Get(key string) (data []byte, ok bool, err error) {
	d.mu.Lock()
	e, found := d.entries[key]
	d.mu.Unlock()
	if !found {
		return nil, false, nil
	}

	raw, err := os.ReadFile(d.blobPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.dropMissing(key, e.seq)
		}
		return nil, false, err
	}

	if bytes.HasPrefix(raw, zstdMagic) {
		raw, err = d.dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, false, fmt.Errorf("failed to decompress blob: %w", err)
		}
	}
	return raw, true, nil
}

// Contains reports whether key has a blob.
func (d *DiskStore) Contains(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[key]
	return ok
}

// Put stores data for key, replacing any previous blob, then evicts the
// oldest writes until the store is within its limit.
func (d *DiskStore) Put(key string, data []byte) error {
	if d.enc != nil {
		data = d.enc.EncodeAll(data, make([]byte, 0, len(data)))
	}
	size := int64(len(data))
	if size > d.maxBytes {
		return fmt.Errorf("%w: %s", ErrTooLarge, humanize.IBytes(uint64(size)))
	}

	path := d.blobPath(key)
	tmp := filepath.Join(d.dir, blobDir, tmpPrefix+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit blob: %w", err)
	}

	d.mu.Lock()
	if old, ok := d.entries[key]; ok {
		d.order.Delete(old.seq)
		d.total -= old.size
	}
	seq := d.nextSeq
	d.nextSeq++
	d.entries[key] = diskEntry{seq: seq, size: size}
	d.order.Set(seq, key)
	d.total += size
	evicted := d.evictLocked()
	d.mu.Unlock()

	if err := d.db.Upsert(context.Background(), database.Entry{Key: key, Seq: seq, Size: size, CreatedAt: time.Now()}); err != nil {
		metrics.CacheDiskErrorsTotal.WithLabelValues("index").Inc()
		logging.Warn("Failed to record cache entry in index: %v", err)
	}
	d.forget(evicted)
	d.updateMetrics()
	return nil
}

// evictLocked drops the oldest entries until the total fits the limit and
// returns their keys. Blob files are removed here; index rows by forget.
func (d *DiskStore) evictLocked() []string {
	var evicted []string
	for d.total > d.maxBytes {
		seq, key, ok := d.order.Min()
		if !ok {
			break
		}
		e := d.entries[key]
		d.order.Delete(seq)
		delete(d.entries, key)
		d.total -= e.size

		if err := os.Remove(d.blobPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			metrics.CacheDiskErrorsTotal.WithLabelValues("evict").Inc()
			logging.Warn("Failed to remove evicted blob: %v", err)
		}
		metrics.CacheEvictionsTotal.WithLabelValues("disk").Inc()
		logging.Debug("Evicted %s from disk cache (%s)", key, humanize.IBytes(uint64(e.size)))
		evicted = append(evicted, key)
	}
	return evicted
}

func (d *DiskStore) forget(keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := d.db.Delete(context.Background(), keys...); err != nil {
		metrics.CacheDiskErrorsTotal.WithLabelValues("index").Inc()
		logging.Warn("Failed to remove evicted entries from index: %v", err)
	}
}

// Remove drops key from the store. Missing keys are ignored.
func (d *DiskStore) Remove(key string) {
	d.mu.Lock()
	e, ok := d.entries[key]
	if ok {
		d.order.Delete(e.seq)
		delete(d.entries, key)
		d.total -= e.size
	}
	d.mu.Unlock()
	if !ok {
		return
	}

	if err := os.Remove(d.blobPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		metrics.CacheDiskErrorsTotal.WithLabelValues("evict").Inc()
		logging.Warn("Failed to remove blob: %v", err)
	}
	d.forget([]string{key})
	d.updateMetrics()
}

// dropMissing forgets an entry whose blob has vanished, unless key was
// rewritten since seq was observed. The blob path is left alone so a
// concurrent Put's file survives.
func (d *DiskStore) dropMissing(key string, seq uint64) {
	d.mu.Lock()
	e, ok := d.entries[key]
	if ok && e.seq == seq {
		d.order.Delete(e.seq)
		delete(d.entries, key)
		d.total -= e.size
	}
	d.mu.Unlock()
	if !ok || e.seq != seq {
		return
	}

	logging.Debug("Cache blob for %s is missing, dropping entry", key)
	d.forget([]string{key})
	d.updateMetrics()
}

// Purge removes every blob and index row.
func (d *DiskStore) Purge() error {
	d.mu.Lock()
	keys := make([]string, 0, len(d.entries))
	for key := range d.entries {
		keys = append(keys, key)
	}
	d.entries = make(map[string]diskEntry)
	d.order = btree.Map[uint64, string]{}
	d.total = 0
	d.mu.Unlock()

	for _, key := range keys {
		if err := os.Remove(d.blobPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("Failed to remove blob: %v", err)
		}
	}
	d.sweep(nil)

	if err := d.db.Purge(context.Background()); err != nil {
		return fmt.Errorf("failed to purge cache index: %w", err)
	}
	if err := d.db.Vacuum(); err != nil {
		logging.Warn("Failed to vacuum cache index: %v", err)
	}
	d.updateMetrics()
	return nil
}

// Size returns the tracked byte total and entry count.
func (d *DiskStore) Size() (total int64, entries int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total, len(d.entries)
}

// Limit returns the byte limit.
func (d *DiskStore) Limit() int64 {
	return d.maxBytes
}

// Keys returns the stored keys, oldest write first.
func (d *DiskStore) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	keys := make([]string, 0, d.order.Len())
	d.order.Scan(func(_ uint64, key string) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func (d *DiskStore) updateMetrics() {
	total, n := d.Size()
	metrics.CacheDiskBytes.Set(float64(total))
	metrics.CacheDiskEntries.Set(float64(n))
}

// Close releases the index and codecs. Further calls are no-ops.
func (d *DiskStore) Close() error {
	d.closeOnce.Do(func() {
		if d.enc != nil {
			_ = d.enc.Close()
		}
		if d.dec != nil {
			d.dec.Close()
		}
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}
