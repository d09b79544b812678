package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"peekraw/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := New(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestNew_CreatesSchema(t *testing.T) {
	d := openTestDB(t)

	if _, err := os.Stat(d.Path()); err != nil {
		t.Fatalf("index file not created: %v", err)
	}

	entries, err := d.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("new index has %d entries, want 0", len(entries))
	}
}

func TestNew_UnwritableDirectory(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "missing", "index.db"))
	if err == nil {
		t.Fatal("New() in a missing directory should fail")
	}
}

func TestUpsertAndEntries(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	created := time.Unix(1_700_000_000, 0)

	for i, key := range []string{"c", "a", "b"} {
		if err := d.Upsert(ctx, Entry{Key: key, Seq: uint64(i + 1), Size: int64(100 * (i + 1)), CreatedAt: created}); err != nil {
			t.Fatalf("Upsert(%s) error = %v", key, err)
		}
	}

	// Rewriting a key moves it to the newest sequence.
	if err := d.Upsert(ctx, Entry{Key: "c", Seq: 4, Size: 50}); err != nil {
		t.Fatalf("Upsert(c) error = %v", err)
	}

	entries, err := d.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}

	want := []struct {
		key  string
		seq  uint64
		size int64
	}{
		{"a", 2, 200},
		{"b", 3, 300},
		{"c", 4, 50},
	}
	if len(entries) != len(want) {
		t.Fatalf("Entries() returned %d rows, want %d", len(entries), len(want))
	}
	for i, w := range want {
		e := entries[i]
		if e.Key != w.key || e.Seq != w.seq || e.Size != w.size {
			t.Errorf("entries[%d] = %+v, want key=%s seq=%d size=%d", i, e, w.key, w.seq, w.size)
		}
	}
	if !entries[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", entries[0].CreatedAt, created)
	}
}

func TestDeleteAndPurge(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	for i, key := range []string{"a", "b", "c"} {
		if err := d.Upsert(ctx, Entry{Key: key, Seq: uint64(i + 1), Size: 1}); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	if err := d.Delete(ctx, "a", "missing", "c"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := d.Delete(ctx); err != nil {
		t.Fatalf("Delete() with no keys error = %v", err)
	}

	entries, err := d.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "b" {
		t.Fatalf("after Delete entries = %+v, want only b", entries)
	}

	if err := d.Purge(ctx); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if err := d.Vacuum(); err != nil {
		t.Fatalf("Vacuum() error = %v", err)
	}
	entries, err = d.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("after Purge entries = %+v, want none", entries)
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	d, err := New(ctx, path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.Upsert(ctx, Entry{Key: "k", Seq: 7, Size: 42}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	d, err = New(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer d.Close()

	entries, err := d.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Seq != 7 || entries[0].Size != 42 {
		t.Errorf("entries after reopen = %+v", entries)
	}
}

func TestRecordQueryMetrics(t *testing.T) {
	before := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("test_op", "error"))
	recordQuery("test_op", time.Now(), errors.New("boom"))
	after := testutil.ToFloat64(metrics.DBQueryTotal.WithLabelValues("test_op", "error"))

	if after != before+1 {
		t.Errorf("error counter = %v, want %v", after, before+1)
	}
}
