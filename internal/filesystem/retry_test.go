package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("Expected InitialBackoff=50ms, got %v", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("Expected MaxBackoff=500ms, got %v", config.MaxBackoff)
	}
}

func TestIsStaleHandle(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "ESTALE", err: syscall.ESTALE, expected: true},
		{name: "wrapped ESTALE", err: &fs.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, expected: true},
		{name: "fmt wrapped ESTALE", err: fmt.Errorf("outer: %w", syscall.ESTALE), expected: true},
		{name: "ENOENT", err: syscall.ENOENT, expected: false},
		{name: "plain error", err: errors.New("boom"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStaleHandle(tt.err); got != tt.expected {
				t.Errorf("IsStaleHandle(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetry_RecoversFromStaleHandle(t *testing.T) {
	calls := 0
	v, err := retry("stat", "/x", fastConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 7, nil
	})

	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if v != 7 {
		t.Errorf("Expected value 7, got %d", v)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := retry("open", "/x", fastConfig(), func() (int, error) {
		calls++
		return 0, syscall.ESTALE
	})

	if !errors.Is(err, syscall.ESTALE) {
		t.Fatalf("Expected ESTALE, got %v", err)
	}
	if calls != 4 {
		t.Errorf("Expected 1 attempt + 3 retries = 4 calls, got %d", calls)
	}
}

func TestRetry_NonStaleErrorFailsImmediately(t *testing.T) {
	calls := 0
	_, err := retry("read", "/x", fastConfig(), func() (int, error) {
		calls++
		return 0, syscall.EACCES
	})

	if !errors.Is(err, syscall.EACCES) {
		t.Fatalf("Expected EACCES, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single call, got %d", calls)
	}
}

func TestStatWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.nef")
	if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	info, err := StatWithRetry(path, fastConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error: %v", err)
	}
	if info.Size() != 3 {
		t.Errorf("Expected size 3, got %d", info.Size())
	}

	_, err = StatWithRetry(filepath.Join(dir, "missing.nef"), fastConfig())
	if !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestOpenWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.cr2")
	if err := os.WriteFile(path, []byte("raw data"), 0o644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	f, err := OpenWithRetry(path, fastConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error: %v", err)
	}
	defer f.Close()

	if f.Name() != path {
		t.Errorf("Expected file name %s, got %s", path, f.Name())
	}
}

func TestReadFileWithRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.arw")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	data, err := ReadFileWithRetry(path, fastConfig())
	if err != nil {
		t.Fatalf("ReadFileWithRetry() error: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("Expected payload, got %q", data)
	}
}
