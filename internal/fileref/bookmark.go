package fileref

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"peekraw/internal/filesystem"
	"peekraw/internal/logging"
)

const bookmarkVersion = 1

// header: version(1) flags(1) dev(8) ino(8)
const bookmarkHeaderLen = 18

const flagIdentity = 1 << 0

// Bookmarks creates and resolves path-based references that also record the
// file's device and inode where the platform exposes them. A reference
// survives a rename within its folder; anything else makes it stale.
type Bookmarks struct {
	scope Scope
	retry filesystem.RetryConfig
}

// NewBookmarks returns a bookmark resolver. scope may be nil.
func NewBookmarks(scope Scope) *Bookmarks {
	return &Bookmarks{
		scope: scope,
		retry: filesystem.DefaultRetryConfig(),
	}
}

// Create returns a reference to the file at path.
func (b *Bookmarks) Create(path string) (FileRef, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileRef{}, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	info, err := filesystem.StatWithRetry(abs, b.retry)
	if err != nil {
		return FileRef{}, fmt.Errorf("failed to bookmark %s: %w", abs, err)
	}
	if info.IsDir() {
		return FileRef{}, fmt.Errorf("failed to bookmark %s: is a directory", abs)
	}

	return New(encodeBookmark(abs, info), b, b.scope), nil
}

// Resolve implements Resolver.
func (b *Bookmarks) Resolve(id ID) (string, error) {
	bm, err := decodeBookmark(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStaleReference, err)
	}

	info, err := filesystem.StatWithRetry(bm.path, b.retry)
	switch {
	case err == nil:
		if !bm.hasIdentity || bm.matches(info) {
			return bm.path, nil
		}
		logging.Debug("Bookmark %s now names a different file, searching folder", bm.path)
	case errors.Is(err, os.ErrNotExist):
		if !bm.hasIdentity {
			return "", fmt.Errorf("%w: %s", ErrStaleReference, bm.path)
		}
	default:
		return "", fmt.Errorf("%w: %s: %v", ErrStaleReference, bm.path, err)
	}

	if moved, ok := b.search(bm); ok {
		logging.Debug("Bookmark %s resolved to renamed file %s", bm.path, moved)
		return moved, nil
	}
	return "", fmt.Errorf("%w: %s", ErrStaleReference, bm.path)
}

// Describe implements Describer.
func (b *Bookmarks) Describe(id ID) string {
	bm, err := decodeBookmark(id)
	if err != nil {
		return id.Hex()
	}
	return bm.path
}

// search looks for the bookmarked inode among the siblings of its original
// path.
func (b *Bookmarks) search(bm bookmark) (string, bool) {
	dir := filepath.Dir(bm.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if bm.matches(info) {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}

type bookmark struct {
	path        string
	dev, ino    uint64
	hasIdentity bool
}

func (bm bookmark) matches(info os.FileInfo) bool {
	dev, ino, ok := fileIdentity(info)
	return ok && dev == bm.dev && ino == bm.ino
}

func encodeBookmark(path string, info os.FileInfo) ID {
	buf := make([]byte, bookmarkHeaderLen, bookmarkHeaderLen+len(path))
	buf[0] = bookmarkVersion
	if dev, ino, ok := fileIdentity(info); ok {
		buf[1] = flagIdentity
		binary.BigEndian.PutUint64(buf[2:10], dev)
		binary.BigEndian.PutUint64(buf[10:18], ino)
	}
	buf = append(buf, path...)
	return ID(buf)
}

func decodeBookmark(id ID) (bookmark, error) {
	raw := []byte(id)
	if len(raw) <= bookmarkHeaderLen {
		return bookmark{}, errors.New("bookmark too short")
	}
	if raw[0] != bookmarkVersion {
		return bookmark{}, fmt.Errorf("unsupported bookmark version %d", raw[0])
	}
	return bookmark{
		path:        string(raw[bookmarkHeaderLen:]),
		dev:         binary.BigEndian.Uint64(raw[2:10]),
		ino:         binary.BigEndian.Uint64(raw[10:18]),
		hasIdentity: raw[1]&flagIdentity != 0,
	}, nil
}
