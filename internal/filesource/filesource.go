package filesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"peekraw/internal/fileref"
	"peekraw/internal/filesystem"
	"peekraw/internal/logging"
	"peekraw/internal/mediatypes"
	"peekraw/internal/metrics"
	"peekraw/internal/settings"
)

// ErrUnreadable is returned under PolicyStrict for the first entry that
// could not be read.
var ErrUnreadable = errors.New("unreadable entry")

// Policy decides what happens to entries that cannot be read while
// enumerating.
type Policy int

const (
	// PolicyWarn skips the entry, logs a warning and records it in
	// Listing.Skipped.
	PolicyWarn Policy = iota
	// PolicyIgnore skips the entry with a debug log only.
	PolicyIgnore
	// PolicyStrict aborts the enumeration.
	PolicyStrict
)

// ParsePolicy converts a policy name. An empty name means PolicyWarn.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "warn":
		return PolicyWarn, nil
	case "ignore":
		return PolicyIgnore, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyWarn, fmt.Errorf("unknown enumeration policy %q (want ignore, warn or strict)", s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyIgnore:
		return "ignore"
	case PolicyStrict:
		return "strict"
	default:
		return "warn"
	}
}

// Skipped is an entry left out of a listing.
type Skipped struct {
	Path string
	Err  error
}

// Listing is the result of an enumeration, in walk order.
type Listing struct {
	Refs    []fileref.FileRef
	Skipped []Skipped
}

func (l *Listing) merge(other *Listing) {
	l.Refs = append(l.Refs, other.Refs...)
	l.Skipped = append(l.Skipped, other.Skipped...)
}

// Options configures a Source.
type Options struct {
	Policy Policy
	// Scope grants access to enumerated files. May be nil.
	Scope fileref.Scope
	// Settings receives the last opened folder. May be nil.
	Settings *settings.Store
	// IncludeHidden lists dot files and descends into dot directories.
	IncludeHidden bool
}

// Source turns folders and picked files into file references.
type Source struct {
	policy        Policy
	bookmarks     *fileref.Bookmarks
	settings      *settings.Store
	includeHidden bool
	retry         filesystem.RetryConfig
}

// New creates a Source.
func New(opts Options) *Source {
	return &Source{
		policy:        opts.Policy,
		bookmarks:     fileref.NewBookmarks(opts.Scope),
		settings:      opts.Settings,
		includeHidden: opts.IncludeHidden,
		retry:         filesystem.DefaultRetryConfig(),
	}
}

// Bookmarks returns the resolver backing the references this source
// creates.
func (s *Source) Bookmarks() *fileref.Bookmarks {
	return s.bookmarks
}

// Enumerate walks root recursively and returns a reference for every
// gallery file beneath it. Entries that cannot be read are handled per the
// configured policy; an unreadable root is always an error.
func (s *Source) Enumerate(ctx context.Context, root string) (*Listing, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve folder path: %w", err)
	}

	info, err := filesystem.StatWithRetry(root, s.retry)
	if err != nil {
		return nil, fmt.Errorf("failed to open folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("failed to open folder %s: not a directory", root)
	}

	listing := &Listing{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				return fmt.Errorf("failed to read folder %s: %w", root, err)
			}
			return s.skip(listing, path, err)
		}

		if path != root && !s.includeHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !mediatypes.IsGalleryFile(path) {
			return nil
		}

		ref, err := s.bookmarks.Create(path)
		if err != nil {
			return s.skip(listing, path, err)
		}
		listing.Refs = append(listing.Refs, ref)
		metrics.EnumerationFilesTotal.Inc()
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Debug("Enumerated %s: %d files, %d skipped", root, len(listing.Refs), len(listing.Skipped))
	return listing, nil
}

func (s *Source) skip(listing *Listing, path string, err error) error {
	switch s.policy {
	case PolicyStrict:
		return fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	case PolicyIgnore:
		logging.Debug("Skipping unreadable entry %s: %v", path, err)
	default:
		logging.Warn("Skipping unreadable entry %s: %v", path, err)
		listing.Skipped = append(listing.Skipped, Skipped{Path: path, Err: err})
	}
	metrics.EnumerationSkippedTotal.Inc()
	return nil
}

// Pick builds a listing from a user selection: folders are enumerated and
// files are added as they are, whatever their type. The parent folder of
// the last selected path is remembered as the last opened folder.
func (s *Source) Pick(ctx context.Context, paths []string) (*Listing, error) {
	listing := &Listing{}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if err := s.skip(listing, path, err); err != nil {
				return nil, err
			}
			continue
		}

		if info.IsDir() {
			sub, err := s.Enumerate(ctx, path)
			if err != nil {
				return nil, err
			}
			listing.merge(sub)
			continue
		}

		ref, err := s.bookmarks.Create(path)
		if err != nil {
			if err := s.skip(listing, path, err); err != nil {
				return nil, err
			}
			continue
		}
		listing.Refs = append(listing.Refs, ref)
		metrics.EnumerationFilesTotal.Inc()
	}

	if len(paths) > 0 {
		s.remember(paths[len(paths)-1])
	}
	return listing, nil
}

func (s *Source) remember(path string) {
	if s.settings == nil {
		return
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	parent := filepath.Dir(abs)
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return
	}

	s.settings.SetLastFolder(parent)
	if err := s.settings.Save(); err != nil {
		logging.Warn("Failed to remember last folder: %v", err)
	}
}

// LastFolder returns the remembered folder, or "" when none is known or it
// no longer exists.
func (s *Source) LastFolder() string {
	if s.settings == nil {
		return ""
	}
	dir := s.settings.LastFolder()
	if dir == "" {
		return ""
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		logging.Debug("Last folder %s is gone", dir)
		return ""
	}
	return dir
}
