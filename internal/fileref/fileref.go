package fileref

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrStaleReference is returned when a reference can no longer be resolved
// to a live path (moved, deleted or access revoked).
var ErrStaleReference = errors.New("stale file reference")

// ID is the opaque, immutable identity of a source file. It is a string so
// it can be used directly as a map key; the bytes carry no meaning outside
// the Resolver that produced them.
type ID string

// Hex returns a printable form of the identity.
func (id ID) Hex() string {
	return hex.EncodeToString([]byte(id))
}

// Resolver dereferences an ID to a currently valid path.
type Resolver interface {
	Resolve(id ID) (string, error)
}

// Describer is implemented by resolvers that can name an ID without
// touching the filesystem.
type Describer interface {
	Describe(id ID) string
}

// Scope grants access to permission-gated files. Acquire returns a release
// function that must be called exactly once.
type Scope interface {
	Acquire(id ID) (release func(), err error)
}

// FileRef identifies a source file independently of its current path.
// Two refs with the same ID denote the same logical file.
type FileRef struct {
	id       ID
	resolver Resolver
	scope    Scope
}

// New creates a FileRef. scope may be nil.
func New(id ID, resolver Resolver, scope Scope) FileRef {
	return FileRef{id: id, resolver: resolver, scope: scope}
}

// ID returns the identity of the reference.
func (r FileRef) ID() ID {
	return r.id
}

// Equal reports whether both refs denote the same file.
func (r FileRef) Equal(other FileRef) bool {
	return r.id == other.id
}

// String returns a human readable name for the reference.
func (r FileRef) String() string {
	if d, ok := r.resolver.(Describer); ok {
		return d.Describe(r.id)
	}
	return r.id.Hex()
}

// ResolvedPath dereferences the identity to a concrete path. It fails with
// an error wrapping ErrStaleReference if the file can no longer be found.
func (r FileRef) ResolvedPath() (string, error) {
	if r.resolver == nil {
		return "", fmt.Errorf("%w: no resolver for %s", ErrStaleReference, r.id.Hex())
	}
	return r.resolver.Resolve(r.id)
}

// WithAccess holds the access scope open while resolving the reference and
// running fn with the resolved path. The scope is released on every return
// path, including when resolution or fn fails.
func (r FileRef) WithAccess(fn func(path string) error) error {
	if r.scope != nil {
		release, err := r.scope.Acquire(r.id)
		if err != nil {
			return fmt.Errorf("%w: access denied: %v", ErrStaleReference, err)
		}
		defer release()
	}

	path, err := r.ResolvedPath()
	if err != nil {
		return err
	}
	return fn(path)
}

// IDs returns the identities of refs in order.
func IDs(refs []FileRef) []ID {
	ids := make([]ID, len(refs))
	for i, ref := range refs {
		ids[i] = ref.id
	}
	return ids
}
