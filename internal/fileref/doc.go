// Package fileref defines FileRef, the stable identity of a source file.
//
// A FileRef carries an opaque ID that is the sole key used for equality,
// cache lookup and gallery ordering, plus a Resolver that turns the ID back
// into a live path. Resolution is fallible: a file that was deleted, moved
// out of its folder or replaced by a different file yields an error wrapping
// ErrStaleReference.
//
// Bookmarks is the default resolver. Its IDs embed the absolute path and,
// on unix, the device and inode of the file, so a rename inside the same
// folder still resolves.
//
// Access to permission-gated files goes through WithAccess, which holds the
// reference's Scope open for one resolve-and-use operation and releases it
// on every exit path.
package fileref
