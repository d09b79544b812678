// Package gallery holds the consumer-facing state of the open gallery.
//
// A Snapshot is an ordered list of file references plus the set of items
// that failed to produce a thumbnail, stamped with a version that increases
// on every change. Consumers either subscribe to changes or poll
// ChangesSince with the last version they saw, and refresh only the items
// named in each change.
//
// Gallery connects a Snapshot to the thumbnail pipeline and the cache.
package gallery
