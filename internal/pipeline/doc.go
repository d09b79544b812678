// Package pipeline produces thumbnails for a batch of files in the
// background.
//
// A run first reports every item the cache already holds, then decodes the
// remaining items in batch order, caching each result. Events are handed to
// a Dispatcher so that trackers and handlers only ever run on the
// interactive context, where events from superseded runs are dropped.
package pipeline
