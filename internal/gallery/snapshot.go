package gallery

import (
	"errors"
	"fmt"
	"sync"

	"peekraw/internal/fileref"
	"peekraw/internal/metrics"
)

// ErrResync is returned by ChangesSince when the requested version is no
// longer covered by the change log. The consumer must reload the snapshot.
var ErrResync = errors.New("snapshot changed too much, reload required")

// changeLogLimit bounds the number of changes kept for ChangesSince.
const changeLogLimit = 1024

// State is the display state of one gallery item.
type State int

const (
	// Pending items have neither a cached thumbnail nor a failure.
	Pending State = iota
	// Ready items have a thumbnail in the cache.
	Ready
	// Unsupported items failed to produce a thumbnail.
	Unsupported
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Unsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ChangeKind distinguishes a wholesale reset from a single item update.
type ChangeKind int

const (
	// ChangeReset replaced the item list.
	ChangeReset ChangeKind = iota
	// ChangeItem updated the state of one item.
	ChangeItem
)

func (k ChangeKind) String() string {
	if k == ChangeReset {
		return "reset"
	}
	return "item"
}

// Change is one published update. Consumers refresh only ID for ChangeItem
// and everything for ChangeReset.
type Change struct {
	Version uint64
	Kind    ChangeKind
	ID      fileref.ID
	State   State
}

// Presence is how the snapshot asks the cache whether an item is ready.
type Presence interface {
	Contains(key fileref.ID) bool
}

// Snapshot is the versioned view state of the gallery. Every item is Ready,
// Unsupported or Pending, and the unsupported set is always a subset of the
// items.
type Snapshot struct {
	mu           sync.RWMutex
	items        []fileref.FileRef
	index        map[fileref.ID]int
	unsupported  map[fileref.ID]struct{}
	ready        map[fileref.ID]struct{}
	version      uint64
	resetVersion uint64
	log          []Change

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// NewSnapshot returns an empty snapshot at version 0.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		index:       make(map[fileref.ID]int),
		unsupported: make(map[fileref.ID]struct{}),
		ready:       make(map[fileref.ID]struct{}),
		subs:        make(map[int]func(Change)),
	}
}

// Reset replaces the items and clears all per-item state. Items repeating
// an earlier ID are dropped.
func (s *Snapshot) Reset(items []fileref.FileRef) {
	s.mu.Lock()
	s.items = make([]fileref.FileRef, 0, len(items))
	s.index = make(map[fileref.ID]int, len(items))
	for _, ref := range items {
		if _, dup := s.index[ref.ID()]; dup {
			continue
		}
		s.index[ref.ID()] = len(s.items)
		s.items = append(s.items, ref)
	}
	s.unsupported = make(map[fileref.ID]struct{})
	s.ready = make(map[fileref.ID]struct{})
	s.version++
	s.resetVersion = s.version
	c := Change{Version: s.version, Kind: ChangeReset}
	s.log = append(s.log[:0], c)
	s.updateMetricsLocked()
	s.mu.Unlock()

	s.publish(c)
}

// MarkUnsupported records that id failed. Unknown ids are ignored.
func (s *Snapshot) MarkUnsupported(id fileref.ID) {
	s.mark(id, Unsupported)
}

// MarkReady records that id has a thumbnail. Unknown and unsupported ids
// are ignored.
func (s *Snapshot) MarkReady(id fileref.ID) {
	s.mark(id, Ready)
}

func (s *Snapshot) mark(id fileref.ID, state State) {
	s.mu.Lock()
	if _, ok := s.index[id]; !ok {
		s.mu.Unlock()
		return
	}
	switch state {
	case Unsupported:
		s.unsupported[id] = struct{}{}
		delete(s.ready, id)
	case Ready:
		// unsupported only shrinks on Reset
		if _, failed := s.unsupported[id]; failed {
			s.mu.Unlock()
			return
		}
		s.ready[id] = struct{}{}
	}
	s.version++
	c := Change{Version: s.version, Kind: ChangeItem, ID: id, State: state}
	s.log = append(s.log, c)
	if len(s.log) > changeLogLimit {
		s.log = append(s.log[:0], s.log[len(s.log)-changeLogLimit:]...)
	}
	s.updateMetricsLocked()
	s.mu.Unlock()

	s.publish(c)
}

// State classifies id. Unsupported wins over a cached thumbnail; ids not
// in the snapshot are Pending.
func (s *Snapshot) State(id fileref.ID, cache Presence) State {
	s.mu.RLock()
	_, unsupported := s.unsupported[id]
	_, known := s.index[id]
	s.mu.RUnlock()

	switch {
	case unsupported:
		return Unsupported
	case known && cache != nil && cache.Contains(id):
		return Ready
	default:
		return Pending
	}
}

// Items returns the items in display order.
func (s *Snapshot) Items() []fileref.FileRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]fileref.FileRef(nil), s.items...)
}

// Item looks up an item by id.
func (s *Snapshot) Item(id fileref.ID) (fileref.FileRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return fileref.FileRef{}, false
	}
	return s.items[i], true
}

// Unsupported returns the unsupported ids in display order.
func (s *Snapshot) Unsupported() []fileref.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fileref.ID, 0, len(s.unsupported))
	for _, ref := range s.items {
		if _, ok := s.unsupported[ref.ID()]; ok {
			out = append(out, ref.ID())
		}
	}
	return out
}

// Version returns the current version.
func (s *Snapshot) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Counts returns the number of items in each state as tracked by the
// snapshot.
func (s *Snapshot) Counts() (pending, ready, unsupported int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countsLocked()
}

func (s *Snapshot) countsLocked() (pending, ready, unsupported int) {
	ready = len(s.ready)
	unsupported = len(s.unsupported)
	pending = len(s.items) - ready - unsupported
	return pending, ready, unsupported
}

// ChangesSince returns the changes after version since, oldest first, and
// the current version.
func (s *Snapshot) ChangesSince(since uint64) ([]Change, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if since > s.version {
		return nil, s.version, ErrResync
	}
	if since == s.version {
		return nil, s.version, nil
	}
	if since < s.resetVersion || len(s.log) == 0 || s.log[0].Version > since+1 {
		return nil, s.version, ErrResync
	}

	start := int(since + 1 - s.log[0].Version)
	return append([]Change(nil), s.log[start:]...), s.version, nil
}

// Subscribe registers fn to receive every change, in order, on the
// goroutine that made it. The returned function unsubscribes.
func (s *Snapshot) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Snapshot) publish(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Snapshot) updateMetricsLocked() {
	pending, ready, unsupported := s.countsLocked()
	metrics.GalleryItems.WithLabelValues("pending").Set(float64(pending))
	metrics.GalleryItems.WithLabelValues("ready").Set(float64(ready))
	metrics.GalleryItems.WithLabelValues("unsupported").Set(float64(unsupported))
	metrics.GallerySnapshotVersion.Set(float64(s.version))
}
