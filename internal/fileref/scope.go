package fileref

import (
	"sync"
)

// Grants is a Scope that tracks outstanding access grants per reference.
// It stands in for OS-level security scopes and makes leaks observable.
type Grants struct {
	mu     sync.Mutex
	active map[ID]int
	total  int
}

// NewGrants returns an empty grant tracker.
func NewGrants() *Grants {
	return &Grants{active: make(map[ID]int)}
}

// Acquire implements Scope.
func (g *Grants) Acquire(id ID) (func(), error) {
	g.mu.Lock()
	g.active[id]++
	g.total++
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			if g.active[id] <= 1 {
				delete(g.active, id)
			} else {
				g.active[id]--
			}
		})
	}, nil
}

// Outstanding returns the number of grants not yet released.
func (g *Grants) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.active {
		n += c
	}
	return n
}

// Total returns the number of grants ever acquired.
func (g *Grants) Total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}
