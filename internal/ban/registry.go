// Package ban records which participants may never be paired with each other
// again. A ban is created when a pairing ends and lives for the rest of the
// process; there is no expiry and no way to lift it.
//
// The relation is symmetric: Ban(a, b) forbids both {a, b} and {b, a}.
package ban

import (
	"sort"
	"sync"
)

// Registry is the in-memory ban relation. It is safe for concurrent use,
// although the pairing engine only touches it from its own goroutine.
type Registry struct {
	mu     sync.RWMutex
	banned map[string]map[string]struct{} // participant -> forbidden partners
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{banned: make(map[string]map[string]struct{})}
}

// Ban adds each participant to the other's forbidden set. Banning a
// participant against itself is ignored.
func (r *Registry) Ban(a, b string) {
	if a == b {
		return
	}
	r.mu.Lock()
	r.add(a, b)
	r.add(b, a)
	r.mu.Unlock()
}

func (r *Registry) add(from, to string) {
	set, ok := r.banned[from]
	if !ok {
		set = make(map[string]struct{})
		r.banned[from] = set
	}
	set[to] = struct{}{}
}

// IsBanned reports whether a ban is recorded in either direction.
func (r *Registry) IsBanned(a, b string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.banned[a][b]; ok {
		return true
	}
	_, ok := r.banned[b][a]
	return ok
}

// BannedBy returns the sorted list of participants id may not be paired with.
func (r *Registry) BannedBy(id string) []string {
	r.mu.RLock()
	set := r.banned[id]
	out := make([]string, 0, len(set))
	for other := range set {
		out = append(out, other)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len returns the number of distinct banned pairs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.banned {
		n += len(set)
	}
	return n / 2
}
