package model

import (
	"sort"
	"sync"
)

// KindRegistry records which entity kinds may appear in bookings. Registering
// a kind is the explicit replacement for probing entities for booking
// capability at runtime: an unregistered kind is rejected up front.
type KindRegistry struct {
	mu    sync.RWMutex
	kinds map[string]struct{}
}

func NewKindRegistry(kinds ...string) *KindRegistry {
	r := &KindRegistry{kinds: make(map[string]struct{}, len(kinds))}
	for _, k := range kinds {
		r.Register(k)
	}
	return r
}

func (r *KindRegistry) Register(kind string) {
	if kind == "" {
		return
	}
	r.mu.Lock()
	r.kinds[kind] = struct{}{}
	r.mu.Unlock()
}

func (r *KindRegistry) IsRegistered(kind string) bool {
	r.mu.RLock()
	_, ok := r.kinds[kind]
	r.mu.RUnlock()
	return ok
}

func (r *KindRegistry) Kinds() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
