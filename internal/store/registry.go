package store

import (
	"path/filepath"
	"strings"
	"sync"
)

// Registry hands out one AnswerStore per project. Projects are keyed by
// their cleaned repository root.
type Registry struct {
	mu     sync.Mutex
	stores map[string]*AnswerStore
}

func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*AnswerStore)}
}

// For returns the store for project, creating it on first use.
func (r *Registry) For(project string) *AnswerStore {
	key := projectKey(project)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[key]; ok {
		return s
	}
	s := New(key)
	r.stores[key] = s
	return s
}

// Lookup returns the store for project without creating one.
func (r *Registry) Lookup(project string) (*AnswerStore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[projectKey(project)]
	return s, ok
}

// Close closes every store and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*AnswerStore)
	r.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}

func projectKey(project string) string {
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return filepath.Clean(project)
}
