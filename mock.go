package pyresolve

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/albertocavalcante/go-pyresolve/requirement"
)

// MockEntry is a package the mock registry declares as present.
type MockEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MockRegistry holds packages that satisfy requirements without any index
// query. A mock still takes part in specifier checks: a requirement its
// version does not satisfy is a version conflict.
//
// MockRegistry is safe for concurrent use. Each resolution reads a
// snapshot, so later changes never affect a running resolution.
type MockRegistry struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMockRegistry creates an empty registry.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{entries: make(map[string]string)}
}

// Add declares name as present at version, replacing any earlier entry.
func (m *MockRegistry) Add(name, version string) error {
	if !requirement.ValidName(name) {
		return fmt.Errorf("invalid package name %q", name)
	}
	if strings.TrimSpace(version) == "" {
		return errors.New("mock version cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[requirement.Normalize(name)] = strings.TrimSpace(version)
	return nil
}

// Remove deletes the entry for name and reports whether there was one.
func (m *MockRegistry) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := requirement.Normalize(name)
	_, ok := m.entries[n]
	delete(m.entries, n)
	return ok
}

// List returns all entries sorted by name.
func (m *MockRegistry) List() []MockEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockEntry, 0, len(m.entries))
	for _, name := range slices.Sorted(maps.Keys(m.entries)) {
		out = append(out, MockEntry{Name: name, Version: m.entries[name]})
	}
	return out
}

// Clear removes every entry.
func (m *MockRegistry) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
}

func (m *MockRegistry) snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.entries)
}
