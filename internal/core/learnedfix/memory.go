package learnedfix

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu    sync.RWMutex
	fixes map[string]Fix
	now   func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{fixes: make(map[string]Fix), now: time.Now}
}

// Get returns the fix for signature.
func (m *Memory) Get(_ context.Context, signature string) (*Fix, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fixes[signature]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

// Upsert stores fix under signature, replacing any previous fix.
func (m *Memory) Upsert(_ context.Context, signature string, fix Fix) error {
	fix.Signature = signature
	if fix.CreatedAt.IsZero() {
		fix.CreatedAt = m.now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.fixes[signature]; ok {
		fix.UseCount = prev.UseCount
	}
	m.fixes[signature] = fix
	return nil
}

// Touch increments the use count of signature.
func (m *Memory) Touch(_ context.Context, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fixes[signature]
	if !ok {
		return ErrNotFound
	}
	f.UseCount++
	m.fixes[signature] = f
	return nil
}

// List returns every fix, most used first.
func (m *Memory) List(_ context.Context) ([]Fix, error) {
	m.mu.RLock()
	out := make([]Fix, 0, len(m.fixes))
	for _, f := range m.fixes {
		out = append(out, f)
	}
	m.mu.RUnlock()
	sortFixes(out)
	return out, nil
}

// Delete removes signature.
func (m *Memory) Delete(_ context.Context, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fixes[signature]; !ok {
		return ErrNotFound
	}
	delete(m.fixes, signature)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func sortFixes(fixes []Fix) {
	sort.Slice(fixes, func(i, j int) bool {
		if fixes[i].UseCount != fixes[j].UseCount {
			return fixes[i].UseCount > fixes[j].UseCount
		}
		return fixes[i].Signature < fixes[j].Signature
	})
}
