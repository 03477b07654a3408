package core

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// memo computes a value per key at most once. Concurrent callers for the
// same key share one computation; failures are not stored. The zero value is
// ready to use.
//
// fn must not call back into the same memo for the same key.
type memo[V any] struct {
	mu    sync.Mutex
	vals  map[string]V
	group singleflight.Group
}

func (m *memo[V]) load(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	return v, ok
}

func (m *memo[V]) do(key string, fn func() (V, error)) (V, error) {
	if v, ok := m.load(key); ok {
		return v, nil
	}
	res, err, _ := m.group.Do(key, func() (any, error) {
		if v, ok := m.load(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.vals == nil {
			m.vals = make(map[string]V)
		}
		m.vals[key] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (m *memo[V]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vals)
}
