// Package memory implements a blob store in process memory.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"datatree/internal/blob/core"
)

type entry struct {
	obj  core.Object
	data []byte
}

// Store keeps objects in a map guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
}

// New returns an empty store.
func New() *Store { return &Store{objs: make(map[string]entry)} }

// Driver returns core.DriverMemory.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores the content of r under key.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.WriteOptions) (core.Object, error) {
	key, err := core.CleanKey(key)
	if err != nil {
		return core.Object{}, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Object{}, err
	}
	sum := sha256.Sum256(b)
	obj := core.Object{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     core.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists && !opts.Overwrite {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrExists, key)
	}
	s.objs[key] = entry{obj: obj, data: b}
	return copyObject(obj), nil
}

// Get returns the object and a reader over a private copy of its content.
func (s *Store) Get(_ context.Context, key string) (core.Object, io.ReadCloser, error) {
	s.mu.RLock()
	e, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return copyObject(e.obj), io.NopCloser(bytes.NewReader(bytes.Clone(e.data))), nil
}

// Stat returns object metadata only.
func (s *Store) Stat(_ context.Context, key string) (core.Object, error) {
	s.mu.RLock()
	e, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return copyObject(e.obj), nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	delete(s.objs, key)
	return ok, nil
}

// List returns the objects whose key starts with prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Object, 0, len(s.objs))
	for k, e := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyObject(e.obj))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func copyObject(obj core.Object) core.Object {
	obj.Metadata = core.CloneMetadata(obj.Metadata)
	return obj
}
