// Package fs implements a blob store on a local directory. Each object is a
// file under the root with a JSON sidecar (name + ".meta") holding its
// content type, metadata and checksum.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"datatree/internal/blob/core"
)

const metaSuffix = ".meta"

// Store is rooted at a directory. Writers of distinct keys do not
// interfere; concurrent writers of one key race.
type Store struct {
	root string
}

// New returns a store rooted at root, creating the directory if needed. An
// empty root defaults to ./blobdata.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store writes to.
func (s *Store) Root() string { return s.root }

// Driver returns core.DriverFilesystem.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (m sidecar) object(key string) core.Object {
	return core.Object{
		Key:          key,
		Size:         m.Size,
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		Metadata:     core.CloneMetadata(m.Metadata),
		LastModified: m.UpdatedAt,
	}
}

func (s *Store) paths(key string) (clean, data, meta string, err error) {
	clean, err = core.CleanKey(key)
	if err != nil {
		return "", "", "", err
	}
	if strings.HasSuffix(clean, metaSuffix) {
		return "", "", "", fmt.Errorf("%w: %s uses the reserved %s suffix", core.ErrInvalidKey, key, metaSuffix)
	}
	data = filepath.Join(s.root, filepath.FromSlash(clean))
	return clean, data, data + metaSuffix, nil
}

// Put streams r into a temp file next to the target and renames it into
// place once complete.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.WriteOptions) (core.Object, error) {
	clean, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return core.Object{}, err
	}
	if _, err := os.Stat(dataPath); err == nil && !opts.Overwrite {
		return core.Object{}, fmt.Errorf("%w: %s", core.ErrExists, clean)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return core.Object{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return core.Object{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return core.Object{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return core.Object{}, err
	}
	m := sidecar{
		ContentType: opts.ContentType,
		Metadata:    core.CloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		UpdatedAt:   time.Now().UTC(),
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return core.Object{}, err
	}
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return core.Object{}, err
	}
	return m.object(clean), nil
}

// Get opens the object file. The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (core.Object, io.ReadCloser, error) {
	obj, err := s.Stat(ctx, key)
	if err != nil {
		return core.Object{}, nil, err
	}
	_, dataPath, _, _ := s.paths(key)
	f, err := os.Open(dataPath)
	if err != nil {
		return core.Object{}, nil, notFound(err, obj.Key)
	}
	return obj, f, nil
}

// Stat reads the sidecar of key.
func (s *Store) Stat(_ context.Context, key string) (core.Object, error) {
	clean, _, metaPath, err := s.paths(key)
	if err != nil {
		return core.Object{}, err
	}
	m, err := readSidecar(metaPath)
	if err != nil {
		return core.Object{}, notFound(err, clean)
	}
	return m.object(clean), nil
}

// Delete removes the object and its sidecar.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	_, dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root for sidecars whose key starts with prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Object, error) {
	var out []core.Object
	err := filepath.WalkDir(s.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, metaSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(p, metaSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		m, err := readSidecar(p)
		if err != nil {
			return err
		}
		out = append(out, m.object(key))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func readSidecar(path string) (sidecar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var m sidecar
	if err := json.Unmarshal(b, &m); err != nil {
		return sidecar{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return m, nil
}

func notFound(err error, key string) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return err
}
