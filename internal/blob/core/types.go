// Package core defines the object storage contract the blob drivers
// implement.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a blob storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local directory
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // process memory
)

// WriteOptions configures Put.
type WriteOptions struct {
	ContentType string
	Metadata    map[string]string
	// Overwrite replaces an existing object instead of failing with
	// ErrExists.
	Overwrite bool
}

// Object describes a stored blob.
type Object struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a flat key space of objects. List returns objects in ascending
// key order.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts WriteOptions) (Object, error)
	Get(ctx context.Context, key string) (Object, io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Object, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Object, error)
	Driver() Driver
}

var (
	// ErrNotFound is returned when a key has no object.
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned by Put without Overwrite when the key is taken.
	ErrExists = errors.New("blob already exists")
	// ErrInvalidKey is returned for keys that are empty, absolute or escape
	// the key space.
	ErrInvalidKey = errors.New("invalid blob key")
)

// CleanKey validates key and returns its normalised slash form.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %s is absolute", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %s escapes the key space", ErrInvalidKey, key)
		}
	}
	return path.Clean(key), nil
}

// CloneMetadata copies a metadata map.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
