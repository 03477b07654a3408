// Package blob is the entry point to object storage. Callers depend on the
// Store interface; the driver implementations live under internal/infra/blob.
package blob

import (
	"context"
	"fmt"
	"io"

	"datatree/internal/blob/core"
)

type (
	// Driver identifies a blob backend.
	Driver = core.Driver
	// WriteOptions configures Put.
	WriteOptions = core.WriteOptions
	// Object describes a stored blob.
	Object = core.Object
	// Store is implemented by every driver.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrNotFound   = core.ErrNotFound
	ErrExists     = core.ErrExists
	ErrInvalidKey = core.ErrInvalidKey
)

// ReadAll fetches the full content of key.
func ReadAll(ctx context.Context, store Store, key string) (Object, []byte, error) {
	obj, rc, err := store.Get(ctx, key)
	if err != nil {
		return Object{}, nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return Object{}, nil, fmt.Errorf("read %s: %w", key, err)
	}
	return obj, b, nil
}
