// Package sources builds the configured core.Source.
package sources

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"datatree/internal/blob"
	"datatree/internal/config"
	"datatree/internal/core"
	"datatree/internal/datatype"
	"datatree/internal/sources/blobtree"
	"datatree/internal/sources/sqlcatalog"
	"datatree/internal/sources/static"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open constructs the source cfg selects. The closer releases whatever the
// source holds open and is never nil on success.
func Open(ctx context.Context, cfg config.Source, logger logrus.FieldLogger) (core.Source, io.Closer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	reg, err := Registry(cfg.Datatypes)
	if err != nil {
		return nil, nil, err
	}
	log := logger.WithField("driver", cfg.Driver)
	switch cfg.Driver {
	case config.DriverStatic:
		src, err := static.LoadFile(cfg.Catalog, static.WithRegistry(reg))
		if err != nil {
			return nil, nil, errors.Wrap(err, "static source")
		}
		log.WithField("catalog", cfg.Catalog).Debug("source opened")
		return src, nopCloser{}, nil
	case config.DriverBlob:
		store, err := blob.Open(ctx, cfg.Blob.BlobConfig())
		if err != nil {
			return nil, nil, errors.Wrap(err, "blob store")
		}
		src, err := blobtree.New(ctx, store, cfg.Blob.Prefix, blobtree.WithRegistry(reg), blobtree.WithLogger(logger))
		if err != nil {
			return nil, nil, errors.Wrap(err, "blob source")
		}
		log.WithField("store", store.Driver()).WithField("prefix", cfg.Blob.Prefix).Debug("source opened")
		return src, nopCloser{}, nil
	case config.DriverSQL:
		src, err := sqlcatalog.Open(ctx, cfg.SQL.Driver, cfg.SQL.DSN, sqlcatalog.WithRegistry(reg))
		if err != nil {
			return nil, nil, errors.Wrap(err, "sql source")
		}
		log.WithField("sql_driver", cfg.SQL.Driver).Debug("source opened")
		return src, src, nil
	}
	return nil, nil, errors.Errorf("unknown source driver %q", cfg.Driver)
}

// Registry returns the builtin datatypes extended with the YAML document at
// path. An empty path means the builtins alone.
func Registry(path string) (*datatype.Registry, error) {
	if path == "" {
		return datatype.Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "datatypes")
	}
	defer f.Close()
	reg := datatype.Default().Clone()
	if err := reg.Load(f); err != nil {
		return nil, errors.Wrapf(err, "datatypes %s", path)
	}
	return reg, nil
}
