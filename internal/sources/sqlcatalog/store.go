// Package sqlcatalog serves a tree stored in SQL tables. Items, dimensions,
// allowed values and rows are addressed by the slash-joined ancestor id path
// of their item. SQLite (modernc) and Postgres (pgx) are supported.
package sqlcatalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"datatree/internal/datatype"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var driverNames = map[string]string{
	DriverSQLite:   "sqlite",
	DriverPostgres: "pgx",
}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS catalog_meta (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_datatypes (
		name TEXT PRIMARY KEY,
		body TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_items (
		path TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		label TEXT NOT NULL,
		kind TEXT NOT NULL,
		dialect TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS catalog_items_parent ON catalog_items (parent, position)`,
	`CREATE TABLE IF NOT EXISTS catalog_dimensions (
		dataset TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		label TEXT NOT NULL,
		datatype TEXT NOT NULL,
		PRIMARY KEY (dataset, id)
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_values (
		dataset TEXT NOT NULL,
		dimension TEXT NOT NULL,
		position INTEGER NOT NULL,
		id TEXT NOT NULL,
		label TEXT NOT NULL,
		PRIMARY KEY (dataset, dimension, id)
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_rows (
		dataset TEXT NOT NULL,
		position INTEGER NOT NULL,
		value TEXT NOT NULL,
		tags TEXT NOT NULL,
		PRIMARY KEY (dataset, position)
	)`,
}

// tables in deletion order for Import.
var tables = []string{"catalog_rows", "catalog_values", "catalog_dimensions", "catalog_items", "catalog_datatypes", "catalog_meta"}

// Source implements core.Source over the catalog tables.
type Source struct {
	db     *sql.DB
	driver string
	base   *datatype.Registry

	mu      sync.RWMutex
	reg     *datatype.Registry
	dialect string
}

// Option customises a Source.
type Option func(*Source)

// WithRegistry sets the registry stored datatypes are layered on.
func WithRegistry(reg *datatype.Registry) Option {
	return func(s *Source) { s.base = reg }
}

// Open connects to dsn, creates missing tables and loads the stored
// datatypes.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Source, error) {
	name, ok := driverNames[driver]
	if !ok {
		return nil, fmt.Errorf("unknown sql driver %q", driver)
	}
	openMu.Lock()
	db, err := sqlOpen(name, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := &Source{db: db, driver: driver, base: datatype.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.reload(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Source) Close() error { return s.db.Close() }

// DB exposes the underlying handle.
func (s *Source) DB() *sql.DB { return s.db }

func (s *Source) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// reload rebuilds the registry and default dialect from the stored tables.
func (s *Source) reload(ctx context.Context) error {
	reg := s.base.Clone()
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM catalog_datatypes ORDER BY name`)
	if err != nil {
		return fmt.Errorf("select datatypes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return fmt.Errorf("scan datatype: %w", err)
		}
		dt, err := decodeDatatype(body)
		if err != nil {
			return err
		}
		if err := reg.Register(dt); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate datatypes: %w", err)
	}
	var dialect string
	err = s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM catalog_meta WHERE name = ?`), "dialect").Scan(&dialect)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("select dialect: %w", err)
	}
	s.mu.Lock()
	s.reg, s.dialect = reg, dialect
	s.mu.Unlock()
	return nil
}

func (s *Source) registry() *datatype.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reg
}

func (s *Source) defaultDialect() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dialect
}

// rebind rewrites ? placeholders into the $n form Postgres expects.
func (s *Source) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
