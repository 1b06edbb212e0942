// Package kv holds the byte-level key/value backends the record store persists
// collections into. Every collection is one value under one key.
package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrNotExist = errors.New("key does not exist")

// Backend is the storage port behind the record store.
type Backend interface {
	// Get returns ErrNotExist when key has never been set.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverDir      Driver = "dir"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open selects a backend. dsn is a directory for dir, a file path for sqlite
// and a connection string for postgres; memory ignores it.
func Open(ctx context.Context, driver Driver, dsn string, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverDir:
		return NewDir(dsn, logger)
	case DriverSQLite:
		return NewSQLite(ctx, dsn)
	case DriverPostgres:
		return NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
