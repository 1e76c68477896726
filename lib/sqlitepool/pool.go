// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite connection pools with the pragmas
// every Keystone database uses: WAL journaling, NORMAL sync, a busy
// timeout, and in-memory temp storage. Schema setup runs once per
// connection through Config.OnConnect.
package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA cache_size=-8192",
	"PRAGMA temp_store=MEMORY",
}

// Config describes a pool.
type Config struct {
	// Path is the database file. Required. ":memory:" works only with
	// PoolSize 1, since every in-memory connection is its own database.
	Path string

	// PoolSize defaults to max(NumCPU, 4).
	PoolSize int

	Logger *slog.Logger

	// OnConnect runs after the pragmas on every new connection.
	OnConnect func(*sqlite.Conn) error
}

// Pool hands out SQLite connections. Connections are not shared: each
// goroutine takes its own and puts it back.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates the pool. Connections are opened lazily.
func Open(config Config) (*Pool, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.PoolSize <= 0 {
		config.PoolSize = max(runtime.NumCPU(), 4)
	}

	inner, err := sqlitex.NewPool(config.Path, sqlitex.PoolOptions{
		PoolSize: config.PoolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			for _, pragma := range pragmas {
				if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
					return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
				}
			}
			if config.OnConnect != nil {
				return config.OnConnect(conn)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", config.Path, err)
	}
	config.Logger.Info("sqlite pool opened", "path", config.Path, "pool_size", config.PoolSize)
	return &Pool{inner: inner, logger: config.Logger, path: config.Path}, nil
}

// Take borrows a connection, blocking until one is free or ctx ends.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection. Put(nil) is a no-op.
func (p *Pool) Put(conn *sqlite.Conn) { p.inner.Put(conn) }

// Close waits for borrowed connections and closes them all.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}
