// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/keystone-hs/keystone/lib/clock"
	"github.com/keystone-hs/keystone/lib/codec"
	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id    TEXT PRIMARY KEY,
	record     BLOB NOT NULL,
	updated_ms INTEGER NOT NULL
) WITHOUT ROWID;
`

// recordPayload is the CBOR body of a rooms row. The room id lives in
// its own column.
type recordPayload struct {
	Extremities []ref.EventID `cbor:"extremities"`
}

// SQLiteConfig configures a SQLite store.
type SQLiteConfig struct {
	Path     string
	PoolSize int
	Clock    clock.Clock
	Logger   *slog.Logger
}

// SQLite is a Store in a SQLite database.
type SQLite struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (and if needed creates) the database at
// config.Path.
func OpenSQLite(config SQLiteConfig) (*SQLite, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Logger:   config.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &SQLite{pool: pool, clock: config.Clock}, nil
}

// Close closes the connection pool.
func (s *SQLite) Close() error { return s.pool.Close() }

func (s *SQLite) FindRoom(ctx context.Context, id ref.RoomID) (RoomRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return RoomRecord{}, fmt.Errorf("store: find room %s: %w", id, err)
	}
	defer s.pool.Put(conn)

	var payload []byte
	found := false
	err = sqlitex.Execute(conn, "SELECT record FROM rooms WHERE room_id = ?", &sqlitex.ExecOptions{
		Args: []any{id.String()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			payload = columnBytes(stmt, 0)
			found = true
			return nil
		},
	})
	if err != nil {
		return RoomRecord{}, fmt.Errorf("store: find room %s: %w", id, err)
	}
	if !found {
		return RoomRecord{}, fmt.Errorf("store: room %s: %w", id, errkind.NotFound)
	}
	return decodeRecord(id, payload)
}

func (s *SQLite) PutRoom(ctx context.Context, record RoomRecord) (err error) {
	if record.ID.IsZero() {
		return fmt.Errorf("store: record without room id: %w", errkind.InvalidArgument)
	}
	payload, err := codec.Marshal(recordPayload{Extremities: record.Extremities})
	if err != nil {
		return fmt.Errorf("store: put room %s: %w", record.ID, err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: put room %s: %w", record.ID, err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO rooms (room_id, record, updated_ms) VALUES (?, ?, ?)
		 ON CONFLICT (room_id) DO UPDATE SET record = excluded.record, updated_ms = excluded.updated_ms`,
		&sqlitex.ExecOptions{
			Args: []any{record.ID.String(), payload, s.clock.Now().UnixMilli()},
		})
	if err != nil {
		return fmt.Errorf("store: put room %s: %w", record.ID, err)
	}
	return nil
}

func (s *SQLite) ListRooms(ctx context.Context) ([]RoomRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}
	defer s.pool.Put(conn)

	var records []RoomRecord
	err = sqlitex.Execute(conn, "SELECT room_id, record FROM rooms ORDER BY room_id", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id, err := ref.ParseRoomID(stmt.ColumnText(0))
			if err != nil {
				return fmt.Errorf("stored room id: %w", err)
			}
			record, err := decodeRecord(id, columnBytes(stmt, 1))
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: list rooms: %w", err)
	}
	return records, nil
}

func columnBytes(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

func decodeRecord(id ref.RoomID, payload []byte) (RoomRecord, error) {
	var decoded recordPayload
	if err := codec.Unmarshal(payload, &decoded); err != nil {
		return RoomRecord{}, fmt.Errorf("store: room %s record: %w", id, err)
	}
	return RoomRecord{ID: id, Extremities: decoded.Extremities}, nil
}
