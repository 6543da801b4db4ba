package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"terrainbakery/internal/world"
)

// SQLiteStore keeps one compressed ledger row per chunk.
type SQLiteStore struct {
	db    *sql.DB
	codec *Codec
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	codec, err := NewCodec()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, codec: codec}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS chunk_edits (
		cx INTEGER NOT NULL,
		cy INTEGER NOT NULL,
		cz INTEGER NOT NULL,
		edits BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (cx, cy, cz)
	);`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, c world.ChunkCoord) (world.Ledger, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT edits FROM chunk_edits WHERE cx = ? AND cy = ? AND cz = ?`,
		c.X, c.Y, c.Z,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	l, err := s.codec.Decode(blob)
	if err != nil {
		return nil, false, fmt.Errorf("chunk %v: %w", c, err)
	}
	return l, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, c world.ChunkCoord, l world.Ledger) error {
	if len(l) == 0 {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM chunk_edits WHERE cx = ? AND cy = ? AND cz = ?`, c.X, c.Y, c.Z)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunk_edits (cx, cy, cz, edits, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cx, cy, cz) DO UPDATE SET edits = excluded.edits, updated_at = excluded.updated_at`,
		c.X, c.Y, c.Z, s.codec.Encode(l), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// Count returns the number of stored ledgers.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_edits`).Scan(&n)
	return n, err
}

// Flush is a no-op; every Save commits.
func (s *SQLiteStore) Flush(context.Context) error { return nil }

func (s *SQLiteStore) Close() error {
	s.codec.Close()
	return s.db.Close()
}
