package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"terrainbakery/internal/config"
	"terrainbakery/internal/world"
)

// Store keeps the edit ledger of every chunk that was ever sculpted.
type Store interface {
	// Load returns the ledger for c; ok is false when none was saved.
	Load(ctx context.Context, c world.ChunkCoord) (l world.Ledger, ok bool, err error)
	// Save replaces the ledger for c. An empty ledger removes it.
	Save(ctx context.Context, c world.ChunkCoord, l world.Ledger) error
	Flush(ctx context.Context) error
	Close() error
}

// Open builds the store the settings name. planet names the sqlite database.
func Open(s config.PersistenceSettings, planet string) (Store, error) {
	switch s.Backend {
	case "file":
		return NewFileStore(filepath.Join(s.Dir, planet), s.ChunkSetSize)
	case "sqlite":
		return OpenSQLite(filepath.Join(s.Dir, planet+".db"))
	case "none", "":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("persistence: unknown backend %q", s.Backend)
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu      sync.Mutex
	ledgers map[world.ChunkCoord]world.Ledger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledgers: make(map[world.ChunkCoord]world.Ledger)}
}

func (m *MemoryStore) Load(_ context.Context, c world.ChunkCoord) (world.Ledger, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[c]
	if !ok {
		return nil, false, nil
	}
	return l.Clone(), true, nil
}

func (m *MemoryStore) Save(_ context.Context, c world.ChunkCoord, l world.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(l) == 0 {
		delete(m.ledgers, c)
		return nil
	}
	m.ledgers[c] = l.Clone()
	return nil
}

// Len returns the number of stored ledgers.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ledgers)
}

func (m *MemoryStore) Flush(context.Context) error { return nil }
func (m *MemoryStore) Close() error                { return nil }
