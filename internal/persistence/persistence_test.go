package persistence

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"terrainbakery/internal/config"
	"terrainbakery/internal/world"
)

func sampleLedger() world.Ledger {
	return world.Ledger{
		0:    0,
		17:   0.3,
		42:   math.Float32frombits(0x3f7fffff),
		9260: -0.25,
	}
}

func sameLedger(t *testing.T, got, want world.Ledger) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for idx, v := range want {
		g, ok := got[idx]
		if !ok || math.Float32bits(g) != math.Float32bits(v) {
			t.Fatalf("index %d: got %v (present %v), want %v", idx, g, ok, v)
		}
	}
}

func TestMarshalRoundTripBitExact(t *testing.T) {
	l := sampleLedger()
	raw := MarshalLedger(l)
	if len(raw) != 4+8*len(l) {
		t.Fatalf("encoded %d bytes", len(raw))
	}
	got, err := UnmarshalLedger(raw)
	if err != nil {
		t.Fatal(err)
	}
	sameLedger(t, got, l)

	if _, err := UnmarshalLedger(raw[:len(raw)-1]); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("truncated: got %v", err)
	}
}

func TestReplayOfDecodedLedgerMatchesEditedField(t *testing.T) {
	baseline := make([]float32, 9261)
	for i := range baseline {
		baseline[i] = float32(i%13) / 13
	}
	edited := append([]float32(nil), baseline...)
	l := sampleLedger()
	l.Replay(edited)

	codec, err := NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	defer codec.Close()
	decoded, err := codec.Decode(codec.Encode(l))
	if err != nil {
		t.Fatal(err)
	}
	restored := append([]float32(nil), baseline...)
	decoded.Replay(restored)
	for i := range edited {
		if math.Float32bits(edited[i]) != math.Float32bits(restored[i]) {
			t.Fatalf("index %d: %v != %v", i, edited[i], restored[i])
		}
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatal(err)
	}
	defer codec.Close()
	if _, err := codec.Decode([]byte("not zstd")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("got %v", err)
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	a := world.ChunkCoord{X: 1, Y: -2, Z: 3}
	b := world.ChunkCoord{X: 11, Y: 0, Z: 0}

	if _, ok, err := s.Load(ctx, a); err != nil || ok {
		t.Fatalf("empty load: ok=%v err=%v", ok, err)
	}
	if err := s.Save(ctx, a, sampleLedger()); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, b, world.Ledger{1: 0.5}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Load(ctx, a)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	sameLedger(t, got, sampleLedger())

	if err := s.Save(ctx, b, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load(ctx, b); ok {
		t.Fatal("empty save should remove the ledger")
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	if s.Len() != 1 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "0_-1_0.mtcs")); err != nil {
		t.Fatalf("set file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "1_0_0.mtcs")); !os.IsNotExist(err) {
		t.Fatalf("emptied set should be removed: %v", err)
	}

	reopened, err := NewFileStore(dir, 10)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := reopened.Load(context.Background(), world.ChunkCoord{X: 1, Y: -2, Z: 3})
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	sameLedger(t, got, sampleLedger())
}

func TestFileStoreRejectsOtherSetSize(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileStore(dir, 4)
	c := world.ChunkCoord{X: 1}
	if err := s.Save(context.Background(), c, world.Ledger{3: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	other, _ := NewFileStore(dir, 8)
	if _, _, err := other.Load(context.Background(), c); err == nil {
		t.Fatal("expected set size mismatch")
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planet.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
	if n, err := s.Count(context.Background()); err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, ok, err := reopened.Load(context.Background(), world.ChunkCoord{X: 1, Y: -2, Z: 3})
	if err != nil || !ok {
		t.Fatalf("reload: ok=%v err=%v", ok, err)
	}
	sameLedger(t, got, sampleLedger())
}

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"file", "sqlite", "none"} {
		s, err := Open(config.PersistenceSettings{Backend: backend, Dir: dir, ChunkSetSize: 10}, "test")
		if err != nil {
			t.Fatalf("%s: %v", backend, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("%s close: %v", backend, err)
		}
	}
	if _, err := Open(config.PersistenceSettings{Backend: "tape"}, "test"); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
