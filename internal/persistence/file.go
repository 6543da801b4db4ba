package persistence

import (
	"bufio"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"terrainbakery/internal/world"
)

const setFileVersion = 1

type setHeader struct {
	Version int    `json:"version"`
	Set     [3]int `json:"set"`
	SetSize int    `json:"set_size"`
	Chunks  int    `json:"chunks"`
}

type setEntry struct {
	Coord [3]int
	Edits []byte // MarshalLedger layout
}

type setBody struct {
	Entries []setEntry
}

type chunkSet struct {
	coord   world.ChunkCoord
	ledgers map[world.ChunkCoord]world.Ledger
	dirty   bool
}

// FileStore groups chunks into cubic sets of setSize^3 and keeps one zstd file
// per set. Sets load lazily and dirty ones are rewritten on Flush.
type FileStore struct {
	dir     string
	setSize int

	mu   sync.Mutex
	sets map[world.ChunkCoord]*chunkSet
}

func NewFileStore(dir string, setSize int) (*FileStore, error) {
	if setSize <= 0 {
		return nil, fmt.Errorf("persistence: set size %d", setSize)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, setSize: setSize, sets: make(map[world.ChunkCoord]*chunkSet)}, nil
}

// SetOf returns the set that holds chunk c.
func (f *FileStore) SetOf(c world.ChunkCoord) world.ChunkCoord {
	set, _ := world.CoordOf(c.Array(), f.setSize)
	return set
}

func (f *FileStore) path(set world.ChunkCoord) string {
	return filepath.Join(f.dir, fmt.Sprintf("%d_%d_%d.mtcs", set.X, set.Y, set.Z))
}

// set returns the cached set for c, reading it from disk on first use.
// Callers hold f.mu.
func (f *FileStore) set(c world.ChunkCoord) (*chunkSet, error) {
	key := f.SetOf(c)
	if s, ok := f.sets[key]; ok {
		return s, nil
	}
	s, err := f.readSet(key)
	if err != nil {
		return nil, err
	}
	f.sets[key] = s
	return s, nil
}

func (f *FileStore) readSet(key world.ChunkCoord) (*chunkSet, error) {
	s := &chunkSet{coord: key, ledgers: make(map[world.ChunkCoord]world.Ledger)}
	file, err := os.Open(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	br := bufio.NewReader(dec)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("%s: header: %w", f.path(key), err)
	}
	var hdr setHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, fmt.Errorf("%s: header: %w", f.path(key), err)
	}
	if hdr.Version != setFileVersion || hdr.SetSize != f.setSize {
		return nil, fmt.Errorf("%s: version %d set size %d, want %d/%d",
			f.path(key), hdr.Version, hdr.SetSize, setFileVersion, f.setSize)
	}

	var body setBody
	if err := gob.NewDecoder(br).Decode(&body); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	for _, e := range body.Entries {
		l, err := UnmarshalLedger(e.Edits)
		if err != nil {
			return nil, fmt.Errorf("%s chunk %v: %w", f.path(key), e.Coord, err)
		}
		s.ledgers[world.ChunkCoord{X: e.Coord[0], Y: e.Coord[1], Z: e.Coord[2]}] = l
	}
	return s, nil
}

// writeSet replaces the set file atomically through a temp file and rename.
func (f *FileStore) writeSet(s *chunkSet) error {
	path := f.path(s.coord)
	if len(s.ledgers) == 0 {
		err := os.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".mtcs-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := encodeSet(tmp, s, f.setSize); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func encodeSet(file *os.File, s *chunkSet, setSize int) error {
	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := writeSetBody(bufio.NewWriter(enc), s, setSize); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func writeSetBody(bw *bufio.Writer, s *chunkSet, setSize int) error {
	hb, _ := json.Marshal(setHeader{
		Version: setFileVersion,
		Set:     s.coord.Array(),
		SetSize: setSize,
		Chunks:  len(s.ledgers),
	})
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	body := setBody{Entries: make([]setEntry, 0, len(s.ledgers))}
	for c, l := range s.ledgers {
		body.Entries = append(body.Entries, setEntry{Coord: c.Array(), Edits: MarshalLedger(l)})
	}
	if err := gob.NewEncoder(bw).Encode(&body); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bw.Flush()
}

func (f *FileStore) Load(_ context.Context, c world.ChunkCoord) (world.Ledger, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.set(c)
	if err != nil {
		return nil, false, err
	}
	l, ok := s.ledgers[c]
	if !ok {
		return nil, false, nil
	}
	return l.Clone(), true, nil
}

func (f *FileStore) Save(_ context.Context, c world.ChunkCoord, l world.Ledger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, err := f.set(c)
	if err != nil {
		return err
	}
	if len(l) == 0 {
		if _, ok := s.ledgers[c]; !ok {
			return nil
		}
		delete(s.ledgers, c)
	} else {
		s.ledgers[c] = l.Clone()
	}
	s.dirty = true
	return nil
}

// Flush writes every dirty set.
func (f *FileStore) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sets {
		if !s.dirty {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.writeSet(s); err != nil {
			return fmt.Errorf("write set %v: %w", s.coord, err)
		}
		s.dirty = false
	}
	return nil
}

func (f *FileStore) Close() error {
	return f.Flush(context.Background())
}
