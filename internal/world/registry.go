package world

import "sync"

// Registry indexes live chunks by coordinate.
type Registry interface {
	// GetOrCreate returns the chunk at c, creating an idle one if missing.
	// created reports whether this call made it.
	GetOrCreate(c ChunkCoord) (ch *Chunk, created bool)
	Get(c ChunkCoord) *Chunk
	// Neighbors returns the existing chunks among the 26 around c.
	Neighbors(c ChunkCoord) []*Chunk
	Remove(c ChunkCoord) bool
	Len() int
	// Each calls fn for every chunk until fn returns false.
	Each(fn func(*Chunk) bool)
}

// MapRegistry is a Registry over a flat map. It is safe for concurrent use.
type MapRegistry struct {
	mu     sync.RWMutex
	chunks map[ChunkCoord]*Chunk
	lods   int
}

// NewMapRegistry creates an empty registry whose chunks hold lods mesh levels.
func NewMapRegistry(lods int) *MapRegistry {
	return &MapRegistry{chunks: make(map[ChunkCoord]*Chunk), lods: lods}
}

func (r *MapRegistry) GetOrCreate(c ChunkCoord) (*Chunk, bool) {
	r.mu.RLock()
	ch, ok := r.chunks[c]
	r.mu.RUnlock()
	if ok {
		return ch, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// another goroutine might have created it while we waited for the lock
	if ch, ok := r.chunks[c]; ok {
		return ch, false
	}
	ch = NewChunk(c, r.lods)
	r.chunks[c] = ch
	return ch, true
}

func (r *MapRegistry) Get(c ChunkCoord) *Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chunks[c]
}

func (r *MapRegistry) Neighbors(c ChunkCoord) []*Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Chunk, 0, len(NeighborOffsets))
	for _, off := range NeighborOffsets {
		if ch, ok := r.chunks[c.Add(off)]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (r *MapRegistry) Remove(c ChunkCoord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chunks[c]; !ok {
		return false
	}
	delete(r.chunks, c)
	return true
}

func (r *MapRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// Each iterates over a snapshot, so fn may call back into the registry.
func (r *MapRegistry) Each(fn func(*Chunk) bool) {
	r.mu.RLock()
	snap := make([]*Chunk, 0, len(r.chunks))
	for _, ch := range r.chunks {
		snap = append(snap, ch)
	}
	r.mu.RUnlock()
	for _, ch := range snap {
		if !fn(ch) {
			return
		}
	}
}

