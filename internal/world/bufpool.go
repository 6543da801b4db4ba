package world

import (
	"sync"
	"sync/atomic"

	"terrainbakery/internal/meshing"
)

// BufferKind is what a pooled buffer is used for.
type BufferKind int

const (
	BufChunk BufferKind = iota // long lived chunk fields and baselines
	BufGenerate
	BufEdit
	BufExtract
)

type poolKey struct {
	kind  BufferKind
	class int
}

// BufferPool recycles field and mesh scratch buffers keyed by kind and size class.
// It is safe for concurrent use.
type BufferPool struct {
	mu          sync.Mutex
	pools       map[poolKey]*sync.Pool
	outstanding atomic.Int64
}

func NewBufferPool() *BufferPool {
	return &BufferPool{pools: make(map[poolKey]*sync.Pool)}
}

func (p *BufferPool) pool(key poolKey) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.pools[key]
	if ok {
		return sp
	}
	sp = &sync.Pool{}
	if key.kind == BufExtract {
		sp.New = func() any { return meshing.NewBuffers(key.class) }
	} else {
		sp.New = func() any {
			buf := make([]float32, key.class)
			return &buf
		}
	}
	p.pools[key] = sp
	return sp
}

// Field leases a float buffer of exactly n values. Contents are not cleared.
func (p *BufferPool) Field(kind BufferKind, n int) *Lease {
	key := poolKey{kind: kind, class: n}
	buf := p.pool(key).Get().(*[]float32)
	p.outstanding.Add(1)
	return &Lease{pool: p, key: key, field: buf}
}

// Mesh leases extraction buffers for a lattice of dim corners per axis.
func (p *BufferPool) Mesh(dim int) *Lease {
	key := poolKey{kind: BufExtract, class: dim}
	buf := p.pool(key).Get().(*meshing.Buffers)
	p.outstanding.Add(1)
	return &Lease{pool: p, key: key, mesh: buf}
}

// Outstanding returns the number of leases not yet released.
func (p *BufferPool) Outstanding() int { return int(p.outstanding.Load()) }

// Lease is a borrowed buffer. Release returns it exactly once; later calls are no-ops.
type Lease struct {
	pool     *BufferPool
	key      poolKey
	field    *[]float32
	mesh     *meshing.Buffers
	released atomic.Bool
}

// Field returns the leased values, or nil for a mesh lease.
func (l *Lease) Field() []float32 {
	if l == nil || l.field == nil {
		return nil
	}
	return *l.field
}

// Mesh returns the leased extraction buffers, or nil for a field lease.
func (l *Lease) Mesh() *meshing.Buffers {
	if l == nil {
		return nil
	}
	return l.mesh
}

// Release hands the buffer back and reports whether this call did so.
func (l *Lease) Release() bool {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return false
	}
	sp := l.pool.pool(l.key)
	if l.mesh != nil {
		sp.Put(l.mesh)
	} else {
		sp.Put(l.field)
	}
	l.pool.outstanding.Add(-1)
	return true
}
