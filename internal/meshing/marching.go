package meshing

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// VertexStride is number of float32 per interleaved vertex (pos.xyz + normal.xyz)
const VertexStride = 6

var (
	ErrFieldSize = errors.New("meshing: field length does not match lattice")
	ErrLodRange  = errors.New("meshing: lod out of range")
)

// Options controls how cell crossings become vertices.
type Options struct {
	Threshold float32
	// Smooth places vertices at the interpolated crossing instead of the edge midpoint.
	Smooth bool
	// FlatShaded emits three fresh vertices per triangle.
	FlatShaded bool
}

// Mesh is an indexed triangle list in chunk local space.
type Mesh struct {
	Vertices  []mgl32.Vec3
	Triangles []uint32
}

// Empty reports whether the mesh has no triangles.
func (m Mesh) Empty() bool { return len(m.Triangles) == 0 }

// TriangleCount returns the number of triangles.
func (m Mesh) TriangleCount() int { return len(m.Triangles) / 3 }

// Counts is how much of a Buffers an extraction used.
type Counts struct {
	Vertices int
	Indices  int
}

// Buffers is the scratch space an extraction writes into. It is sized for the
// worst case of a lattice so an extraction never reallocates.
type Buffers struct {
	Vertices  []mgl32.Vec3
	Triangles []uint32

	dedup map[mgl32.Vec3]uint32
}

// CellsPerAxis returns how many cells a LOD walks along one axis of a lattice.
func CellsPerAxis(dim, lod int) int {
	step := LodTable[lod]
	return (dim - 1 + step - 1) / step
}

// WorstCase returns the vertex and index capacity a single LOD can need.
func WorstCase(dim, lod int) int {
	n := CellsPerAxis(dim, lod)
	return n * n * n * 15
}

// NewBuffers allocates buffers large enough for every LOD of a lattice.
func NewBuffers(dim int) *Buffers {
	n := WorstCase(dim, 0)
	return &Buffers{
		Vertices:  make([]mgl32.Vec3, n),
		Triangles: make([]uint32, n),
		dedup:     make(map[mgl32.Vec3]uint32),
	}
}

func (b *Buffers) ensure(n int) {
	if len(b.Vertices) < n {
		b.Vertices = make([]mgl32.Vec3, n)
	}
	if len(b.Triangles) < n {
		b.Triangles = make([]uint32, n)
	}
	if b.dedup == nil {
		b.dedup = make(map[mgl32.Vec3]uint32)
	}
}

// Mesh copies the used prefix of the buffers out as an owned Mesh.
func (b *Buffers) Mesh(c Counts) Mesh {
	m := Mesh{
		Vertices:  make([]mgl32.Vec3, c.Vertices),
		Triangles: make([]uint32, c.Indices),
	}
	copy(m.Vertices, b.Vertices[:c.Vertices])
	copy(m.Triangles, b.Triangles[:c.Indices])
	return m
}

// Extract runs marching cubes over a dim^3 field at the given LOD and writes the
// result into buf. Corners past the lattice edge at coarse LODs are clamped to it.
func Extract(field []float32, dim, lod int, opts Options, buf *Buffers) (Counts, error) {
	if lod < 0 || lod >= len(LodTable) {
		return Counts{}, fmt.Errorf("%w: %d", ErrLodRange, lod)
	}
	if dim < 2 || len(field) != dim*dim*dim {
		return Counts{}, fmt.Errorf("%w: got %d values for dim %d", ErrFieldSize, len(field), dim)
	}
	buf.ensure(WorstCase(dim, lod))
	clear(buf.dedup)

	var (
		step     = LodTable[lod]
		last     = dim - 1
		midpoint = opts.FlatShaded || !opts.Smooth
		counts   Counts
		cube     [8]float32
		corners  [8]mgl32.Vec3
	)

	for z := 0; z < last; z += step {
		for y := 0; y < last; y += step {
			for x := 0; x < last; x += step {
				mask := 0
				for i, c := range CornerTable {
					cx := min(x+c[0]*step, last)
					cy := min(y+c[1]*step, last)
					cz := min(z+c[2]*step, last)
					cube[i] = field[cx+dim*(cy+dim*cz)]
					corners[i] = mgl32.Vec3{float32(cx), float32(cy), float32(cz)}
					if cube[i] > opts.Threshold {
						mask |= 1 << i
					}
				}
				if mask == 0 || mask == 255 {
					continue
				}

				row := &TriangleTable[mask]
				for e := 0; e < len(row) && row[e] >= 0; e++ {
					pair := EdgeIndexes[row[e]]
					v1, v2 := corners[pair[0]], corners[pair[1]]

					var pos mgl32.Vec3
					if midpoint {
						pos = v1.Add(v2).Mul(0.5)
					} else {
						pos = crossing(v1, v2, cube[pair[0]], cube[pair[1]], opts.Threshold)
					}

					if opts.FlatShaded {
						buf.Vertices[counts.Vertices] = pos
						buf.Triangles[counts.Indices] = uint32(counts.Vertices)
						counts.Vertices++
						counts.Indices++
						continue
					}
					idx, ok := buf.dedup[pos]
					if !ok {
						idx = uint32(counts.Vertices)
						buf.Vertices[counts.Vertices] = pos
						buf.dedup[pos] = idx
						counts.Vertices++
					}
					buf.Triangles[counts.Indices] = idx
					counts.Indices++
				}
			}
		}
	}
	return counts, nil
}

// crossing interpolates where the field reaches threshold along v1->v2.
// Equal corner values fall back to t = threshold.
func crossing(v1, v2 mgl32.Vec3, a, b, threshold float32) mgl32.Vec3 {
	t := threshold
	if a != b {
		t = (threshold - a) / (b - a)
	}
	return v1.Add(v2.Sub(v1).Mul(t))
}

// Normals returns area weighted vertex normals for m.
func Normals(m Mesh) []mgl32.Vec3 {
	out := make([]mgl32.Vec3, len(m.Vertices))
	for i := 0; i+2 < len(m.Triangles); i += 3 {
		a, b, c := m.Triangles[i], m.Triangles[i+1], m.Triangles[i+2]
		p0 := m.Vertices[a]
		n := m.Vertices[b].Sub(p0).Cross(m.Vertices[c].Sub(p0))
		out[a] = out[a].Add(n)
		out[b] = out[b].Add(n)
		out[c] = out[c].Add(n)
	}
	for i, n := range out {
		if l := n.Len(); l > 0 {
			out[i] = n.Mul(1 / l)
		}
	}
	return out
}

// Interleave flattens a mesh into an unindexed pos+normal triangle list,
// offset by origin.
func Interleave(m Mesh, origin mgl32.Vec3) []float32 {
	normals := Normals(m)
	out := make([]float32, 0, len(m.Triangles)*VertexStride)
	for _, idx := range m.Triangles {
		p := m.Vertices[idx].Add(origin)
		n := normals[idx]
		out = append(out, p[0], p[1], p[2], n[0], n[1], n[2])
	}
	return out
}
