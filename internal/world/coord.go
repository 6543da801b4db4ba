package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkCoord is a chunk position on the chunk grid.
type ChunkCoord struct {
	X, Y, Z int
}

// Array returns the coordinate as a lattice point.
func (c ChunkCoord) Array() [3]int { return [3]int{c.X, c.Y, c.Z} }

// Add offsets the coordinate.
func (c ChunkCoord) Add(o ChunkCoord) ChunkCoord {
	return ChunkCoord{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z}
}

// Origin is the world position of the chunk's lattice corner (0,0,0).
func (c ChunkCoord) Origin(size int) mgl32.Vec3 {
	return mgl32.Vec3{float32(c.X * size), float32(c.Y * size), float32(c.Z * size)}
}

// Center is the world position of the middle of the chunk.
func (c ChunkCoord) Center(size int) mgl32.Vec3 {
	h := float32(size) / 2
	return c.Origin(size).Add(mgl32.Vec3{h, h, h})
}

// NeighborOffsets holds the 26 face, edge and corner neighbour offsets.
var NeighborOffsets = func() []ChunkCoord {
	out := make([]ChunkCoord, 0, 26)
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			for z := -1; z <= 1; z++ {
				if x == 0 && y == 0 && z == 0 {
					continue
				}
				out = append(out, ChunkCoord{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}()

// LatticePoint floors a world position to the nearest lower lattice corner.
func LatticePoint(p mgl32.Vec3) [3]int {
	return [3]int{
		int(math.Floor(float64(p[0]))),
		int(math.Floor(float64(p[1]))),
		int(math.Floor(float64(p[2]))),
	}
}

// CoordOf returns the chunk that owns a world lattice point and its local position.
func CoordOf(p [3]int, size int) (ChunkCoord, [3]int) {
	c := ChunkCoord{X: floorDiv(p[0], size), Y: floorDiv(p[1], size), Z: floorDiv(p[2], size)}
	return c, [3]int{p[0] - c.X*size, p[1] - c.Y*size, p[2] - c.Z*size}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
