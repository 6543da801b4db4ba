// Package density fills chunk lattices with the planet scalar field.
package density

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"

	"terrainbakery/internal/noise"
)

// Sampling constants of the planet field.
const (
	surfaceScale  = 1.5
	caveScale     = 0.4
	sampleOffset  = 0.01
	caveThreshold = 0.47
	shapeFalloff  = 0.3
)

// ErrFieldSize reports a destination buffer that does not match the lattice.
var ErrFieldSize = errors.New("density: field length does not match lattice")

// Params configures a Generator.
type Params struct {
	Size          int // cells per axis
	Seed          int64
	Surface       noise.Fractal
	Caves         noise.Fractal
	DomainWarpAmp float32

	// Shaped forces the field toward air outside a sphere of Radius around Center.
	Shaped bool
	Center mgl32.Vec3
	Radius float32
}

// Generator evaluates the field for whole chunks. It is safe for concurrent use.
type Generator struct {
	params  Params
	surface *noise.Source
	caves   *noise.Source

	slabs    pond.Pool
	ownsPool bool
}

// NewGenerator builds a generator. slabs runs one task per x-slab; when nil the
// generator starts its own pool sized to the CPU count and Close stops it.
func NewGenerator(p Params, slabs pond.Pool) *Generator {
	g := &Generator{
		params:  p,
		surface: noise.New(p.Seed, p.Surface),
		caves:   noise.New(p.Seed, p.Caves),
		slabs:   slabs,
	}
	if g.slabs == nil {
		g.slabs = pond.NewPool(max(runtime.NumCPU(), 1))
		g.ownsPool = true
	}
	return g
}

// Close stops the slab pool if the generator owns it.
func (g *Generator) Close() {
	if g.ownsPool {
		g.slabs.StopAndWait()
	}
}

// Dim is the number of lattice corners per axis.
func (g *Generator) Dim() int { return g.params.Size + 1 }

// FieldLen is the exact length of a chunk field.
func (g *Generator) FieldLen() int {
	d := g.Dim()
	return d * d * d
}

// Generate allocates and fills the field of the chunk at grid position pos.
func (g *Generator) Generate(ctx context.Context, pos [3]int) ([]float32, error) {
	field := make([]float32, g.FieldLen())
	if err := g.Fill(ctx, pos, field); err != nil {
		return nil, err
	}
	return field, nil
}

// Fill writes the field of the chunk at grid position pos into dst, flattened as
// x + dim*(y + dim*z).
func (g *Generator) Fill(ctx context.Context, pos [3]int, dst []float32) error {
	if len(dst) != g.FieldLen() {
		return fmt.Errorf("%w: got %d, want %d", ErrFieldSize, len(dst), g.FieldLen())
	}
	dim := g.Dim()
	size := g.params.Size
	origin := [3]int{pos[0] * size, pos[1] * size, pos[2] * size}

	group := g.slabs.NewGroup()
	for x := 0; x < dim; x++ {
		group.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			g.fillSlab(dst, origin, x)
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("density: slab: %w", err)
	}
	return ctx.Err()
}

// fillSlab fills every point with local x fixed. Slabs never overlap.
func (g *Generator) fillSlab(dst []float32, origin [3]int, x int) {
	dim := g.Dim()
	for z := 0; z < dim; z++ {
		for y := 0; y < dim; y++ {
			dst[x+dim*(y+dim*z)] = g.Sample(
				float32(origin[0]+x),
				float32(origin[1]+y),
				float32(origin[2]+z),
			)
		}
	}
}

// Sample evaluates the field at one world coordinate.
func (g *Generator) Sample(x, y, z float32) float32 {
	surface := g.surface.FBm(
		x*surfaceScale+sampleOffset,
		z*surfaceScale+sampleOffset,
		y*surfaceScale+sampleOffset,
	)

	// warp the coordinates to get hills and wobbles
	x, y, z = g.surface.Warp(x, y, z, g.params.DomainWarpAmp)
	cave := g.caves.FBm(
		x*caveScale+sampleOffset,
		z*caveScale+sampleOffset,
		y*caveScale+sampleOffset,
	)

	value := surface
	if cave > caveThreshold {
		value = cave
	}
	if !g.params.Shaped {
		return value
	}

	distance := mgl32.Vec3{x, y, z}.Sub(g.params.Center).Len()
	// clamped: the interior keeps the raw noise, and exp overflow stays finite
	t := mgl32.Clamp(1-float32(math.Exp(-shapeFalloff*float64(distance-g.params.Radius))), 0, 1)
	return value + t*(1-value)
}
