// Package physics marches rays through the density field to find where a
// brush should land.
package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	MinReachDistance = 0.1
	MaxReachDistance = 64.0

	stepSize    = 0.05
	refineSteps = 8
)

// Field samples the density at an integer lattice point. ok is false when no
// resident chunk holds that point.
type Field interface {
	Value(p [3]int) (v float32, ok bool)
}

// RaycastResult stores the result of a raycast operation
type RaycastResult struct {
	Point    mgl32.Vec3 // interpolated surface crossing
	Lattice  [3]int     // lattice point nearest the crossing
	Distance float32
	Hit      bool
}

// Raycast steps from start along direction until the trilinear field drops to
// threshold or below, then bisects back to the crossing. Unloaded space counts
// as air.
func Raycast(start, direction mgl32.Vec3, minDist, maxDist, threshold float32, f Field) RaycastResult {
	if direction.Len() == 0 {
		return RaycastResult{}
	}
	dir := direction.Normalize()
	steps := int(maxDist / stepSize)

	prev := float32(-1)
	for i := 0; i <= steps; i++ {
		dist := float32(i) * stepSize
		if dist < minDist {
			continue
		}
		v, ok := sample(f, start.Add(dir.Mul(dist)))
		if !ok {
			v = 1
		}
		if v <= threshold {
			if prev < 0 {
				prev = dist
			}
			dist = refine(f, start, dir, prev, dist, threshold)
			p := start.Add(dir.Mul(dist))
			return RaycastResult{
				Point:    p,
				Lattice:  round(p),
				Distance: dist,
				Hit:      true,
			}
		}
		prev = dist
	}
	return RaycastResult{}
}

// refine bisects [air, solid] toward the threshold crossing.
func refine(f Field, start, dir mgl32.Vec3, air, solid, threshold float32) float32 {
	for i := 0; i < refineSteps; i++ {
		mid := (air + solid) / 2
		if v, ok := sample(f, start.Add(dir.Mul(mid))); ok && v <= threshold {
			solid = mid
		} else {
			air = mid
		}
	}
	return solid
}

// sample interpolates the eight lattice corners around p.
func sample(f Field, p mgl32.Vec3) (float32, bool) {
	x0 := int(math.Floor(float64(p[0])))
	y0 := int(math.Floor(float64(p[1])))
	z0 := int(math.Floor(float64(p[2])))
	tx := p[0] - float32(x0)
	ty := p[1] - float32(y0)
	tz := p[2] - float32(z0)

	var c [8]float32
	for i := range c {
		dx, dy, dz := i&1, (i>>1)&1, (i>>2)&1
		v, ok := f.Value([3]int{x0 + dx, y0 + dy, z0 + dz})
		if !ok {
			return 0, false
		}
		c[i] = v
	}
	x00 := lerp(c[0], c[1], tx)
	x10 := lerp(c[2], c[3], tx)
	x01 := lerp(c[4], c[5], tx)
	x11 := lerp(c[6], c[7], tx)
	return lerp(lerp(x00, x10, ty), lerp(x01, x11, ty), tz), true
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

func round(p mgl32.Vec3) [3]int {
	return [3]int{
		int(math.Floor(float64(p[0]) + 0.5)),
		int(math.Floor(float64(p[1]) + 0.5)),
		int(math.Floor(float64(p[2]) + 0.5)),
	}
}
