// Package edit turns sculpt strokes into writes on chunk density fields.
package edit

import (
	"math"
)

const (
	addEffector    = 1.05
	removeEffector = 0.9
)

// Point is one brush sample relative to the origin chunk.
type Point struct {
	Pos [3]int
	// Weight is the falloff factor in [0,1], near 1 at the center.
	Weight float32
	// Target is the value the stroke drives this point toward.
	Target float32
}

// SampleBrush samples every lattice offset in the ceil(radius) cube around center
// and keeps those within radius.
func SampleBrush(center [3]int, radius float32, add bool) []Point {
	if radius <= 0 {
		return nil
	}
	r := int(math.Ceil(float64(radius)))
	eff := float32(removeEffector)
	from, to := float32(0), float32(1)
	if add {
		eff = addEffector
		from, to = 1, 0
	}

	side := 2*r + 1
	points := make([]Point, 0, side*side*side)
	for i := -r; i <= r; i++ {
		for j := -r; j <= r; j++ {
			for k := -r; k <= r; k++ {
				d := float32(math.Sqrt(float64(i*i + j*j + k*k)))
				if d > radius {
					continue
				}
				t := 1 - float32(math.Exp(float64(2*(d-radius*eff))))
				t = min(max(t, 0), 1)
				points = append(points, Point{
					Pos:    [3]int{center[0] + i, center[1] + j, center[2] + k},
					Weight: t,
					Target: from + (to-from)*t,
				})
			}
		}
	}
	return points
}
