package physics_test

import (
	"testing"

	"terrainbakery/internal/physics"

	"github.com/go-gl/mathgl/mgl32"
)

// unloaded reports every point as missing, with a solid value.
type unloaded struct{}

func (unloaded) Value([3]int) (float32, bool) { return 0, false }

// plane is solid for lattice x >= x.
type plane struct{ x int }

func (w plane) Value(p [3]int) (float32, bool) {
	if p[0] >= w.x {
		return 0, true
	}
	return 1, true
}

func TestRaycastHitsWall(t *testing.T) {
	start := mgl32.Vec3{0.5, 0.5, 0.5}
	result := physics.Raycast(start, mgl32.Vec3{1, 0, 0}, 0.1, 10, 0.4, plane{x: 5})
	if !result.Hit {
		t.Fatalf("Expected hit, got miss")
	}
	// the trilinear field reaches 0.4 between lattice 4 and 5 at x = 4.6
	if d := result.Point.X(); d < 4.55 || d > 4.65 {
		t.Errorf("Expected crossing near x=4.6, got %v", result.Point)
	}
	if result.Lattice != [3]int{5, 1, 1} {
		t.Errorf("Unexpected lattice point %v", result.Lattice)
	}
	if result.Distance < 4.05 || result.Distance > 4.15 {
		t.Errorf("Expected distance about 4.1, got %f", result.Distance)
	}
}

func TestRaycastMisses(t *testing.T) {
	start := mgl32.Vec3{0.5, 0.5, 0.5}
	if r := physics.Raycast(start, mgl32.Vec3{1, 0, 0}, 0.1, 3, 0.4, plane{x: 5}); r.Hit {
		t.Errorf("Expected miss due to maxDist, got hit at %v", r.Point)
	}
	if r := physics.Raycast(start, mgl32.Vec3{-1, 0, 0}, 0.1, 10, 0.4, plane{x: 5}); r.Hit {
		t.Errorf("Expected miss, got hit")
	}
	if r := physics.Raycast(start, mgl32.Vec3{}, 0.1, 10, 0.4, plane{x: 5}); r.Hit {
		t.Errorf("Zero direction should never hit")
	}
}

func TestRaycastUnloadedIsAir(t *testing.T) {
	r := physics.Raycast(mgl32.Vec3{30, 0, 0}, mgl32.Vec3{1, 0, 0}, 0.1, 20, 0.4, unloaded{})
	if r.Hit {
		t.Fatalf("hit unloaded space at %v", r.Point)
	}
}

func BenchmarkRaycast(b *testing.B) {
	start := mgl32.Vec3{0, 8, 0}
	dir := mgl32.Vec3{1, -0.2, 0}.Normalize()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = physics.Raycast(start, dir, physics.MinReachDistance, physics.MaxReachDistance, 0.4, plane{x: 12})
	}
}
