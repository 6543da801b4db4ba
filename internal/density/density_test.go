package density

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"terrainbakery/internal/noise"
)

func testParams(size int) Params {
	return Params{
		Size:          size,
		Seed:          1337,
		Surface:       noise.Fractal{Octaves: 3, Lacunarity: 2, Gain: 0.5},
		Caves:         noise.Fractal{Octaves: 4, Lacunarity: 2, Gain: 1, WeightedStrength: 1},
		DomainWarpAmp: 1,
		Shaped:        true,
		Radius:        30,
	}
}

func TestGenerateLength(t *testing.T) {
	for _, size := range []int{2, 8, 20} {
		g := NewGenerator(testParams(size), nil)
		for _, pos := range [][3]int{{0, 0, 0}, {-1, 2, -3}, {5, -5, 0}} {
			field, err := g.Generate(context.Background(), pos)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			want := (size + 1) * (size + 1) * (size + 1)
			if len(field) != want {
				t.Fatalf("size %d pos %v: len = %d, want %d", size, pos, len(field), want)
			}
		}
		g.Close()
	}
}

func TestFillRejectsWrongLength(t *testing.T) {
	g := NewGenerator(testParams(4), nil)
	defer g.Close()
	err := g.Fill(context.Background(), [3]int{}, make([]float32, 5))
	if !errors.Is(err, ErrFieldSize) {
		t.Fatalf("err = %v, want ErrFieldSize", err)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	g := NewGenerator(testParams(8), nil)
	defer g.Close()
	a, _ := g.Generate(context.Background(), [3]int{1, 0, -1})
	b, _ := g.Generate(context.Background(), [3]int{1, 0, -1})
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("index %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

// TestSharedBoundaryMatches verifies neighbours agree on their shared plane
func TestSharedBoundaryMatches(t *testing.T) {
	const size = 8
	g := NewGenerator(testParams(size), nil)
	defer g.Close()
	dim := size + 1
	left, _ := g.Generate(context.Background(), [3]int{0, 0, 0})
	right, _ := g.Generate(context.Background(), [3]int{1, 0, 0})
	for z := 0; z < dim; z++ {
		for y := 0; y < dim; y++ {
			l := left[size+dim*(y+dim*z)]
			r := right[0+dim*(y+dim*z)]
			if l != r {
				t.Fatalf("y=%d z=%d: left %v right %v", y, z, l, r)
			}
		}
	}
}

func TestShapingForcesAirFarAway(t *testing.T) {
	g := NewGenerator(testParams(4), nil)
	defer g.Close()
	// 40 units beyond the surface the falloff term is within 1e-5 of 1
	v := g.Sample(70, 0, 0)
	if v < 0.99 {
		t.Fatalf("far sample = %v, want ~1", v)
	}
}

func TestInteriorKeepsNoiseRange(t *testing.T) {
	for _, radius := range []float32{30, 100, 400} {
		p := testParams(4)
		p.Radius = radius
		g := NewGenerator(p, nil)
		for _, d := range []float32{0, radius / 2, radius * 0.9} {
			v := g.Sample(d, 0.5, 0.25)
			if math.IsNaN(float64(v)) || v < -1.05 || v > 1.05 {
				t.Fatalf("radius %v at %v: value %v outside noise range", radius, d, v)
			}
		}
		g.Close()
	}
}

func TestUnshapedIsRawNoise(t *testing.T) {
	p := testParams(4)
	p.Shaped = false
	p.Center = mgl32.Vec3{1000, 0, 0}
	g := NewGenerator(p, nil)
	defer g.Close()
	v := g.Sample(3, 4, 5)
	if v < -1.05 || v > 1.05 {
		t.Fatalf("unshaped value %v outside noise range", v)
	}
}

func TestFillHonoursCancel(t *testing.T) {
	g := NewGenerator(testParams(4), nil)
	defer g.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.Fill(ctx, [3]int{}, make([]float32, g.FieldLen()))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func BenchmarkGenerate(b *testing.B) {
	g := NewGenerator(testParams(20), nil)
	defer g.Close()
	field := make([]float32, g.FieldLen())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = g.Fill(context.Background(), [3]int{i % 4, 0, 0}, field)
	}
}
