package noise

import (
	"math"
	"math/rand"
	"testing"
)

var surface = Fractal{Octaves: 3, Lacunarity: 2, Gain: 0.5}

// TestHash3Deterministic verifies hash3 produces identical results for same inputs
func TestHash3Deterministic(t *testing.T) {
	first := hash3(10, 20, 30, 42)
	for i := 0; i < 100; i++ {
		if h := hash3(10, 20, 30, 42); h != first {
			t.Fatalf("hash3 not deterministic: %d != %d", h, first)
		}
	}
}

// TestOctaveSeedsDiffer verifies each octave gets its own generator seed
func TestOctaveSeedsDiffer(t *testing.T) {
	seen := map[int64]int{}
	for i := 0; i < 8; i++ {
		s := octaveSeed(1337, i)
		if prev, ok := seen[s]; ok {
			t.Fatalf("octaves %d and %d share seed %d", prev, i, s)
		}
		seen[s] = i
	}
}

func TestFBmDeterministic(t *testing.T) {
	a := New(1337, surface)
	b := New(1337, surface)
	for i := 0; i < 50; i++ {
		x, y, z := float32(i)*3.1, float32(i)*-1.7, float32(i)*0.3
		if a.FBm(x, y, z) != b.FBm(x, y, z) {
			t.Fatalf("same seed gave different values at %v,%v,%v", x, y, z)
		}
	}
}

func TestFBmSeedChangesOutput(t *testing.T) {
	a := New(1, surface)
	b := New(2, surface)
	differ := 0
	for i := 0; i < 50; i++ {
		x, y, z := float32(i)*13.1, float32(i)*7.7, float32(i)*5.3
		if a.FBm(x, y, z) != b.FBm(x, y, z) {
			differ++
		}
	}
	if differ == 0 {
		t.Fatal("different seeds produced identical samples")
	}
}

// TestFBmRange verifies the fractal bounding keeps output near [-1,1]
func TestFBmRange(t *testing.T) {
	rng := rand.New(rand.NewSource(12345))
	caves := New(7, Fractal{Octaves: 4, Lacunarity: 2, Gain: 1, WeightedStrength: 1})
	surf := New(7, surface)
	for i := 0; i < 2000; i++ {
		x := float32(rng.Float64()*4000 - 2000)
		y := float32(rng.Float64()*4000 - 2000)
		z := float32(rng.Float64()*4000 - 2000)
		for _, s := range []*Source{caves, surf} {
			v := s.FBm(x, y, z)
			if math.IsNaN(float64(v)) || v < -1.05 || v > 1.05 {
				t.Fatalf("FBm(%v,%v,%v) = %v out of range", x, y, z, v)
			}
		}
	}
}

func TestFractalBounding(t *testing.T) {
	if got := fractalBounding(Fractal{Octaves: 4, Gain: 1}); got != 0.25 {
		t.Fatalf("gain 1 bounding = %v, want 0.25", got)
	}
	if got := fractalBounding(Fractal{Octaves: 3, Gain: 0.5}); math.Abs(got-1/1.75) > 1e-12 {
		t.Fatalf("gain .5 bounding = %v", got)
	}
}

func TestWarpZeroAmplitudeIsIdentity(t *testing.T) {
	s := New(3, surface)
	x, y, z := s.Warp(12.5, -3, 8, 0)
	if x != 12.5 || y != -3 || z != 8 {
		t.Fatalf("zero warp moved point to %v,%v,%v", x, y, z)
	}
}

func TestWarpBounded(t *testing.T) {
	s := New(3, surface)
	const amp = 4
	for i := 0; i < 200; i++ {
		px, py, pz := float32(i)*1.3, float32(i)*-2.1, float32(i)*0.7
		x, y, z := s.Warp(px, py, pz, amp)
		d := math.Sqrt(float64((x-px)*(x-px) + (y-py)*(y-py) + (z-pz)*(z-pz)))
		// each axis moves at most amp, within the noise tolerance
		if d > amp*math.Sqrt(3)*1.05 {
			t.Fatalf("warp moved %v units, bound %v", d, amp*math.Sqrt(3))
		}
	}
}

func BenchmarkFBm(b *testing.B) {
	s := New(1337, Fractal{Octaves: 4, Lacunarity: 2, Gain: 1, WeightedStrength: 1})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = s.FBm(float32(i), 3, 7)
	}
}
