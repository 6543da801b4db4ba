// Package noise provides seeded fractal noise and domain warping over OpenSimplex.
package noise

import (
	"math"

	"github.com/ojrac/opensimplex-go"
)

// DefaultFrequency is applied to every sample coordinate before the first octave.
const DefaultFrequency = 0.01

// Fractal describes an FBm signal.
type Fractal struct {
	Octaves          int
	Lacunarity       float32
	Gain             float32
	WeightedStrength float32
}

// Source is a seeded fractal noise signal. It is immutable after New and safe for
// concurrent use.
type Source struct {
	fractal   Fractal
	frequency float64
	bounding  float64
	octaves   []opensimplex.Noise
}

// New builds a Source with one decorrelated OpenSimplex generator per octave.
func New(seed int64, f Fractal) *Source {
	if f.Octaves < 1 {
		f.Octaves = 1
	}
	s := &Source{
		fractal:   f,
		frequency: DefaultFrequency,
		bounding:  fractalBounding(f),
		octaves:   make([]opensimplex.Noise, f.Octaves),
	}
	for i := range s.octaves {
		s.octaves[i] = opensimplex.New(octaveSeed(seed, i))
	}
	return s
}

// fractalBounding normalises the octave sum back into [-1,1].
func fractalBounding(f Fractal) float64 {
	gain := math.Abs(float64(f.Gain))
	amp := gain
	ampFractal := 1.0
	for i := 1; i < f.Octaves; i++ {
		ampFractal += amp
		amp *= gain
	}
	return 1 / ampFractal
}

// FBm samples fractal Brownian motion at (x, y, z). The result is in [-1,1].
func (s *Source) FBm(x, y, z float32) float32 {
	fx := float64(x) * s.frequency
	fy := float64(y) * s.frequency
	fz := float64(z) * s.frequency

	lac := float64(s.fractal.Lacunarity)
	gain := float64(s.fractal.Gain)
	weighted := float64(s.fractal.WeightedStrength)

	sum := 0.0
	amp := s.bounding
	for _, gen := range s.octaves {
		n := gen.Eval3(fx, fy, fz)
		sum += n * amp
		amp *= lerp(1, math.Min(n+1, 2)*0.5, weighted)

		fx *= lac
		fy *= lac
		fz *= lac
		amp *= gain
	}
	return float32(sum)
}

// Warp displaces (x, y, z) progressively: each octave samples the already warped point.
// amp is measured in world units; zero returns the input unchanged.
func (s *Source) Warp(x, y, z, amp float32) (float32, float32, float32) {
	if amp == 0 {
		return x, y, z
	}
	wx, wy, wz := float64(x), float64(y), float64(z)
	a := float64(amp) * s.bounding
	freq := s.frequency
	for _, gen := range s.octaves {
		sx, sy, sz := wx*freq, wy*freq, wz*freq
		// three decorrelated samples of the same octave drive the three axes
		wx += gen.Eval3(sx, sy, sz) * a
		wy += gen.Eval3(sx+warpOffsetY, sy+warpOffsetY, sz) * a
		wz += gen.Eval3(sx, sy+warpOffsetZ, sz+warpOffsetZ) * a

		a *= float64(s.fractal.Gain)
		freq *= float64(s.fractal.Lacunarity)
	}
	return float32(wx), float32(wy), float32(wz)
}

const (
	warpOffsetY = 131.7
	warpOffsetZ = -71.3
)

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// octaveSeed derives a generator seed for octave i.
func octaveSeed(seed int64, i int) int64 {
	return int64(hash3(int64(i), 0, 0, seed))
}

func hash3(x, y, z int64, seed int64) uint64 {
	// SplitMix64 style integer hash for 3D coordinates
	// Use separate golden ratio variants per axis for better distribution
	v := uint64(x)*0x9E3779B97F4A7C15 + uint64(y)*0x517CC1B727220A95 + uint64(z)*0x6C62272E07BB0142 + uint64(seed)
	v += 0x9E3779B97F4A7C15
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	v = v ^ (v >> 31)
	return v
}
