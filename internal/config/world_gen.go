package config

import "errors"

// FractalSettings describes one fractal noise signal.
type FractalSettings struct {
	Octaves          int     `yaml:"octaves"`
	Lacunarity       float32 `yaml:"lacunarity"`
	Gain             float32 `yaml:"gain"`
	WeightedStrength float32 `yaml:"weighted_strength"`
}

// WorldGenSettings holds world generation configuration
type WorldGenSettings struct {
	Seed          int64           `yaml:"seed"`
	Surface       FractalSettings `yaml:"surface"`
	Caves         FractalSettings `yaml:"caves"`
	DomainWarpAmp float32         `yaml:"domain_warp_amp"`
	Shaped        bool            `yaml:"shaped"`
	Center        [3]float32      `yaml:"center"`
	Radius        float32         `yaml:"radius"`
}

func DefaultWorldGen() WorldGenSettings {
	return WorldGenSettings{
		Seed: 1337,
		Surface: FractalSettings{
			Octaves:    3,
			Lacunarity: 2,
			Gain:       0.5,
		},
		Caves: FractalSettings{
			Octaves:          4,
			Lacunarity:       2,
			Gain:             1,
			WeightedStrength: 1,
		},
		DomainWarpAmp: 1,
		Shaped:        true,
		Radius:        100,
	}
}

func (w WorldGenSettings) Validate() error {
	if w.Surface.Octaves <= 0 || w.Caves.Octaves <= 0 {
		return errors.New("noise octaves must be positive")
	}
	if w.Shaped && w.Radius <= 0 {
		return errors.New("noise.radius must be positive when shaped")
	}
	return nil
}
