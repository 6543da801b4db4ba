package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings is the full tunable surface of a planet session.
type Settings struct {
	Planet      string              `yaml:"planet"`
	Chunk       ChunkSettings       `yaml:"chunk"`
	Noise       WorldGenSettings    `yaml:"noise"`
	Scheduler   SchedulerSettings   `yaml:"scheduler"`
	Edit        EditSettings        `yaml:"edit"`
	Persistence PersistenceSettings `yaml:"persistence"`
	View        ViewConfig          `yaml:"view"`
}

// ChunkSettings controls the lattice and the mesher.
type ChunkSettings struct {
	Size       int     `yaml:"size"`        // cells per axis; the lattice has Size+1 corners
	Threshold  float32 `yaml:"threshold"`   // iso surface
	Smooth     bool    `yaml:"smooth"`      // interpolate vertices along edges
	FlatShaded bool    `yaml:"flat_shaded"` // one vertex per triangle corner
	LODLevels  int     `yaml:"lod_levels"`  // number of meshes built per chunk, 1..5
}

// SchedulerSettings bounds the job pipeline.
type SchedulerSettings struct {
	Workers         int `yaml:"workers"`           // pool size; 0 means NumCPU
	MaxGenerating   int `yaml:"max_generating"`    // dequeue only while in-flight generations <= this
	GenerateBudget  int `yaml:"generate_budget"`   // stop dequeuing once in-flight generations exceed this
	ForceAfterTicks int `yaml:"force_after_ticks"` // a job older than this is completed synchronously
}

// EditSettings selects how brush targets are written into a field.
type EditSettings struct {
	Rule     string  `yaml:"rule"` // "clamp" or "lerp"
	LerpRate float32 `yaml:"lerp_rate"`
}

// PersistenceSettings configures where edit ledgers go.
type PersistenceSettings struct {
	Backend      string `yaml:"backend"` // "file", "sqlite" or "none"
	Dir          string `yaml:"dir"`
	ChunkSetSize int    `yaml:"chunk_set_size"` // chunks per set axis for the file backend
}

// Default returns the tuned planet settings.
func Default() *Settings {
	return &Settings{
		Planet: "planet",
		Chunk: ChunkSettings{
			Size:      20,
			Threshold: 0.4,
			Smooth:    true,
			LODLevels: 4,
		},
		Noise: DefaultWorldGen(),
		Scheduler: SchedulerSettings{
			MaxGenerating:   25,
			GenerateBudget:  20,
			ForceAfterTicks: 3,
		},
		Edit: EditSettings{
			Rule:     "clamp",
			LerpRate: 0.04,
		},
		Persistence: PersistenceSettings{
			Backend:      "file",
			Dir:          "saves",
			ChunkSetSize: 10,
		},
		View: ViewConfig{Distance: 2, UpdateDistance: 20},
	}
}

// Load reads YAML settings on top of the defaults. An empty path returns defaults.
func Load(path string) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Chunk.Size < 2 {
		return errors.New("chunk.size must be at least 2")
	}
	if s.Chunk.LODLevels < 1 || s.Chunk.LODLevels > MaxLODLevels {
		return fmt.Errorf("chunk.lod_levels must be within 1..%d", MaxLODLevels)
	}
	if s.Scheduler.Workers < 0 {
		return errors.New("scheduler.workers cannot be negative")
	}
	if s.Scheduler.MaxGenerating <= 0 || s.Scheduler.GenerateBudget <= 0 {
		return errors.New("scheduler generation limits must be positive")
	}
	if s.Scheduler.ForceAfterTicks <= 0 {
		return errors.New("scheduler.force_after_ticks must be positive")
	}
	switch s.Edit.Rule {
	case "clamp", "lerp":
	default:
		return fmt.Errorf("edit.rule %q is not one of clamp, lerp", s.Edit.Rule)
	}
	switch s.Persistence.Backend {
	case "none":
	case "file", "sqlite":
		if s.Persistence.Dir == "" {
			return errors.New("persistence.dir must be set")
		}
	default:
		return fmt.Errorf("persistence.backend %q is not one of file, sqlite, none", s.Persistence.Backend)
	}
	if s.Persistence.ChunkSetSize <= 0 {
		return errors.New("persistence.chunk_set_size must be positive")
	}
	if err := s.Noise.Validate(); err != nil {
		return err
	}
	return nil
}

// MaxLODLevels matches the size of the LOD step table.
const MaxLODLevels = 5
