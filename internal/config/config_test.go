package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultSettingsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default settings should be valid: %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"tiny chunk", func(s *Settings) { s.Chunk.Size = 1 }, "chunk.size"},
		{"too many lods", func(s *Settings) { s.Chunk.LODLevels = 6 }, "chunk.lod_levels"},
		{"zero budget", func(s *Settings) { s.Scheduler.GenerateBudget = 0 }, "generation limits"},
		{"zero force", func(s *Settings) { s.Scheduler.ForceAfterTicks = 0 }, "force_after_ticks"},
		{"bad rule", func(s *Settings) { s.Edit.Rule = "smudge" }, "edit.rule"},
		{"bad backend", func(s *Settings) { s.Persistence.Backend = "tape" }, "persistence.backend"},
		{"missing dir", func(s *Settings) { s.Persistence.Dir = "" }, "persistence.dir"},
		{"no octaves", func(s *Settings) { s.Noise.Caves.Octaves = 0 }, "octaves"},
		{"no radius", func(s *Settings) { s.Noise.Radius = 0 }, "noise.radius"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			err := s.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planet.yaml")
	raw := `
planet: moon
chunk:
  size: 16
  lod_levels: 2
noise:
  seed: 42
  radius: 64
scheduler:
  workers: 3
persistence:
  backend: sqlite
  dir: /tmp/moon
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Planet != "moon" || s.Chunk.Size != 16 || s.Chunk.LODLevels != 2 {
		t.Fatalf("chunk settings not applied: %+v", s.Chunk)
	}
	if s.Noise.Seed != 42 || s.Noise.Radius != 64 {
		t.Fatalf("noise settings not applied: %+v", s.Noise)
	}
	// untouched keys keep their defaults
	if s.Chunk.Threshold != 0.4 || s.Noise.Surface.Octaves != 3 {
		t.Fatalf("defaults lost: threshold=%v octaves=%d", s.Chunk.Threshold, s.Noise.Surface.Octaves)
	}
	if s.Scheduler.Workers != 3 || s.Scheduler.ForceAfterTicks != 3 {
		t.Fatalf("scheduler settings: %+v", s.Scheduler)
	}
	if s.Persistence.Backend != "sqlite" {
		t.Fatalf("backend = %q", s.Persistence.Backend)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Chunk.Size != 20 {
		t.Fatalf("size = %d", s.Chunk.Size)
	}
}

func TestViewDistanceClamped(t *testing.T) {
	v := NewViewSettings(ViewConfig{Distance: 0})
	if v.Distance() != 1 {
		t.Fatalf("distance = %d, want 1", v.Distance())
	}
	v.SetDistance(100)
	if v.Distance() != 32 {
		t.Fatalf("distance = %d, want 32", v.Distance())
	}
	if v.EvictDistance() != 33 {
		t.Fatalf("evict = %d", v.EvictDistance())
	}
}
