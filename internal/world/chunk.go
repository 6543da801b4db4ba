package world

import (
	"fmt"

	"terrainbakery/internal/meshing"
)

// JobState is where a chunk is in its pipeline.
type JobState int

const (
	StateIdle JobState = iota
	StateQueued
	StateGenerating
	StateEditing
	StateMeshBuilding
	StateReady
)

var stateNames = [...]string{"idle", "queued", "generating", "editing", "mesh-building", "ready"}

func (s JobState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("JobState(%d)", int(s))
}

// Chunk is one cubic region of the planet. Its field and meshes are written only
// by the scheduler, and only while the chunk holds no job or by the job holding it.
type Chunk struct {
	Coord ChunkCoord

	field    *Lease
	baseline *Lease
	ledger   Ledger
	edited   bool

	meshes []*meshing.Mesh
	lod    int

	state          JobState
	processing     bool
	disposePending bool
}

// NewChunk creates an idle chunk with room for lods mesh levels.
func NewChunk(coord ChunkCoord, lods int) *Chunk {
	return &Chunk{
		Coord:  coord,
		ledger: make(Ledger),
		meshes: make([]*meshing.Mesh, lods),
	}
}

// State returns the pipeline state.
func (c *Chunk) State() JobState { return c.state }

// Processing reports whether a job holds the chunk's slot.
func (c *Chunk) Processing() bool { return c.processing }

// Ready reports whether every LOD is meshed and no job is running.
func (c *Chunk) Ready() bool { return c.state == StateReady && !c.processing }

// Edited reports whether the field differs from its baseline by any edit.
func (c *Chunk) Edited() bool { return c.edited }

// DisposePending reports whether disposal waits for the running job.
func (c *Chunk) DisposePending() bool { return c.disposePending }

// Field returns the current density values, or nil before generation.
func (c *Chunk) Field() []float32 {
	if c.field == nil {
		return nil
	}
	return c.field.Field()
}

// Baseline returns the field as generated, before any edit.
func (c *Chunk) Baseline() []float32 {
	if c.baseline == nil {
		return nil
	}
	return c.baseline.Field()
}

// Ledger returns the chunk's edit record.
func (c *Chunk) Ledger() Ledger { return c.ledger }

// SetLedger replaces the edit record, typically with one loaded from disk.
// It is replayed when the chunk next generates.
func (c *Chunk) SetLedger(l Ledger) {
	if l == nil {
		l = make(Ledger)
	}
	c.ledger = l
}

// Mesh returns the mesh for lod, or nil if it is not built.
func (c *Chunk) Mesh(lod int) *meshing.Mesh {
	if lod < 0 || lod >= len(c.meshes) {
		return nil
	}
	return c.meshes[lod]
}

// Lod returns the level the consumer should display.
func (c *Chunk) Lod() int { return c.lod }

// checkField verifies the field has exactly n values.
func (c *Chunk) checkField(n int) error {
	if got := len(c.Field()); got != n {
		return fmt.Errorf("%w: chunk %v has %d values, want %d", ErrEmptyField, c.Coord, got, n)
	}
	return nil
}
