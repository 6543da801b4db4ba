package world

import "errors"

var (
	// ErrJobSlotConflict rejects a request against a chunk whose slot is taken.
	ErrJobSlotConflict = errors.New("world: chunk is busy")

	// ErrEmptyField means a generation produced a field of the wrong length.
	ErrEmptyField = errors.New("world: generated field is empty")

	ErrUnknownChunk = errors.New("world: unknown chunk")
	ErrLodRange     = errors.New("world: lod out of range")
)
