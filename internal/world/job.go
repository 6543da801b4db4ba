package world

import (
	"fmt"
	"time"

	"github.com/alitto/pond/v2"

	"terrainbakery/internal/edit"
	"terrainbakery/internal/meshing"
)

// JobKind is the work a job does on its chunk.
type JobKind int

const (
	JobGenerate JobKind = iota
	JobEdit
	JobExtract
)

func (k JobKind) String() string {
	switch k {
	case JobGenerate:
		return "generate"
	case JobEdit:
		return "edit"
	case JobExtract:
		return "extract"
	default:
		return fmt.Sprintf("JobKind(%d)", int(k))
	}
}

type generatePayload struct {
	err error
}

type editPayload struct {
	stroke edit.Stroke
	offset [3]int
	result edit.Result
}

type extractPayload struct {
	lod    int
	counts meshing.Counts
	err    error
}

// Job is one unit of pooled work holding a chunk's slot. Only the payload of its
// Kind is used. The task writes the payload; the scheduler reads it after Done.
type Job struct {
	Kind  JobKind
	chunk *Chunk
	task  pond.Task
	lease *Lease

	started   time.Time
	ticks     int
	completed bool
	err       error // task panic

	gen     generatePayload
	edit    editPayload
	extract extractPayload
}

// Done reports whether the task finished without blocking.
func (j *Job) Done() bool {
	select {
	case <-j.task.Done():
		return true
	default:
		return false
	}
}

func (j *Job) wait() {
	if err := j.task.Wait(); err != nil {
		j.err = err
	}
}

// finish releases the job's buffers. It reports false if it already ran.
func (j *Job) finish() bool {
	if j.completed {
		return false
	}
	j.completed = true
	j.lease.Release()
	return true
}
