package world

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log"
	"runtime"
	"slices"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"

	"terrainbakery/internal/edit"
	"terrainbakery/internal/meshing"
	"terrainbakery/internal/profiling"
)

// FieldSource fills a chunk lattice with density values.
type FieldSource interface {
	Fill(ctx context.Context, pos [3]int, dst []float32) error
}

// MeshReadyFunc receives every extracted LOD of a chunk.
type MeshReadyFunc func(c ChunkCoord, lod int, mesh meshing.Mesh, normals []mgl32.Vec3)

// Options configures a Scheduler. Zero budgets fall back to the defaults below.
type Options struct {
	Size      int // cells per chunk axis
	LODLevels int
	Mesh      meshing.Options
	Rule      edit.Rule
	LerpRate  float32

	MaxGenerating   int
	GenerateBudget  int
	ForceAfterTicks int
	Workers         int

	Logger      *log.Logger
	Profiler    *profiling.Recorder
	Metrics     *Metrics
	Pool        pond.Pool // when nil the scheduler owns a pool of Workers
	Buffers     *BufferPool
	OnMeshReady MeshReadyFunc
	// OnDispose runs just before a chunk's buffers are released.
	OnDispose func(*Chunk)
}

const (
	DefaultMaxGenerating   = 25
	DefaultGenerateBudget  = 20
	DefaultForceAfterTicks = 3
)

// Scheduler drives chunks through generation, editing and meshing. It is a
// cooperative poller: call Tick once per frame from a single goroutine. Jobs run
// on the pond pool; the scheduler only touches a chunk once its job is done.
type Scheduler struct {
	opts     Options
	dim      int
	fieldLen int

	reg      Registry
	src      FieldSource
	pool     pond.Pool
	ownsPool bool
	bufs     *BufferPool
	log      *log.Logger
	prof     *profiling.Recorder
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	queue      []ChunkCoord
	generating []*Job
	editing    []*Job
	extracting []*Job
	errs       []error
}

// NewScheduler creates a scheduler over reg that generates fields from src.
func NewScheduler(reg Registry, src FieldSource, opts Options) *Scheduler {
	if opts.LODLevels <= 0 {
		opts.LODLevels = 1
	}
	if opts.LerpRate == 0 {
		opts.LerpRate = edit.DefaultLerpRate
	}
	if opts.MaxGenerating <= 0 {
		opts.MaxGenerating = DefaultMaxGenerating
	}
	if opts.GenerateBudget <= 0 {
		opts.GenerateBudget = DefaultGenerateBudget
	}
	if opts.ForceAfterTicks <= 0 {
		opts.ForceAfterTicks = DefaultForceAfterTicks
	}
	dim := opts.Size + 1
	s := &Scheduler{
		opts:     opts,
		dim:      dim,
		fieldLen: dim * dim * dim,
		reg:      reg,
		src:      src,
		pool:     opts.Pool,
		bufs:     opts.Buffers,
		log:      opts.Logger,
		prof:     opts.Profiler,
		metrics:  opts.Metrics,
	}
	if s.pool == nil {
		workers := opts.Workers
		if workers <= 0 {
			workers = max(runtime.NumCPU(), 1)
		}
		s.pool = pond.NewPool(workers)
		s.ownsPool = true
	}
	if s.bufs == nil {
		s.bufs = NewBufferPool()
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Dim is the lattice corners per axis of every chunk.
func (s *Scheduler) Dim() int { return s.dim }

// Registry returns the chunk index the scheduler works on.
func (s *Scheduler) Registry() Registry { return s.reg }

// Buffers returns the scheduler's buffer pool.
func (s *Scheduler) Buffers() *BufferPool { return s.bufs }

// Queued returns the number of chunks waiting to generate.
func (s *Scheduler) Queued() int { return len(s.queue) }

// InFlight returns the number of running jobs.
func (s *Scheduler) InFlight() int {
	return len(s.generating) + len(s.editing) + len(s.extracting)
}

// Errors returns and clears the failures collected since the last call.
func (s *Scheduler) Errors() []error {
	errs := s.errs
	s.errs = nil
	return errs
}

// RequestGeneration queues the chunk at c. Queued and ready chunks are left alone.
func (s *Scheduler) RequestGeneration(c ChunkCoord) error {
	ch, _ := s.reg.GetOrCreate(c)
	if ch.processing {
		if ch.disposePending {
			ch.disposePending = false
			return nil
		}
		s.metrics.Conflicts.Inc()
		return fmt.Errorf("%w: generate %v while %s", ErrJobSlotConflict, c, ch.state)
	}
	ch.disposePending = false
	switch ch.state {
	case StateQueued, StateReady:
		return nil
	}
	ch.state = StateQueued
	s.queue = append(s.queue, c)
	s.metrics.Queued.Set(float64(len(s.queue)))
	return nil
}

// RequestEdit sculpts a sphere of radius around a world point. The chunk owning
// the point must be ready, and so must any queued or busy neighbour the brush
// reaches. Idle neighbours hold no field and are skipped.
func (s *Scheduler) RequestEdit(p mgl32.Vec3, radius float32, add bool) error {
	defer s.prof.Track("scheduler.RequestEdit")()
	origin, local := CoordOf(LatticePoint(p), s.opts.Size)
	och := s.reg.Get(origin)
	if och == nil {
		return fmt.Errorf("%w: %v", ErrUnknownChunk, origin)
	}
	if !och.Ready() {
		s.metrics.Conflicts.Inc()
		return fmt.Errorf("%w: edit %v while %s", ErrJobSlotConflict, origin, och.state)
	}

	stroke := edit.NewStroke(local, radius, add, s.opts.Rule)
	stroke.LerpRate = s.opts.LerpRate
	if len(stroke.Points) == 0 {
		return nil
	}

	type target struct {
		ch     *Chunk
		offset [3]int
	}
	targets := []target{{ch: och}}
	for _, nb := range s.reg.Neighbors(origin) {
		off := edit.Offset(origin.Array(), nb.Coord.Array(), s.opts.Size)
		if !edit.Touches(stroke.Points, off, s.dim) {
			continue
		}
		if nb.processing || nb.state == StateQueued {
			s.metrics.Conflicts.Inc()
			return fmt.Errorf("%w: edit neighbour %v while %s", ErrJobSlotConflict, nb.Coord, nb.state)
		}
		if nb.state != StateReady {
			continue
		}
		targets = append(targets, target{ch: nb, offset: off})
	}

	orphans := 0
	for _, pt := range stroke.Points {
		landed := false
		for _, t := range targets {
			if edit.Touches([]edit.Point{pt}, t.offset, s.dim) {
				landed = true
				break
			}
		}
		if !landed {
			orphans++
		}
	}
	if orphans > 0 {
		s.metrics.Discarded.Add(float64(orphans))
		s.log.Printf("edit at %v: %d brush points outside loaded chunks", origin, orphans)
	}

	for _, t := range targets {
		s.startEdit(t.ch, stroke, t.offset)
	}
	return nil
}

// IsReady reports whether the chunk at c is fully meshed and idle.
func (s *Scheduler) IsReady(c ChunkCoord) bool {
	ch := s.reg.Get(c)
	return ch != nil && ch.Ready()
}

// SetLod selects the level the consumer should display for c.
func (s *Scheduler) SetLod(c ChunkCoord, lod int) error {
	if lod < 0 || lod >= s.opts.LODLevels {
		return fmt.Errorf("%w: %d", ErrLodRange, lod)
	}
	ch := s.reg.Get(c)
	if ch == nil {
		return fmt.Errorf("%w: %v", ErrUnknownChunk, c)
	}
	ch.lod = lod
	return nil
}

// Dispose releases the chunk at c. A chunk holding a job is disposed when the
// job releases its slot.
func (s *Scheduler) Dispose(c ChunkCoord) error {
	ch := s.reg.Get(c)
	if ch == nil {
		return fmt.Errorf("%w: %v", ErrUnknownChunk, c)
	}
	if ch.processing {
		ch.disposePending = true
		return nil
	}
	s.dispose(ch)
	return nil
}

// Tick polls edits, starts queued generation nearest to viewer first, then
// polls generation and meshing.
func (s *Scheduler) Tick(viewer mgl32.Vec3) {
	defer s.prof.Track("scheduler.Tick")()
	s.editing = s.poll(s.editing, false, s.completeEdit)
	s.dequeue(viewer)
	s.generating = s.poll(s.generating, false, s.completeGenerate)
	s.extracting = s.poll(s.extracting, false, s.completeExtract)
	s.updateGauges()
}

// Drain waits for every running job and its follow-ups. Queued chunks stay queued.
func (s *Scheduler) Drain() {
	defer s.prof.Track("scheduler.Drain")()
	for s.InFlight() > 0 {
		s.editing = s.poll(s.editing, true, s.completeEdit)
		s.generating = s.poll(s.generating, true, s.completeGenerate)
		s.extracting = s.poll(s.extracting, true, s.completeExtract)
	}
	s.updateGauges()
}

// Close drains running jobs and stops the pool if the scheduler owns it.
func (s *Scheduler) Close() {
	s.Drain()
	s.cancel()
	if s.ownsPool {
		s.pool.StopAndWait()
	}
}

func (s *Scheduler) updateGauges() {
	s.metrics.Queued.Set(float64(len(s.queue)))
	s.metrics.InFlight.WithLabelValues(JobGenerate.String()).Set(float64(len(s.generating)))
	s.metrics.InFlight.WithLabelValues(JobEdit.String()).Set(float64(len(s.editing)))
	s.metrics.InFlight.WithLabelValues(JobExtract.String()).Set(float64(len(s.extracting)))
}

// poll completes finished jobs and returns those still running. Jobs past their
// tick deadline, or every job when force is set, are waited on. complete may
// return a follow-up job for the same list.
func (s *Scheduler) poll(jobs []*Job, force bool, complete func(*Job) *Job) []*Job {
	var keep, next []*Job
	for _, j := range jobs {
		if !j.Done() {
			j.ticks++
			if !force && j.ticks < s.opts.ForceAfterTicks {
				keep = append(keep, j)
				continue
			}
			if !force {
				s.metrics.Forced.WithLabelValues(j.Kind.String()).Inc()
				s.log.Printf("%s %v: forcing completion after %d ticks", j.Kind, j.chunk.Coord, j.ticks)
			}
		}
		j.wait()
		s.metrics.JobSeconds.WithLabelValues(j.Kind.String()).Observe(time.Since(j.started).Seconds())
		if follow := complete(j); follow != nil {
			next = append(next, follow)
		}
	}
	return append(keep, next...)
}

func (s *Scheduler) dequeue(viewer mgl32.Vec3) {
	if len(s.queue) == 0 {
		return
	}
	size := s.opts.Size
	slices.SortStableFunc(s.queue, func(a, b ChunkCoord) int {
		da := a.Center(size).Sub(viewer).LenSqr()
		db := b.Center(size).Sub(viewer).LenSqr()
		return cmp.Compare(da, db)
	})

	i := 0
	for i < len(s.queue) && len(s.generating) <= s.opts.MaxGenerating {
		c := s.queue[i]
		i++
		ch := s.reg.Get(c)
		if ch == nil || ch.state != StateQueued || ch.processing {
			continue
		}
		s.startGenerate(ch)
		if len(s.generating) > s.opts.GenerateBudget {
			break
		}
	}
	s.queue = slices.Delete(s.queue, 0, i)
}

func (s *Scheduler) startGenerate(ch *Chunk) {
	lease := s.bufs.Field(BufGenerate, s.fieldLen)
	j := &Job{Kind: JobGenerate, chunk: ch, lease: lease, started: time.Now()}
	pos := ch.Coord.Array()
	ctx := s.ctx
	j.task = s.pool.Submit(func() {
		j.gen.err = s.src.Fill(ctx, pos, lease.Field())
	})
	ch.state = StateGenerating
	ch.processing = true
	s.generating = append(s.generating, j)
}

func (s *Scheduler) completeGenerate(j *Job) *Job {
	ch := j.chunk
	err := j.err
	if err == nil {
		err = j.gen.err
	}
	if err != nil {
		j.finish()
		s.fail(j, fmt.Errorf("%w: chunk %v: %w", ErrEmptyField, ch.Coord, err))
		ch.state = StateIdle
		s.release(ch)
		return nil
	}

	if ch.field == nil {
		ch.field = s.bufs.Field(BufChunk, s.fieldLen)
		ch.baseline = s.bufs.Field(BufChunk, s.fieldLen)
	}
	copy(ch.baseline.Field(), j.lease.Field())
	copy(ch.field.Field(), j.lease.Field())
	j.finish()
	s.metrics.Completed.WithLabelValues(j.Kind.String()).Inc()

	if len(ch.ledger) > 0 {
		if skipped := ch.ledger.Replay(ch.field.Field()); skipped > 0 {
			s.log.Printf("chunk %v: %d ledger entries out of range", ch.Coord, skipped)
		}
		ch.edited = true
	}
	if next := s.startExtract(ch, 0); next != nil {
		s.extracting = append(s.extracting, next)
	}
	return nil
}

func (s *Scheduler) startEdit(ch *Chunk, stroke edit.Stroke, offset [3]int) {
	lease := s.bufs.Field(BufEdit, s.fieldLen)
	scratch := lease.Field()
	copy(scratch, ch.Field())
	j := &Job{Kind: JobEdit, chunk: ch, lease: lease, started: time.Now()}
	j.edit.stroke = stroke
	j.edit.offset = offset
	dim := s.dim
	j.task = s.pool.Submit(func() {
		j.edit.result = edit.Apply(scratch, dim, stroke, offset)
	})
	ch.state = StateEditing
	ch.processing = true
	s.editing = append(s.editing, j)
}

func (s *Scheduler) completeEdit(j *Job) *Job {
	ch := j.chunk
	j.finish()
	if j.err != nil {
		s.fail(j, fmt.Errorf("edit chunk %v: %w", ch.Coord, j.err))
		ch.state = StateReady
		s.release(ch)
		return nil
	}
	s.metrics.Completed.WithLabelValues(j.Kind.String()).Inc()

	res := j.edit.result
	if !res.Wrote() {
		ch.state = StateReady
		s.release(ch)
		return nil
	}
	field := ch.Field()
	for _, w := range res.Writes {
		field[w.Index] = w.Value
	}
	ch.ledger.Record(res.Writes)
	ch.edited = true
	if next := s.startExtract(ch, 0); next != nil {
		s.extracting = append(s.extracting, next)
	}
	return nil
}

// startExtract meshes one LOD of ch, or fails the chunk if its field is malformed.
func (s *Scheduler) startExtract(ch *Chunk, lod int) *Job {
	if err := ch.checkField(s.fieldLen); err != nil {
		s.fail(&Job{Kind: JobExtract, chunk: ch}, err)
		ch.state = StateIdle
		s.release(ch)
		return nil
	}
	lease := s.bufs.Mesh(s.dim)
	j := &Job{Kind: JobExtract, chunk: ch, lease: lease, started: time.Now()}
	j.extract.lod = lod
	field, dim, opts := ch.Field(), s.dim, s.opts.Mesh
	j.task = s.pool.Submit(func() {
		j.extract.counts, j.extract.err = meshing.Extract(field, dim, lod, opts, lease.Mesh())
	})
	ch.state = StateMeshBuilding
	ch.processing = true
	return j
}

func (s *Scheduler) completeExtract(j *Job) *Job {
	ch := j.chunk
	lod := j.extract.lod
	err := j.err
	if err == nil {
		err = j.extract.err
	}
	if err != nil {
		j.finish()
		s.fail(j, fmt.Errorf("extract chunk %v lod %d: %w", ch.Coord, lod, err))
		ch.state = StateIdle
		s.release(ch)
		return nil
	}

	mesh := j.lease.Mesh().Mesh(j.extract.counts)
	j.finish()
	s.metrics.Completed.WithLabelValues(j.Kind.String()).Inc()
	ch.meshes[lod] = &mesh
	if s.opts.OnMeshReady != nil {
		s.opts.OnMeshReady(ch.Coord, lod, mesh, meshing.Normals(mesh))
	}

	if lod+1 < len(ch.meshes) {
		return s.startExtract(ch, lod+1)
	}
	ch.state = StateReady
	s.release(ch)
	return nil
}

func (s *Scheduler) fail(j *Job, err error) {
	s.metrics.Failed.WithLabelValues(j.Kind.String()).Inc()
	s.log.Printf("%s failed: %v", j.Kind, err)
	s.errs = append(s.errs, err)
}

// release frees the chunk's slot and runs a deferred disposal.
func (s *Scheduler) release(ch *Chunk) {
	ch.processing = false
	if ch.disposePending {
		s.dispose(ch)
	}
}

func (s *Scheduler) dispose(ch *Chunk) {
	if s.opts.OnDispose != nil {
		s.opts.OnDispose(ch)
	}
	ch.field.Release()
	ch.baseline.Release()
	ch.field, ch.baseline = nil, nil
	clear(ch.meshes)
	ch.ledger = make(Ledger)
	ch.edited = false
	ch.state = StateIdle
	ch.disposePending = false
	s.reg.Remove(ch.Coord)
	s.metrics.Disposed.Inc()
}
