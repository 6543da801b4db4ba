// Package planet wires generation, meshing, editing and persistence into one
// session that owns every component it uses.
package planet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"

	"terrainbakery/internal/config"
	"terrainbakery/internal/density"
	"terrainbakery/internal/edit"
	"terrainbakery/internal/meshing"
	"terrainbakery/internal/noise"
	"terrainbakery/internal/persistence"
	"terrainbakery/internal/physics"
	"terrainbakery/internal/profiling"
	"terrainbakery/internal/world"
)

// ErrNoHit reports a sculpt ray that never reached the surface.
var ErrNoHit = errors.New("planet: ray did not hit terrain")

// shapeReach widens the shaping sphere when deciding which chunks to request.
const shapeReach = 1.5

// Planet is one terrain session.
type Planet struct {
	settings *config.Settings
	view     *config.ViewSettings
	log      *log.Logger
	prof     *profiling.Recorder
	metrics  *prometheus.Registry

	gen   *density.Generator
	reg   *world.MapRegistry
	sched *world.Scheduler
	pool  pond.Pool
	store persistence.Store

	onMesh     world.MeshReadyFunc
	lastViewer mgl32.Vec3
	haveViewer bool
	errs       []error
}

// Option customises a Planet.
type Option func(*Planet)

// WithLogger logs through l. Without it the planet is silent.
func WithLogger(l *log.Logger) Option {
	return func(p *Planet) { p.log = l }
}

// WithStore persists ledgers into s instead of the configured backend.
func WithStore(s persistence.Store) Option {
	return func(p *Planet) { p.store = s }
}

// WithMeshConsumer receives every extracted mesh.
func WithMeshConsumer(fn world.MeshReadyFunc) Option {
	return func(p *Planet) { p.onMesh = fn }
}

// WithMetricsRegistry registers collectors on r instead of a private registry.
func WithMetricsRegistry(r *prometheus.Registry) Option {
	return func(p *Planet) { p.metrics = r }
}

// New builds a planet from settings.
func New(s *config.Settings, opts ...Option) (*Planet, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("planet: %w", err)
	}
	rule, err := edit.ParseRule(s.Edit.Rule)
	if err != nil {
		return nil, err
	}

	p := &Planet{
		settings: s,
		view:     config.NewViewSettings(s.View),
		prof:     profiling.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = log.New(io.Discard, "", 0)
	}
	if p.metrics == nil {
		p.metrics = prometheus.NewRegistry()
	}
	if p.store == nil {
		st, err := persistence.Open(s.Persistence, s.Planet)
		if err != nil {
			return nil, fmt.Errorf("planet: open store: %w", err)
		}
		p.store = st
	}

	n := s.Noise
	p.gen = density.NewGenerator(density.Params{
		Size:          s.Chunk.Size,
		Seed:          n.Seed,
		Surface:       fractal(n.Surface),
		Caves:         fractal(n.Caves),
		DomainWarpAmp: n.DomainWarpAmp,
		Shaped:        n.Shaped,
		Center:        mgl32.Vec3(n.Center),
		Radius:        n.Radius,
	}, nil)

	workers := s.Scheduler.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 1)
	}
	p.pool = pond.NewPool(workers)
	p.reg = world.NewMapRegistry(s.Chunk.LODLevels)
	p.sched = world.NewScheduler(p.reg, p.gen, world.Options{
		Size:      s.Chunk.Size,
		LODLevels: s.Chunk.LODLevels,
		Mesh: meshing.Options{
			Threshold:  s.Chunk.Threshold,
			Smooth:     s.Chunk.Smooth,
			FlatShaded: s.Chunk.FlatShaded,
		},
		Rule:            rule,
		LerpRate:        s.Edit.LerpRate,
		MaxGenerating:   s.Scheduler.MaxGenerating,
		GenerateBudget:  s.Scheduler.GenerateBudget,
		ForceAfterTicks: s.Scheduler.ForceAfterTicks,
		Logger:          log.New(p.log.Writer(), "[scheduler] ", p.log.Flags()),
		Profiler:        p.prof,
		Metrics:         world.NewMetrics(p.metrics),
		Pool:            p.pool,
		OnMeshReady:     p.onMesh,
		OnDispose:       p.flushChunk,
	})
	return p, nil
}

func fractal(f config.FractalSettings) noise.Fractal {
	return noise.Fractal{
		Octaves:          f.Octaves,
		Lacunarity:       f.Lacunarity,
		Gain:             f.Gain,
		WeightedStrength: f.WeightedStrength,
	}
}

func (p *Planet) Settings() *config.Settings { return p.settings }
func (p *Planet) View() *config.ViewSettings { return p.view }
func (p *Planet) Profiler() *profiling.Recorder { return p.prof }
func (p *Planet) Metrics() *prometheus.Registry { return p.metrics }
func (p *Planet) Scheduler() *world.Scheduler { return p.sched }
func (p *Planet) Registry() *world.MapRegistry { return p.reg }
func (p *Planet) Store() persistence.Store { return p.store }

// Chunk returns the live chunk at c, or nil.
func (p *Planet) Chunk(c world.ChunkCoord) *world.Chunk { return p.reg.Get(c) }

// RequestGeneration queues chunk c, loading its saved ledger the first time the
// chunk is seen.
func (p *Planet) RequestGeneration(ctx context.Context, c world.ChunkCoord) error {
	ch, created := p.reg.GetOrCreate(c)
	if created {
		l, ok, err := p.store.Load(ctx, c)
		if err != nil {
			p.reg.Remove(c)
			return fmt.Errorf("planet: load ledger %v: %w", c, err)
		}
		if ok {
			ch.SetLedger(l)
		}
	}
	return p.sched.RequestGeneration(c)
}

// RequestEdit sculpts around a world point.
func (p *Planet) RequestEdit(point mgl32.Vec3, radius float32, add bool) error {
	return p.sched.RequestEdit(point, radius, add)
}

// Value returns the density at a world lattice point from the resident chunk
// that owns it. Chunks with a running job are not read.
func (p *Planet) Value(pt [3]int) (float32, bool) {
	size := p.settings.Chunk.Size
	c, local := world.CoordOf(pt, size)
	ch := p.reg.Get(c)
	if ch == nil || ch.Processing() {
		return 0, false
	}
	field := ch.Field()
	if field == nil {
		return 0, false
	}
	dim := size + 1
	return field[local[0]+dim*(local[1]+dim*local[2])], true
}

// Pick casts a ray through the resident field.
func (p *Planet) Pick(from, dir mgl32.Vec3, maxDist float32) physics.RaycastResult {
	defer p.prof.Track("planet.Pick")()
	return physics.Raycast(from, dir, physics.MinReachDistance, maxDist, p.settings.Chunk.Threshold, p)
}

// SculptRay edits where a ray first meets the surface and returns the hit.
func (p *Planet) SculptRay(from, dir mgl32.Vec3, radius float32, add bool) (physics.RaycastResult, error) {
	hit := p.Pick(from, dir, physics.MaxReachDistance)
	if !hit.Hit {
		return hit, ErrNoHit
	}
	return hit, p.RequestEdit(hit.Point, radius, add)
}

func (p *Planet) IsReady(c world.ChunkCoord) bool { return p.sched.IsReady(c) }

func (p *Planet) SetLod(c world.ChunkCoord, lod int) error { return p.sched.SetLod(c, lod) }

// Tick refreshes the resident set when the viewer has moved far enough, then
// advances the scheduler. Failures since the last tick are returned joined.
func (p *Planet) Tick(ctx context.Context, viewer mgl32.Vec3) error {
	defer p.prof.Track("planet.Tick")()
	if !p.haveViewer || viewer.Sub(p.lastViewer).Len() >= p.view.UpdateDistance() {
		p.lastViewer, p.haveViewer = viewer, true
		p.UnloadOutOfRange(viewer)
		if _, err := p.RequestRadius(ctx, viewer); err != nil {
			p.errs = append(p.errs, err)
		}
	}
	p.sched.Tick(viewer)
	errs := append(p.errs, p.sched.Errors()...)
	p.errs = nil
	return errors.Join(errs...)
}

func (p *Planet) viewerChunk(viewer mgl32.Vec3) world.ChunkCoord {
	c, _ := world.CoordOf(world.LatticePoint(viewer), p.settings.Chunk.Size)
	return c
}

// inShape reports whether chunk c lies close enough to the shaping sphere to
// hold any surface.
func (p *Planet) inShape(c world.ChunkCoord) bool {
	n := p.settings.Noise
	if !n.Shaped {
		return true
	}
	d := c.Center(p.settings.Chunk.Size).Sub(mgl32.Vec3(n.Center)).Len()
	return d <= n.Radius*shapeReach
}

// RequestRadius queues every idle chunk within view distance of viewer, keeps
// chunks that were about to be disposed, and returns how many it touched.
func (p *Planet) RequestRadius(ctx context.Context, viewer mgl32.Vec3) (int, error) {
	defer p.prof.Track("planet.RequestRadius")()
	center := p.viewerChunk(viewer)
	r := p.view.Distance()
	queued := 0
	for dx := -r; dx <= r; dx++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				if dx*dx+dy*dy+dz*dz > r*r {
					continue
				}
				c := center.Add(world.ChunkCoord{X: dx, Y: dy, Z: dz})
				if !p.inShape(c) {
					continue
				}
				if ch := p.reg.Get(c); ch != nil && !ch.DisposePending() && (ch.State() != world.StateIdle || ch.Processing()) {
					continue
				}
				if err := p.RequestGeneration(ctx, c); err != nil {
					return queued, err
				}
				queued++
			}
		}
	}
	return queued, nil
}

// UnloadOutOfRange disposes chunks beyond the evict distance of viewer and
// returns how many it released or marked for release.
func (p *Planet) UnloadOutOfRange(viewer mgl32.Vec3) int {
	defer p.prof.Track("planet.UnloadOutOfRange")()
	center := p.viewerChunk(viewer)
	r := p.view.EvictDistance()
	var far []world.ChunkCoord
	p.reg.Each(func(ch *world.Chunk) bool {
		dx, dy, dz := ch.Coord.X-center.X, ch.Coord.Y-center.Y, ch.Coord.Z-center.Z
		if dx*dx+dy*dy+dz*dz > r*r && !ch.DisposePending() {
			far = append(far, ch.Coord)
		}
		return true
	})
	for _, c := range far {
		if err := p.sched.Dispose(c); err != nil {
			p.log.Printf("dispose %v: %v", c, err)
		}
	}
	return len(far)
}

// flushChunk saves the edits of a chunk that is about to be released.
func (p *Planet) flushChunk(ch *world.Chunk) {
	if err := p.saveChunk(context.Background(), ch); err != nil {
		p.log.Printf("flush %v: %v", ch.Coord, err)
		p.errs = append(p.errs, err)
	}
}

func (p *Planet) saveChunk(ctx context.Context, ch *world.Chunk) error {
	if !ch.Edited() || ch.Baseline() == nil {
		return nil
	}
	if err := p.store.Save(ctx, ch.Coord, world.Diff(ch.Field(), ch.Baseline())); err != nil {
		return fmt.Errorf("planet: save %v: %w", ch.Coord, err)
	}
	return nil
}

// Save waits for running jobs and writes every edited chunk.
func (p *Planet) Save(ctx context.Context) error {
	defer p.prof.Track("planet.Save")()
	p.sched.Drain()
	var errs []error
	p.reg.Each(func(ch *world.Chunk) bool {
		if err := p.saveChunk(ctx, ch); err != nil {
			errs = append(errs, err)
		}
		return ctx.Err() == nil
	})
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	if err := p.store.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close saves, stops every pool and closes the store.
func (p *Planet) Close() error {
	err := p.Save(context.Background())
	p.sched.Close()
	p.pool.StopAndWait()
	p.gen.Close()
	return errors.Join(err, p.store.Close())
}
