// Command terrainbake generates and meshes the chunks around a viewer, applies
// an optional sculpt and saves the resulting edits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"terrainbakery/internal/config"
	"terrainbakery/internal/meshing"
	"terrainbakery/internal/planet"
	"terrainbakery/internal/stream"
	"terrainbakery/internal/world"
)

type flags struct {
	config   string
	viewer   string
	sculpt   string
	ray      string
	radius   float64
	add      bool
	maxTicks int
	metrics  bool
	quiet    bool
	serve    string
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "YAML settings file (defaults when empty)")
	flag.StringVar(&f.viewer, "viewer", "0,0,0", "viewer position x,y,z")
	flag.StringVar(&f.sculpt, "sculpt", "", "world point x,y,z to sculpt after baking")
	flag.StringVar(&f.ray, "ray", "", "sculpt where a ray from the viewer along dx,dy,dz meets the surface")
	flag.Float64Var(&f.radius, "radius", 3, "brush radius")
	flag.BoolVar(&f.add, "add", false, "add material instead of removing it")
	flag.IntVar(&f.maxTicks, "max-ticks", 10000, "give up after this many scheduler ticks")
	flag.BoolVar(&f.metrics, "metrics", false, "print scheduler metrics on exit")
	flag.BoolVar(&f.quiet, "quiet", false, "only log errors")
	flag.StringVar(&f.serve, "serve", "", "stream meshes to websocket observers on this address until interrupted")
	flag.Parse()

	logger := log.New(os.Stdout, "[terrain] ", log.LstdFlags|log.Lmicroseconds)
	if err := run(logger, f); err != nil {
		logger.Printf("error: %v", err)
		os.Exit(1)
	}
}

func run(logger *log.Logger, f flags) error {
	settings, err := config.Load(f.config)
	if err != nil {
		return err
	}
	viewer, err := parseVec(f.viewer)
	if err != nil {
		return fmt.Errorf("-viewer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var hub *stream.Hub
	if f.serve != "" {
		hub, err = stream.NewHub(settings.Chunk.Size, log.New(logger.Writer(), "[stream] ", logger.Flags()))
		if err != nil {
			return err
		}
	}

	var triangles, meshes int
	opts := []planet.Option{
		planet.WithMeshConsumer(func(c world.ChunkCoord, lod int, m meshing.Mesh, normals []mgl32.Vec3) {
			meshes++
			triangles += m.TriangleCount()
			if hub != nil {
				hub.Publish(c, lod, m, normals)
			}
		}),
	}
	if !f.quiet {
		opts = append(opts, planet.WithLogger(logger))
	}
	p, err := planet.New(settings, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Printf("close: %v", err)
		}
	}()
	if hub != nil {
		go serve(ctx, logger, f.serve, hub, p.Metrics())
	}

	if err := bake(ctx, p, viewer, f.maxTicks); err != nil {
		return err
	}
	logger.Printf("baked %d chunks: %d meshes, %d triangles", p.Registry().Len(), meshes, triangles)

	if f.sculpt != "" {
		hit, err := parseVec(f.sculpt)
		if err != nil {
			return fmt.Errorf("-sculpt: %w", err)
		}
		if err := p.RequestEdit(hit, float32(f.radius), f.add); err != nil {
			return err
		}
		if err := bake(ctx, p, viewer, f.maxTicks); err != nil {
			return err
		}
		logger.Printf("sculpted %v radius %.1f add=%v", hit, f.radius, f.add)
	}
	if f.ray != "" {
		dir, err := parseVec(f.ray)
		if err != nil {
			return fmt.Errorf("-ray: %w", err)
		}
		hit, err := p.SculptRay(viewer, dir, float32(f.radius), f.add)
		if err != nil {
			return err
		}
		if err := bake(ctx, p, viewer, f.maxTicks); err != nil {
			return err
		}
		logger.Printf("ray hit %v at distance %.2f, sculpted radius %.1f add=%v", hit.Point, hit.Distance, f.radius, f.add)
	}

	if err := p.Save(ctx); err != nil {
		return err
	}
	fmt.Print(p.Profiler().TopN(10))
	if f.metrics {
		if err := printMetrics(p); err != nil {
			return err
		}
	}
	if hub != nil {
		logger.Printf("streaming on %s, interrupt to stop", f.serve)
		<-ctx.Done()
	}
	return nil
}

func serve(ctx context.Context, logger *log.Logger, addr string, hub *stream.Hub, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/v1/meshes", hub.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
	}
}

// bake ticks until nothing is queued or running.
func bake(ctx context.Context, p *planet.Planet, viewer mgl32.Vec3, maxTicks int) error {
	var errs []error
	for i := 0; i < maxTicks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Tick(ctx, viewer); err != nil {
			errs = append(errs, err)
		}
		s := p.Scheduler()
		if i > 0 && s.Queued() == 0 && s.InFlight() == 0 {
			return errors.Join(errs...)
		}
	}
	return errors.Join(append(errs, fmt.Errorf("not settled after %d ticks", maxTicks))...)
}

func printMetrics(p *planet.Planet) error {
	families, err := p.Metrics().Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			return err
		}
	}
	return nil
}

func parseVec(s string) (mgl32.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl32.Vec3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v mgl32.Vec3
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return mgl32.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return v, nil
}
