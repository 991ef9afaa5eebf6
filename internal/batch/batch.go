// Package batch runs many independent owners side by side.
package batch

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/deformsim/internal/config"
	"github.com/san-kum/deformsim/internal/metrics"
	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/scene"
	"github.com/san-kum/deformsim/internal/sim"
)

// Ensemble runs the same configuration Runs times. Each run gets its own
// owner, solver and scene, driven from its own goroutine.
type Ensemble struct {
	cfg      *config.Config
	runs     int
	parallel int
	baseDir  string
	log      *log.Logger
}

func NewEnsemble(cfg *config.Config, runs int) *Ensemble {
	return &Ensemble{cfg: cfg, runs: runs, parallel: runtime.GOMAXPROCS(0)}
}

// SetParallel caps concurrently running owners. Non-positive means no cap.
func (e *Ensemble) SetParallel(n int) { e.parallel = n }

// SetAssetDir sets the directory relative asset paths resolve against.
func (e *Ensemble) SetAssetDir(dir string) { e.baseDir = dir }

func (e *Ensemble) SetLogger(l *log.Logger) { e.log = l }

func (e *Ensemble) Run(ctx context.Context) ([]*sim.Result, error) {
	if e.runs <= 0 {
		return nil, fmt.Errorf("batch: runs must be positive, got %d", e.runs)
	}
	oc, err := e.cfg.Owner()
	if err != nil {
		return nil, err
	}

	results := make([]*sim.Result, e.runs)
	g, ctx := errgroup.WithContext(ctx)
	if e.parallel > 0 {
		g.SetLimit(e.parallel)
	}

	for i := 0; i < e.runs; i++ {
		g.Go(func() error {
			res, err := e.runOne(ctx, oc)
			if err != nil {
				return fmt.Errorf("batch: run %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Ensemble) runOne(ctx context.Context, oc owner.Config) (*sim.Result, error) {
	var opts []owner.Option
	if e.log != nil {
		opts = append(opts, owner.WithLogger(e.log))
	}
	o, err := owner.New(oc, opts...)
	if err != nil {
		return nil, err
	}
	sc, err := scene.Build(scene.NewRegistry(), e.cfg.Scene, e.baseDir)
	if err != nil {
		o.Close()
		return nil, err
	}

	s := sim.New(o, sc)
	defer s.Close()
	for _, m := range metrics.Defaults() {
		s.AddMetric(m)
	}
	return s.Run(ctx, sim.Config{Frames: e.cfg.Frames, Dt: e.cfg.Dt()})
}

// Summary aggregates an ensemble's results.
type Summary struct {
	Runs          int
	Frames        int
	MeanElapsed   time.Duration
	MaxElapsed    time.Duration
	FramesPerSec  float64
	MeanStaleness float64
	MaxStaleness  float64
	Deferred      uint64
	Discarded     uint64
	Overflowed    uint64
}

func Summarize(results []*sim.Result) Summary {
	var (
		sum   Summary
		total time.Duration
	)
	for _, r := range results {
		if r == nil {
			continue
		}
		sum.Runs++
		sum.Frames += len(r.Samples)
		total += r.Elapsed
		sum.MaxElapsed = max(sum.MaxElapsed, r.Elapsed)
		sum.MeanStaleness += r.Metrics["staleness"]
		sum.MaxStaleness = math.Max(sum.MaxStaleness, r.Metrics["max_staleness"])
		sum.Deferred += r.Ticks.Deferred
		sum.Discarded += r.Ticks.Discarded
		sum.Overflowed += r.Solver.Overflowed
	}
	if sum.Runs == 0 {
		return sum
	}
	sum.MeanElapsed = total / time.Duration(sum.Runs)
	sum.MeanStaleness /= float64(sum.Runs)
	if total > 0 {
		sum.FramesPerSec = float64(sum.Frames) / total.Seconds()
	}
	return sum
}
