// Package sim drives a scene and its owner frame by frame.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/deformsim/internal/metrics"
	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/scene"
)

type Simulator struct {
	owner     *owner.Owner
	scene     *scene.Scene
	metrics   []metrics.Metric
	observers []Observer

	frame int
	t     float64
}

// New attaches sc to o. The simulator becomes the only caller of o.
func New(o *owner.Owner, sc *scene.Scene) *Simulator {
	sc.Attach(o)
	return &Simulator{owner: o, scene: sc}
}

func (s *Simulator) AddMetric(m metrics.Metric) {
	s.metrics = append(s.metrics, m)
	s.owner.AddObserver(m)
}

func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Owner() *owner.Owner { return s.owner }

func (s *Simulator) Scene() *scene.Scene { return s.scene }

func (s *Simulator) Metrics() map[string]float64 { return metrics.Snapshot(s.metrics) }

// Step drives the scene for the current time and ticks the owner once. It
// blocks until the tick handle completes.
func (s *Simulator) Step(dt float64) Sample {
	s.scene.Drive(s.t)
	s.owner.TickOncePerFrame(dt).Wait()
	s.t += dt
	s.frame++

	ts := s.owner.Stats()
	smp := Sample{
		Frame:     s.frame,
		Time:      s.t,
		Solver:    s.owner.Accessor().GetFrame(),
		Applied:   ts.LastApplied,
		Staleness: ts.Staleness,
		Sag:       s.scene.Sag(),
		Proxies:   s.owner.SolverStats().Proxies,
	}
	for _, o := range s.observers {
		o.OnFrame(smp)
	}
	return smp
}

func (s *Simulator) Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Frames <= 0 || cfg.Dt <= 0 {
		return nil, fmt.Errorf("%w: frames=%d dt=%f", ErrInvalidRun, cfg.Frames, cfg.Dt)
	}
	for _, m := range s.metrics {
		m.Reset()
	}

	res := &Result{Samples: make([]Sample, 0, cfg.Frames)}
	start := time.Now()
	defer func() {
		s.owner.Wait()
		res.Elapsed = time.Since(start)
		res.Metrics = s.Metrics()
		res.Ticks = s.owner.Stats()
		res.Solver = s.owner.SolverStats()
	}()

	for i := 0; i < cfg.Frames; i++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}
		res.Samples = append(res.Samples, s.Step(cfg.Dt))
	}
	return res, nil
}

// Close detaches the scene and releases the owner's in-flight work.
func (s *Simulator) Close() {
	s.scene.Detach()
	s.owner.Close()
}
