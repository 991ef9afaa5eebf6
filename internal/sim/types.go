package sim

import (
	"errors"
	"time"

	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/solver"
)

var ErrInvalidRun = errors.New("sim: invalid run config")

type Config struct {
	Frames int
	Dt     float64
}

// Sample is the state of the game side after one tick.
type Sample struct {
	Frame     int
	Time      float64
	Solver    solver.Frame // solver frame counter after the tick
	Applied   solver.Frame // frame of the last applied package
	Staleness uint64
	Sag       float64
	Proxies   int
}

type Observer interface {
	OnFrame(s Sample)
}

type ObserverFunc func(Sample)

func (f ObserverFunc) OnFrame(s Sample) { f(s) }

type Result struct {
	Samples []Sample
	Metrics map[string]float64
	Ticks   owner.TickStats
	Solver  solver.Stats
	Elapsed time.Duration
}
