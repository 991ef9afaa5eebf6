package solver

import (
	"fmt"
	"sync/atomic"

	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/task"
)

const (
	DefaultSubsteps       = 2
	DefaultIterations     = 4
	DefaultTimeStepSize   = 1.0 / 60.0
	DefaultDamping        = 0.02
	DefaultInputCapacity  = 4
	DefaultOutputCapacity = 8
)

var DefaultGravity = geom.V(0, 0, -9.81)

// Config holds everything a Solver is built from.
type Config struct {
	Substeps       int
	Iterations     int
	FixedTimeStep  bool
	TimeStepSize   float64 // used when FixedTimeStep is set
	EnableGravity  bool
	Gravity        geom.Vec3
	Damping        float64 // per-substep velocity damping in [0, 1)
	InputCapacity  int
	OutputCapacity int
}

func DefaultConfig() Config {
	return Config{
		Substeps:       DefaultSubsteps,
		Iterations:     DefaultIterations,
		TimeStepSize:   DefaultTimeStepSize,
		EnableGravity:  true,
		Gravity:        DefaultGravity,
		Damping:        DefaultDamping,
		InputCapacity:  DefaultInputCapacity,
		OutputCapacity: DefaultOutputCapacity,
	}
}

func (c Config) Validate() error {
	if c.Substeps < 1 {
		return fmt.Errorf("%w: substeps must be at least 1, got %d", ErrInvalidConfig, c.Substeps)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("%w: iterations must not be negative, got %d", ErrInvalidConfig, c.Iterations)
	}
	if c.FixedTimeStep && c.TimeStepSize <= 0 {
		return fmt.Errorf("%w: timestep size must be positive, got %f", ErrInvalidConfig, c.TimeStepSize)
	}
	if c.Damping < 0 || c.Damping >= 1 {
		return fmt.Errorf("%w: damping must be in [0, 1), got %f", ErrInvalidConfig, c.Damping)
	}
	if c.InputCapacity < 1 || c.OutputCapacity < 1 {
		return fmt.Errorf("%w: queue capacities must be at least 1", ErrInvalidConfig)
	}
	if !c.Gravity.IsValid() {
		return fmt.Errorf("%w: gravity is not finite", ErrInvalidConfig)
	}
	return nil
}

// Stats is a point-in-time copy of the solver counters.
type Stats struct {
	Frame      Frame
	Steps      uint64
	Proxies    int
	Superseded uint64 // input replaced by a later push for the same frame
	Coalesced  uint64 // input replaced because the input ring was full
	Overflowed uint64 // output replaced because the output ring was full
	Mismatched uint64 // input ignored because its kind did not match the proxy
	InputLen   int
	OutputLen  int
}

// Solver owns the registry, the frame counter and both package queues. It
// exposes no mutators of its own; use the accessors.
type Solver struct {
	cfg      Config
	steps    stepFence
	registry *Registry
	frame    atomic.Uint64

	input  *frameRing[InputPackage]
	output *frameRing[OutputPackage]

	pushed   uint64        // game context only
	consumed atomic.Uint64 // seq of the newest input a step has taken

	superseded atomic.Uint64
	coalesced  atomic.Uint64
	overflowed atomic.Uint64
	mismatched atomic.Uint64
}

// New builds a Solver. The returned GameThread tag marks the calling
// goroutine as the owning context.
func New(cfg Config) (*Solver, GameThread, error) {
	if err := cfg.Validate(); err != nil {
		return nil, GameThread{}, err
	}
	s := &Solver{
		cfg:    cfg,
		input:  newFrameRing[InputPackage](cfg.InputCapacity),
		output: newFrameRing[OutputPackage](cfg.OutputCapacity),
	}
	s.registry = newRegistry(&s.steps)
	return s, GameThread{}, nil
}

func (s *Solver) Config() Config { return s.cfg }

// RunInline runs fn on the calling goroutine as the physics context.
func (s *Solver) RunInline(fn func(PhysicsThread)) {
	fn(PhysicsThread{})
}

// Dispatch runs fn on a new goroutine as the physics context.
func (s *Solver) Dispatch(fn func(PhysicsThread)) *task.Handle {
	return task.Launch(func() { fn(PhysicsThread{}) })
}

func (s *Solver) Stats() Stats {
	return Stats{
		Frame:      Frame(s.frame.Load()),
		Steps:      s.steps.finished.Load(),
		Proxies:    s.registry.len(),
		Superseded: s.superseded.Load(),
		Coalesced:  s.coalesced.Load(),
		Overflowed: s.overflowed.Load(),
		Mismatched: s.mismatched.Load(),
		InputLen:   s.input.len(),
		OutputLen:  s.output.len(),
	}
}

func (s *Solver) step(dt float64) Step {
	if s.cfg.FixedTimeStep {
		dt = s.cfg.TimeStepSize
	}
	st := Step{
		Dt:         dt / float64(s.cfg.Substeps),
		Substeps:   s.cfg.Substeps,
		Iterations: s.cfg.Iterations,
		Damping:    s.cfg.Damping,
	}
	if s.cfg.EnableGravity {
		st.Gravity = s.cfg.Gravity
	}
	return st
}
