// Package owner implements the SolverOwner: the single holder of a solver
// instance, which registers scene components and ticks the handoff once per
// frame.
//
// An Owner is not safe for concurrent use. Every method must be called from
// the goroutine that drives the frame loop.
package owner

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/san-kum/deformsim/internal/solver"
	"github.com/san-kum/deformsim/internal/task"
)

type entry struct {
	comp       Component
	id         solver.ProxyID
	registered bool
	warned     bool
}

// carried is an input buffer that has been pushed but may not have reached
// a step yet. seq is the first push that included it.
type carried struct {
	buf solver.InputBuffer
	seq uint64
}

type pendingRelease struct {
	comp Component
	tok  *solver.Token
}

type Owner struct {
	cfg       Config
	log       *log.Logger
	observers []FrameObserver

	solver   *solver.Solver
	ga       solver.GameThreadAccessor
	inflight *task.Handle

	entries []*entry
	byComp  map[Component]*entry
	pending []pendingRelease
	carry   map[solver.ProxyID]carried

	stats        TickStats
	lastOverflow uint64
}

func WithLogger(l *log.Logger) Option {
	return func(o *Owner) { o.log = l }
}

func WithObserver(obs FrameObserver) Option {
	return func(o *Owner) { o.observers = append(o.observers, obs) }
}

func New(cfg Config, opts ...Option) (*Owner, error) {
	o := &Owner{
		log:    log.New(io.Discard),
		byComp: make(map[Component]*entry),
		carry:  make(map[solver.ProxyID]carried),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.Reset(cfg); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Owner) AddObserver(obs FrameObserver) { o.observers = append(o.observers, obs) }

func (o *Owner) Config() Config { return o.cfg }

func (o *Owner) Stats() TickStats { return o.stats }

func (o *Owner) SolverStats() solver.Stats { return o.ga.Stats() }

// Accessor returns the owning context's view of the current solver. It is
// replaced by every Reset.
func (o *Owner) Accessor() solver.GameThreadAccessor { return o.ga }

// Adopt marks c as belonging to this owner. Its proxy is registered on the
// next tick. Adopting an owned component is a no-op.
func (o *Owner) Adopt(c Component) bool {
	if _, ok := o.byComp[c]; ok {
		return false
	}
	e := &entry{comp: c}
	o.entries = append(o.entries, e)
	o.byComp[c] = e
	return true
}

// Abandon detaches c. A registered proxy is removed from the solver and
// handed back once no in-flight step can still be advancing it.
func (o *Owner) Abandon(c Component) bool {
	e, ok := o.byComp[c]
	if !ok {
		return false
	}
	delete(o.byComp, c)
	for i, other := range o.entries {
		if other == e {
			o.entries = append(o.entries[:i], o.entries[i+1:]...)
			break
		}
	}
	if e.registered {
		delete(o.carry, e.id)
		if tok, ok := o.ga.RemoveProxy(e.id); ok {
			o.handBack(c, tok)
		}
	}
	return true
}

func (o *Owner) Owns(c Component) bool {
	_, ok := o.byComp[c]
	return ok
}

// ProxyID reports the handle of c's registered proxy.
func (o *Owner) ProxyID(c Component) (solver.ProxyID, bool) {
	e, ok := o.byComp[c]
	if !ok || !e.registered {
		return 0, false
	}
	return e.id, true
}

// Reset replaces the solver with one built from cfg and re-registers every
// owned component. An invalid cfg leaves the current solver in place.
func (o *Owner) Reset(cfg Config) error {
	s, gt, err := solver.New(cfg.Solver)
	if err != nil {
		return fmt.Errorf("owner: reset: %w", err)
	}

	o.Wait()
	if o.solver != nil {
		for _, e := range o.entries {
			if !e.registered {
				continue
			}
			if tok, ok := o.ga.RemoveProxy(e.id); ok {
				o.handBack(e.comp, tok)
			}
			e.registered = false
		}
		o.releasePending()
	}

	o.cfg = cfg
	o.solver = s
	o.ga = solver.NewGameThreadAccessor(s, gt)
	o.inflight = nil
	o.lastOverflow = 0
	clear(o.carry)

	for _, e := range o.entries {
		o.register(e)
	}
	o.stats.Resets++
	o.log.Info("solver reset",
		"threaded", cfg.Threaded,
		"policy", cfg.Policy,
		"substeps", cfg.Solver.Substeps,
		"iterations", cfg.Solver.Iterations,
		"components", len(o.entries))
	return nil
}

// TickOncePerFrame gathers inputs, runs or schedules Simulate, and applies
// the drained output. The returned handle completes once the tick's work is
// done and any dispatched Simulate has started; it does not wait for that
// Simulate to finish unless WaitForCompletion is set.
func (o *Owner) TickOncePerFrame(dt float64) *task.Handle {
	tick := task.New()
	o.stats.Ticks++

	o.releasePending()
	for _, e := range o.entries {
		if !e.registered {
			o.register(e)
		}
	}

	o.pushInput()

	s := o.solver
	simulate := func(pt solver.PhysicsThread) {
		solver.NewPhysicsThreadAccessor(s, pt).Simulate(dt)
	}
	switch {
	case !o.cfg.Threaded:
		s.RunInline(simulate)
	case o.inflight != nil && !o.inflight.Finished():
		o.stats.Deferred++
		o.log.Debug("simulation still in flight, deferring", "frame", o.ga.GetFrame())
		tick.DontCompleteUntil(o.inflight)
	default:
		o.inflight = s.Dispatch(simulate)
		o.stats.Dispatched++
		tick.DontCompleteUntil(o.inflight)
		if o.cfg.WaitForCompletion {
			o.inflight.Wait()
		}
	}

	o.drain()
	o.checkOverflow()
	tick.Complete()
	return tick
}

// Wait blocks until a dispatched Simulate, if any, has finished.
func (o *Owner) Wait() {
	if o.inflight != nil {
		o.inflight.Wait()
	}
}

// Close waits for in-flight work and hands back every proxy still pending.
func (o *Owner) Close() {
	o.Wait()
	o.releasePending()
}

func (o *Owner) register(e *entry) {
	p, ok := e.comp.NewProxy()
	if !ok {
		if !e.warned {
			o.log.Warn("component has no rest asset, proxy not created")
			e.warned = true
		}
		return
	}
	o.admit(e, o.ga.Claim(p))
}

// admit registers tok's proxy for e. A refused token goes straight back to
// the component.
func (o *Owner) admit(e *entry, tok *solver.Token) {
	if !o.ga.AddProxy(tok) {
		o.log.Error("proxy registration refused", "id", tok.ID())
		o.handBack(e.comp, tok)
		return
	}
	e.id = tok.ID()
	e.registered = true
	e.warned = false
}

// pushInput sends this frame's inputs merged over every buffer no step has
// taken yet. A queued package can be replaced before the solver drains it,
// so a buffer stays in the carry until a step consumes a package holding it.
func (o *Owner) pushInput() {
	consumed := o.ga.ConsumedInput()
	for id, c := range o.carry {
		if c.seq <= consumed {
			delete(o.carry, id)
		}
	}

	frame := o.ga.GetFrame()
	pkg := solver.NewInputPackage(frame)
	for id, c := range o.carry {
		pkg.Buffers[id] = c.buf
	}
	fresh := make(map[solver.ProxyID]solver.InputBuffer)
	for _, e := range o.entries {
		if !e.registered {
			continue
		}
		if buf, ok := e.comp.NewFrameInput(); ok {
			pkg.Buffers[e.id] = buf
			fresh[e.id] = buf
		}
	}
	seq := o.ga.PushInputPackage(frame, pkg)
	for id, buf := range fresh {
		o.carry[id] = carried{buf: buf, seq: seq}
	}
}

func (o *Owner) drain() {
	current := o.ga.GetFrame()
	if o.cfg.Policy == Lossless {
		for {
			pkg, ok := o.ga.PullOutputPackage()
			if !ok {
				return
			}
			o.apply(current, pkg)
		}
	}

	var latest *solver.OutputPackage
	for {
		pkg, ok := o.ga.PullOutputPackage()
		if !ok {
			break
		}
		if latest != nil {
			o.stats.Discarded++
		}
		latest = pkg
	}
	if latest != nil {
		o.apply(current, latest)
	}
}

func (o *Owner) apply(current solver.Frame, pkg *solver.OutputPackage) {
	for _, e := range o.entries {
		if !e.registered || !o.ga.HasObject(e.id) {
			continue
		}
		buf, ok := pkg.Buffers[e.id]
		if !ok {
			o.stats.NotReady++
			continue
		}
		e.comp.ApplyFrameOutput(buf)
	}

	o.stats.Applied++
	o.stats.LastApplied = pkg.Frame
	o.stats.Staleness = 0
	if current > pkg.Frame {
		o.stats.Staleness = uint64(current - pkg.Frame)
	}
	for _, obs := range o.observers {
		obs.ObserveFrame(current, pkg)
	}
}

func (o *Owner) checkOverflow() {
	overflowed := o.ga.Stats().Overflowed
	if overflowed == o.lastOverflow {
		return
	}
	lost := overflowed - o.lastOverflow
	o.lastOverflow = overflowed
	if o.cfg.Policy == Lossless {
		o.log.Warn("output queue overflowed, frames lost", "count", lost)
		return
	}
	o.log.Debug("output queue overflowed", "count", lost)
}

func (o *Owner) handBack(c Component, tok *solver.Token) {
	p, ok := tok.Release()
	if !ok {
		o.pending = append(o.pending, pendingRelease{comp: c, tok: tok})
		return
	}
	o.stats.Released++
	if r, ok := c.(ProxyReleaser); ok {
		r.ReleaseProxy(p)
	}
}

func (o *Owner) releasePending() {
	if len(o.pending) == 0 {
		return
	}
	waiting := o.pending
	o.pending = nil
	for _, pr := range waiting {
		o.handBack(pr.comp, pr.tok)
	}
}
