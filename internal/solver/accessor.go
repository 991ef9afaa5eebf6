package solver

// GameThread is the capability tag of the owning context. New issues it to
// the goroutine that creates the Solver.
type GameThread struct{ _ [0]func() }

// PhysicsThread is the capability tag of the solver context. It is only
// passed to callbacks run by RunInline or Dispatch.
type PhysicsThread struct{ _ [0]func() }

// GameThreadAccessor is the owning context's view of a Solver.
type GameThreadAccessor struct {
	s *Solver
}

func NewGameThreadAccessor(s *Solver, _ GameThread) GameThreadAccessor {
	return GameThreadAccessor{s: s}
}

// Claim mints a token carrying a fresh ProxyID for p. The proxy is not
// registered until the token is passed to AddProxy.
func (a GameThreadAccessor) Claim(p Proxy) *Token {
	return a.s.registry.claim(p)
}

// AddProxy registers the token's proxy and consumes the token. It is a no-op
// returning false for a spent or foreign token or an already registered ID.
func (a GameThreadAccessor) AddProxy(tok *Token) bool {
	return a.s.registry.add(tok)
}

// RemoveProxy unregisters id and hands the proxy back as a new token.
func (a GameThreadAccessor) RemoveProxy(id ProxyID) (*Token, bool) {
	return a.s.registry.remove(id)
}

func (a GameThreadAccessor) HasObject(id ProxyID) bool {
	return a.s.registry.has(id)
}

// PushInputPackage moves pkg into the input queue under frame and returns
// its push sequence number. A package still queued for the same frame is
// replaced. The caller must not touch pkg afterwards.
func (a GameThreadAccessor) PushInputPackage(frame Frame, pkg *InputPackage) uint64 {
	if pkg == nil {
		return 0
	}
	a.s.pushed++
	pkg.seq = a.s.pushed
	pkg.Frame = frame
	switch a.s.input.push(pkg, func(old *InputPackage) bool { return old.Frame == frame }) {
	case pushReplaced:
		a.s.superseded.Add(1)
	case pushCoalesced:
		a.s.coalesced.Add(1)
	}
	return pkg.seq
}

// ConsumedInput returns the sequence number of the newest input package a
// step has taken off the queue. Packages pushed with a higher number may
// still be replaced before any step sees them.
func (a GameThreadAccessor) ConsumedInput() uint64 {
	return a.s.consumed.Load()
}

// PullOutputPackage pops the oldest queued output package. Callers that
// want the newest result loop until it reports false and keep the last one.
func (a GameThreadAccessor) PullOutputPackage() (*OutputPackage, bool) {
	return a.s.output.pop()
}

func (a GameThreadAccessor) GetFrame() Frame {
	return Frame(a.s.frame.Load())
}

func (a GameThreadAccessor) Stats() Stats { return a.s.Stats() }

// PhysicsThreadAccessor is the solver context's view of a Solver.
type PhysicsThreadAccessor struct {
	s *Solver
}

func NewPhysicsThreadAccessor(s *Solver, _ PhysicsThread) PhysicsThreadAccessor {
	return PhysicsThreadAccessor{s: s}
}
