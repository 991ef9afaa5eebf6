package solver

import (
	"errors"
	"sync"
	"testing"

	"github.com/san-kum/deformsim/internal/geom"
)

// echoProxy reports the last anchor it received as its only position.
type echoProxy struct {
	kind     Kind
	anchor   geom.Vec3
	advances int
	gate     chan struct{} // when set, Advance blocks until closed
	entered  chan struct{}
}

func (p *echoProxy) Kind() Kind { return p.kind }

func (p *echoProxy) Advance(in *InputBuffer, step Step) OutputBuffer {
	if p.entered != nil {
		close(p.entered)
		p.entered = nil
	}
	if p.gate != nil {
		<-p.gate
	}
	p.advances++
	if in != nil && in.Cloth != nil {
		p.anchor = in.Cloth.Anchor
	}
	return NewClothOutput(ClothOutput{Positions: []geom.Vec3{p.anchor.Scale(2)}})
}

func newTestSolver(t *testing.T) (*Solver, GameThreadAccessor, PhysicsThreadAccessor) {
	t.Helper()
	s, gt, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new solver: %v", err)
	}
	var pa PhysicsThreadAccessor
	s.RunInline(func(pt PhysicsThread) { pa = NewPhysicsThreadAccessor(s, pt) })
	return s, NewGameThreadAccessor(s, gt), pa
}

func register(t *testing.T, ga GameThreadAccessor, n int) []ProxyID {
	t.Helper()
	ids := make([]ProxyID, 0, n)
	for i := 0; i < n; i++ {
		tok := ga.Claim(&echoProxy{kind: KindCloth})
		if !ga.AddProxy(tok) {
			t.Fatalf("add proxy %d failed", tok.ID())
		}
		ids = append(ids, tok.ID())
	}
	return ids
}

func inputFor(frame Frame, ids []ProxyID, anchor geom.Vec3) *InputPackage {
	pkg := NewInputPackage(frame)
	for _, id := range ids {
		pkg.Buffers[id] = NewClothInput(ClothInput{Anchor: anchor, GravityScale: 1})
	}
	return pkg
}

func drainLatest(ga GameThreadAccessor) (*OutputPackage, int) {
	var latest *OutputPackage
	n := 0
	for {
		p, ok := ga.PullOutputPackage()
		if !ok {
			return latest, n
		}
		latest = p
		n++
	}
}

func TestPushSameFrameReplaces(t *testing.T) {
	s, ga, pa := newTestSolver(t)
	ids := register(t, ga, 1)

	ga.PushInputPackage(7, inputFor(7, ids, geom.V(1, 0, 0)))
	ga.PushInputPackage(7, inputFor(7, ids, geom.V(3, 0, 0)))

	st := s.Stats()
	if st.InputLen != 1 {
		t.Fatalf("expected 1 queued input, got %d", st.InputLen)
	}
	if st.Superseded != 1 {
		t.Errorf("expected 1 superseded push, got %d", st.Superseded)
	}

	pa.Simulate(0.016)
	out, _ := drainLatest(ga)
	if out == nil {
		t.Fatal("expected output package")
	}
	got := out.Buffers[ids[0]].Cloth.Positions[0]
	if got != geom.V(6, 0, 0) {
		t.Errorf("expected output from second push (6,0,0), got %v", got)
	}
}

func TestHasObjectLifecycle(t *testing.T) {
	_, ga, _ := newTestSolver(t)

	tok := ga.Claim(&echoProxy{kind: KindCloth})
	id := tok.ID()
	if ga.HasObject(id) {
		t.Error("HasObject true before AddProxy")
	}
	if !ga.AddProxy(tok) {
		t.Fatal("AddProxy failed")
	}
	if !ga.HasObject(id) {
		t.Error("HasObject false after AddProxy")
	}
	back, ok := ga.RemoveProxy(id)
	if !ok || back.ID() != id {
		t.Fatal("RemoveProxy did not hand back the proxy")
	}
	if ga.HasObject(id) {
		t.Error("HasObject true after RemoveProxy")
	}
	if _, ok := ga.RemoveProxy(id); ok {
		t.Error("second RemoveProxy should be a no-op")
	}
}

func TestTokenSingleUse(t *testing.T) {
	_, ga, _ := newTestSolver(t)
	_, other, _ := newTestSolver(t)

	tok := ga.Claim(&echoProxy{kind: KindCloth})
	if other.AddProxy(tok) {
		t.Fatal("token accepted by a foreign registry")
	}
	if !ga.AddProxy(tok) {
		t.Fatal("AddProxy failed")
	}
	if ga.AddProxy(tok) {
		t.Error("spent token registered twice")
	}
	if _, ok := tok.Release(); ok {
		t.Error("spent token released")
	}
	if ga.AddProxy(nil) {
		t.Error("nil token accepted")
	}

	back, _ := ga.RemoveProxy(tok.ID())
	p, ok := back.Release()
	if !ok || p == nil {
		t.Fatal("release with no step in flight should succeed")
	}
	if _, ok := back.Release(); ok {
		t.Error("token released twice")
	}
}

func TestZeroTokenInert(t *testing.T) {
	_, ga, _ := newTestSolver(t)
	for name, tok := range map[string]*Token{"nil": nil, "zero": {}} {
		if tok.Ready() {
			t.Errorf("%s token ready", name)
		}
		if p, ok := tok.Release(); ok || p != nil {
			t.Errorf("%s token released", name)
		}
		if ga.AddProxy(tok) {
			t.Errorf("%s token registered", name)
		}
	}
}

func TestConsumedInputTracksNewestTaken(t *testing.T) {
	_, ga, pa := newTestSolver(t)
	ids := register(t, ga, 1)

	if got := ga.ConsumedInput(); got != 0 {
		t.Fatalf("expected nothing consumed, got %d", got)
	}
	first := ga.PushInputPackage(0, inputFor(0, ids, geom.V(1, 0, 0)))
	second := ga.PushInputPackage(0, inputFor(0, ids, geom.V(2, 0, 0)))
	if second <= first {
		t.Fatalf("sequence did not advance: %d then %d", first, second)
	}
	if got := ga.ConsumedInput(); got != 0 {
		t.Errorf("push alone should not consume, got %d", got)
	}

	pa.Simulate(0.016)
	if got := ga.ConsumedInput(); got != second {
		t.Errorf("expected consumed %d, got %d", second, got)
	}

	pa.Simulate(0.016)
	if got := ga.ConsumedInput(); got != second {
		t.Errorf("step without input moved consumed to %d", got)
	}
	if got := ga.PushInputPackage(1, nil); got != 0 {
		t.Errorf("nil package got sequence %d", got)
	}
}

func TestDrainEmptyIsIdempotent(t *testing.T) {
	s, ga, _ := newTestSolver(t)
	before := s.Stats()
	for i := 0; i < 5; i++ {
		if p, ok := ga.PullOutputPackage(); ok || p != nil {
			t.Fatalf("drain %d returned a package", i)
		}
	}
	if after := s.Stats(); after != before {
		t.Errorf("draining changed stats: %+v -> %+v", before, after)
	}
}

func TestRoundTrip(t *testing.T) {
	_, ga, pa := newTestSolver(t)
	ids := register(t, ga, 1)

	ga.PushInputPackage(ga.GetFrame(), inputFor(ga.GetFrame(), ids, geom.V(1, 2, 3)))
	pa.Simulate(0.016)

	out, ok := ga.PullOutputPackage()
	if !ok {
		t.Fatal("expected output")
	}
	buf, ok := out.Buffers[ids[0]]
	if !ok {
		t.Fatalf("proxy %d missing from output", ids[0])
	}
	if err := buf.Validate(); err != nil {
		t.Fatalf("invalid buffer: %v", err)
	}
	if got := buf.Positions()[0]; got != geom.V(2, 4, 6) {
		t.Errorf("expected (2,4,6), got %v", got)
	}
	if ga.GetFrame() != 1 {
		t.Errorf("expected frame 1 after one step, got %d", ga.GetFrame())
	}
}

func TestScenarioAllProxiesUpdated(t *testing.T) {
	_, ga, pa := newTestSolver(t)
	ids := register(t, ga, 3)

	ga.PushInputPackage(1, inputFor(1, ids, geom.V(1, 1, 1)))
	pa.Simulate(0.016)
	out, _ := drainLatest(ga)

	if out.Frame != 1 {
		t.Errorf("expected frame 1, got %d", out.Frame)
	}
	for _, id := range ids {
		if _, ok := out.Buffers[id]; !ok {
			t.Errorf("proxy %d not updated", id)
		}
	}
}

func TestScenarioRemovedProxySkipped(t *testing.T) {
	_, ga, pa := newTestSolver(t)
	ids := register(t, ga, 3)

	ga.PushInputPackage(5, inputFor(5, ids, geom.V(1, 0, 0)))
	pa.Simulate(0.016)
	if _, ok := ga.RemoveProxy(ids[1]); !ok {
		t.Fatal("remove failed")
	}

	out, _ := drainLatest(ga)
	applied := map[ProxyID]bool{}
	for id := range out.Buffers {
		if ga.HasObject(id) {
			applied[id] = true
		}
	}
	if !applied[ids[0]] || !applied[ids[2]] {
		t.Errorf("expected proxies %d and %d applied, got %v", ids[0], ids[2], applied)
	}
	if applied[ids[1]] {
		t.Errorf("removed proxy %d should be skipped", ids[1])
	}
}

func TestScenarioLatestWins(t *testing.T) {
	_, ga, pa := newTestSolver(t)
	ids := register(t, ga, 1)

	ga.PushInputPackage(10, inputFor(10, ids, geom.V(10, 0, 0)))
	pa.Simulate(0.016)
	ga.PushInputPackage(11, inputFor(11, ids, geom.V(11, 0, 0)))
	pa.Simulate(0.016)

	out, n := drainLatest(ga)
	if n != 2 {
		t.Errorf("expected 2 queued outputs, got %d", n)
	}
	if out.Frame != 11 {
		t.Errorf("expected frame 11 applied, got %d", out.Frame)
	}
	if got := out.Buffers[ids[0]].Positions()[0]; got != geom.V(22, 0, 0) {
		t.Errorf("expected frame-11 result, got %v", got)
	}
}

func TestSimulateWithoutInput(t *testing.T) {
	_, ga, pa := newTestSolver(t)
	ids := register(t, ga, 2)

	pa.Simulate(0.016)
	out, ok := ga.PullOutputPackage()
	if !ok {
		t.Fatal("expected one output even without input")
	}
	if out.Frame != 0 {
		t.Errorf("expected output tagged with counter 0, got %d", out.Frame)
	}
	if len(out.Buffers) != len(ids) {
		t.Errorf("expected %d buffers, got %d", len(ids), len(out.Buffers))
	}
	if pa.Frame() != 1 {
		t.Errorf("expected counter 1, got %d", pa.Frame())
	}
}

func TestMismatchedKindIgnored(t *testing.T) {
	s, ga, pa := newTestSolver(t)
	ids := register(t, ga, 1)

	pkg := NewInputPackage(0)
	pkg.Buffers[ids[0]] = NewFleshInput(FleshInput{Active: true})
	ga.PushInputPackage(0, pkg)
	pa.Simulate(0.016)

	if got := s.Stats().Mismatched; got != 1 {
		t.Errorf("expected 1 mismatched input, got %d", got)
	}
	out, _ := ga.PullOutputPackage()
	if got := out.Buffers[ids[0]].Positions()[0]; got != (geom.Vec3{}) {
		t.Errorf("mismatched input should not reach the proxy, got %v", got)
	}
}

func TestOutputOverflowKeepsNewest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputCapacity = 2
	s, gt, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ga := NewGameThreadAccessor(s, gt)
	ids := register(t, ga, 1)

	s.RunInline(func(pt PhysicsThread) {
		pa := NewPhysicsThreadAccessor(s, pt)
		for f := Frame(1); f <= 4; f++ {
			ga.PushInputPackage(f, inputFor(f, ids, geom.V(float64(f), 0, 0)))
			pa.Simulate(0.016)
		}
	})

	if got := s.Stats().Overflowed; got != 2 {
		t.Errorf("expected 2 overflowed outputs, got %d", got)
	}
	out, n := drainLatest(ga)
	if n != 2 {
		t.Errorf("expected 2 queued outputs, got %d", n)
	}
	if out.Frame != 4 {
		t.Errorf("expected newest frame 4, got %d", out.Frame)
	}
}

func TestReleaseWaitsForInflightStep(t *testing.T) {
	s, ga, _ := newTestSolver(t)
	p := &echoProxy{kind: KindCloth, gate: make(chan struct{}), entered: make(chan struct{})}
	entered := p.entered
	tok := ga.Claim(p)
	ga.AddProxy(tok)

	h := s.Dispatch(func(pt PhysicsThread) {
		NewPhysicsThreadAccessor(s, pt).Simulate(0.016)
	})
	<-entered

	back, ok := ga.RemoveProxy(tok.ID())
	if !ok {
		t.Fatal("remove failed")
	}
	if _, ok := back.Release(); ok {
		t.Fatal("released while the step was still advancing the proxy")
	}

	close(p.gate)
	h.Wait()

	got, ok := back.Release()
	if !ok || got != Proxy(p) {
		t.Fatal("release after step finished should return the proxy")
	}
}

func TestResetTwiceWithoutTicks(t *testing.T) {
	for i := 0; i < 2; i++ {
		_, ga, _ := newTestSolver(t)
		if _, ok := ga.PullOutputPackage(); ok {
			t.Errorf("fresh solver %d returned an output", i)
		}
	}
}

func TestConcurrentPushSimulate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputCapacity = 64
	s, gt, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ga := NewGameThreadAccessor(s, gt)
	ids := register(t, ga, 4)

	const frames = 500
	var wg sync.WaitGroup
	wg.Add(1)
	stop := make(chan struct{})
	go func() {
		defer wg.Done()
		s.RunInline(func(pt PhysicsThread) {
			pa := NewPhysicsThreadAccessor(s, pt)
			for {
				select {
				case <-stop:
					return
				default:
					pa.Simulate(0.001)
				}
			}
		})
	}()

	var last Frame
	for f := Frame(1); f <= frames; f++ {
		ga.PushInputPackage(f, inputFor(f, ids, geom.V(float64(f), 0, 0)))
		for {
			p, ok := ga.PullOutputPackage()
			if !ok {
				break
			}
			if p.Frame < last {
				t.Fatalf("output reordered: %d after %d", p.Frame, last)
			}
			last = p.Frame
		}
	}
	close(stop)
	wg.Wait()
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero substeps", func(c *Config) { c.Substeps = 0 }},
		{"negative iterations", func(c *Config) { c.Iterations = -1 }},
		{"fixed zero step", func(c *Config) { c.FixedTimeStep = true; c.TimeStepSize = 0 }},
		{"damping one", func(c *Config) { c.Damping = 1 }},
		{"zero input capacity", func(c *Config) { c.InputCapacity = 0 }},
		{"zero output capacity", func(c *Config) { c.OutputCapacity = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestStepSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Substeps = 4
	cfg.FixedTimeStep = true
	cfg.TimeStepSize = 0.02
	cfg.EnableGravity = false
	s, _, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	st := s.step(0.5)
	if st.Dt != 0.005 {
		t.Errorf("expected substep 0.005, got %f", st.Dt)
	}
	if st.Gravity != (geom.Vec3{}) {
		t.Errorf("gravity disabled but got %v", st.Gravity)
	}

	s.cfg.FixedTimeStep = false
	if st := s.step(0.08); st.Dt != 0.02 {
		t.Errorf("expected variable substep 0.02, got %f", st.Dt)
	}
}

func TestBufferValidate(t *testing.T) {
	tests := []struct {
		name string
		buf  InputBuffer
		ok   bool
	}{
		{"cloth", NewClothInput(ClothInput{}), true},
		{"flesh", NewFleshInput(FleshInput{}), true},
		{"cloth without payload", InputBuffer{Kind: KindCloth}, false},
		{"both payloads", InputBuffer{Kind: KindFlesh, Cloth: &ClothInput{}, Flesh: &FleshInput{}}, false},
		{"invalid kind", InputBuffer{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.buf.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindCloth, KindFlesh} {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("rigid"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}
