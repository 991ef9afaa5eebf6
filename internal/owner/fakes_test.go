package owner

import (
	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/solver"
)

// identityProxy returns the last anchor it was given as its only position.
type identityProxy struct {
	anchor  geom.Vec3
	gate    <-chan struct{}
	started chan<- struct{}
}

func (p *identityProxy) Kind() solver.Kind { return solver.KindCloth }

func (p *identityProxy) Advance(in *solver.InputBuffer, _ solver.Step) solver.OutputBuffer {
	if p.started != nil {
		select {
		case p.started <- struct{}{}:
		default:
		}
	}
	if p.gate != nil {
		<-p.gate
	}
	if in != nil {
		p.anchor = in.Cloth.Anchor
	}
	return solver.NewClothOutput(solver.ClothOutput{Positions: []geom.Vec3{p.anchor}})
}

type fakeComponent struct {
	hasAsset bool
	anchor   geom.Vec3
	dirty    bool
	oneShot  bool // clear dirty once an input has been taken
	gate     <-chan struct{}
	started  chan<- struct{}

	built    int
	applied  []geom.Vec3
	released []solver.Proxy
}

func newFake(x float64) *fakeComponent {
	return &fakeComponent{hasAsset: true, anchor: geom.V(x, 0, 0), dirty: true}
}

func (c *fakeComponent) NewProxy() (solver.Proxy, bool) {
	if !c.hasAsset {
		return nil, false
	}
	c.built++
	return &identityProxy{gate: c.gate, started: c.started}, true
}

func (c *fakeComponent) NewFrameInput() (solver.InputBuffer, bool) {
	if !c.dirty {
		return solver.InputBuffer{}, false
	}
	if c.oneShot {
		c.dirty = false
	}
	return solver.NewClothInput(solver.ClothInput{Anchor: c.anchor}), true
}

func (c *fakeComponent) ApplyFrameOutput(buf solver.OutputBuffer) {
	c.applied = append(c.applied, buf.Positions()[0])
}

func (c *fakeComponent) ReleaseProxy(p solver.Proxy) {
	c.released = append(c.released, p)
}

func (c *fakeComponent) last() geom.Vec3 {
	if len(c.applied) == 0 {
		return geom.Vec3{}
	}
	return c.applied[len(c.applied)-1]
}

func (c *fakeComponent) set(x float64) {
	c.anchor = geom.V(x, 0, 0)
	c.dirty = true
}

type frameLog struct {
	frames []solver.Frame
}

func (l *frameLog) ObserveFrame(_ solver.Frame, pkg *solver.OutputPackage) {
	l.frames = append(l.frames, pkg.Frame)
}
