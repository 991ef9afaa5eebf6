package deformable

import (
	"github.com/san-kum/deformsim/internal/asset"
	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/owner"
	"github.com/san-kum/deformsim/internal/solver"
)

// Presenter receives the deformed positions each time a component applies
// solver output.
type Presenter interface {
	Present(name string, positions []geom.Vec3)
}

type PresenterFunc func(name string, positions []geom.Vec3)

func (f PresenterFunc) Present(name string, positions []geom.Vec3) { f(name, positions) }

// base is the scene-side state shared by both kinds.
type base struct {
	mesh      *asset.RestMesh
	presenter Presenter
	owner     *owner.Owner

	dirty     bool
	positions []geom.Vec3
	applied   uint64
}

func (b *base) Name() string {
	if b.mesh == nil {
		return ""
	}
	return b.mesh.Name
}

func (b *base) Mesh() *asset.RestMesh { return b.mesh }

// SetMesh swaps the rest asset. It takes effect the next time a proxy is
// built for this component.
func (b *base) SetMesh(m *asset.RestMesh) { b.mesh = m }

func (b *base) SetPresenter(p Presenter) { b.presenter = p }

// Positions returns the last applied positions, or the rest pose before any
// output arrived.
func (b *base) Positions() []geom.Vec3 {
	if b.positions == nil && b.mesh != nil {
		return b.mesh.Positions
	}
	return b.positions
}

func (b *base) Applied() uint64 { return b.applied }

func (b *base) Simulating() bool { return b.owner != nil }

func (b *base) present(pos []geom.Vec3) {
	b.positions = pos
	b.applied++
	if b.presenter != nil {
		b.presenter.Present(b.Name(), pos)
	}
}

// Cloth is the scene component for a cloth sheet.
type Cloth struct {
	base
	input solver.ClothInput
	spare *ClothProxy
}

func NewCloth(mesh *asset.RestMesh) *Cloth {
	return &Cloth{
		base:  base{mesh: mesh},
		input: solver.ClothInput{GravityScale: 1},
	}
}

// EnableSimulation hands the component to o. It reports false when the
// component is already simulated by some owner.
func (c *Cloth) EnableSimulation(o *owner.Owner) bool {
	if c.owner != nil {
		return false
	}
	if !o.Adopt(c) {
		return false
	}
	c.owner = o
	return true
}

func (c *Cloth) DisableSimulation() {
	if c.owner == nil {
		return
	}
	c.owner.Abandon(c)
	c.owner = nil
}

func (c *Cloth) SetAnchor(v geom.Vec3) {
	c.input.Anchor = v
	c.dirty = true
}

func (c *Cloth) SetWind(v geom.Vec3) {
	c.input.Wind = v
	c.dirty = true
}

func (c *Cloth) SetGravityScale(s float64) {
	c.input.GravityScale = s
	c.dirty = true
}

func (c *Cloth) Input() solver.ClothInput { return c.input }

func (c *Cloth) NewProxy() (solver.Proxy, bool) {
	if c.mesh == nil {
		return nil, false
	}
	c.dirty = false
	if c.spare != nil && c.spare.mesh == c.mesh {
		p := c.spare
		c.spare = nil
		p.reset(c.positions, c.input)
		return p, true
	}
	c.spare = nil
	return NewClothProxy(c.mesh, c.input), true
}

func (c *Cloth) NewFrameInput() (solver.InputBuffer, bool) {
	if !c.dirty {
		return solver.InputBuffer{}, false
	}
	c.dirty = false
	return solver.NewClothInput(c.input), true
}

func (c *Cloth) ApplyFrameOutput(out solver.OutputBuffer) {
	if out.Kind != solver.KindCloth || out.Cloth == nil {
		return
	}
	c.present(out.Cloth.Positions)
}

// ReleaseProxy keeps the returned proxy for reuse by the next NewProxy.
func (c *Cloth) ReleaseProxy(p solver.Proxy) {
	if cp, ok := p.(*ClothProxy); ok {
		c.spare = cp
	}
}

// Sag returns the lowest vertex height of the current pose.
func (c *Cloth) Sag() float64 {
	return MinZ(c.Positions())
}

// Flesh is the scene component for a flesh volume.
type Flesh struct {
	base
	input  solver.FleshInput
	strain float64
	spare  *FleshProxy
}

func NewFlesh(mesh *asset.RestMesh) *Flesh {
	return &Flesh{
		base:  base{mesh: mesh},
		input: solver.FleshInput{StiffnessScale: 1, Active: true},
	}
}

func (f *Flesh) EnableSimulation(o *owner.Owner) bool {
	if f.owner != nil {
		return false
	}
	if !o.Adopt(f) {
		return false
	}
	f.owner = o
	return true
}

func (f *Flesh) DisableSimulation() {
	if f.owner == nil {
		return
	}
	f.owner.Abandon(f)
	f.owner = nil
}

func (f *Flesh) SetOffset(v geom.Vec3) {
	f.input.Offset = v
	f.dirty = true
}

func (f *Flesh) SetStiffnessScale(s float64) {
	f.input.StiffnessScale = s
	f.dirty = true
}

func (f *Flesh) SetActive(active bool) {
	f.input.Active = active
	f.dirty = true
}

func (f *Flesh) Input() solver.FleshInput { return f.input }

func (f *Flesh) Strain() float64 { return f.strain }

func (f *Flesh) NewProxy() (solver.Proxy, bool) {
	if f.mesh == nil {
		return nil, false
	}
	f.dirty = false
	if f.spare != nil && f.spare.mesh == f.mesh {
		p := f.spare
		f.spare = nil
		p.reset(f.positions, f.input)
		return p, true
	}
	f.spare = nil
	return NewFleshProxy(f.mesh, f.input), true
}

func (f *Flesh) NewFrameInput() (solver.InputBuffer, bool) {
	if !f.dirty {
		return solver.InputBuffer{}, false
	}
	f.dirty = false
	return solver.NewFleshInput(f.input), true
}

func (f *Flesh) ApplyFrameOutput(out solver.OutputBuffer) {
	if out.Kind != solver.KindFlesh || out.Flesh == nil {
		return
	}
	f.strain = out.Flesh.Strain
	f.present(out.Flesh.Positions)
}

func (f *Flesh) ReleaseProxy(p solver.Proxy) {
	if fp, ok := p.(*FleshProxy); ok {
		f.spare = fp
	}
}

// MinZ returns the smallest Z among positions, or 0 for none.
func MinZ(positions []geom.Vec3) float64 {
	if len(positions) == 0 {
		return 0
	}
	z := positions[0].Z
	for _, p := range positions[1:] {
		z = min(z, p.Z)
	}
	return z
}

var (
	_ owner.Component     = (*Cloth)(nil)
	_ owner.ProxyReleaser = (*Cloth)(nil)
	_ owner.Component     = (*Flesh)(nil)
	_ owner.ProxyReleaser = (*Flesh)(nil)
	_ solver.Proxy        = (*ClothProxy)(nil)
	_ solver.Proxy        = (*FleshProxy)(nil)
)
