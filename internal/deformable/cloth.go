package deformable

import (
	"github.com/san-kum/deformsim/internal/asset"
	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/solver"
)

// ClothProxy is a position-based Verlet cloth. Pinned vertices follow the
// rest pose translated by the frame's anchor; every edge is a distance
// constraint relaxed Iterations times per substep.
type ClothProxy struct {
	mesh    *asset.RestMesh
	restLen []float64
	pinned  []bool
	pos     []geom.Vec3
	prev    []geom.Vec3
	input   solver.ClothInput
}

func NewClothProxy(mesh *asset.RestMesh, in solver.ClothInput) *ClothProxy {
	p := &ClothProxy{
		mesh:    mesh,
		restLen: mesh.RestLengths(),
		pinned:  make([]bool, mesh.VertexCount()),
	}
	for _, i := range mesh.Pinned {
		p.pinned[i] = true
	}
	p.reset(nil, in)
	return p
}

// reset restarts the proxy from warm, or from the rest pose when warm does
// not match the mesh.
func (p *ClothProxy) reset(warm []geom.Vec3, in solver.ClothInput) {
	start := p.mesh.Positions
	if len(warm) == len(start) {
		start = warm
	}
	p.pos = geom.Clone(start)
	p.prev = geom.Clone(start)
	p.input = in
}

func (p *ClothProxy) Kind() solver.Kind { return solver.KindCloth }

func (p *ClothProxy) Advance(in *solver.InputBuffer, step solver.Step) solver.OutputBuffer {
	if in != nil && in.Cloth != nil {
		p.input = *in.Cloth
	}

	acc := step.Gravity.Scale(p.input.GravityScale).Add(p.input.Wind.Scale(1 / p.mesh.Mass))
	dt2 := step.Dt * step.Dt
	keep := 1 - step.Damping

	for s := 0; s < step.Substeps; s++ {
		for i := range p.pos {
			if p.pinned[i] {
				continue
			}
			x := p.pos[i]
			vel := x.Sub(p.prev[i]).Scale(keep)
			p.prev[i] = x
			p.pos[i] = x.Add(vel).Add(acc.Scale(dt2))
		}
		p.pin()
		for it := 0; it < step.Iterations; it++ {
			p.relax()
		}
	}

	return solver.NewClothOutput(solver.ClothOutput{Positions: geom.Clone(p.pos)})
}

func (p *ClothProxy) pin() {
	for i, rest := range p.mesh.Positions {
		if p.pinned[i] {
			p.pos[i] = rest.Add(p.input.Anchor)
			p.prev[i] = p.pos[i]
		}
	}
}

func (p *ClothProxy) relax() {
	for k, e := range p.mesh.Edges {
		a, b := e[0], e[1]
		if p.pinned[a] && p.pinned[b] {
			continue
		}
		delta := p.pos[b].Sub(p.pos[a])
		d := delta.Len()
		if d == 0 {
			continue
		}
		corr := delta.Scale((d - p.restLen[k]) / d)
		switch {
		case p.pinned[a]:
			p.pos[b] = p.pos[b].Sub(corr)
		case p.pinned[b]:
			p.pos[a] = p.pos[a].Add(corr)
		default:
			half := corr.Scale(0.5)
			p.pos[a] = p.pos[a].Add(half)
			p.pos[b] = p.pos[b].Sub(half)
		}
	}
}
