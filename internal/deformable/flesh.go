package deformable

import (
	"math"

	"github.com/san-kum/deformsim/internal/asset"
	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/solver"
)

const (
	DefaultShapeStiffness = 60.0
	DefaultEdgeStiffness  = 240.0
)

// FleshProxy is a mass-spring volume pulled toward its rest shape translated
// by the frame's offset. Integration is semi-implicit Euler; an inactive
// proxy holds its last pose.
type FleshProxy struct {
	mesh    *asset.RestMesh
	restLen []float64
	pos     []geom.Vec3
	vel     []geom.Vec3
	force   []geom.Vec3
	input   solver.FleshInput

	ShapeStiffness float64
	EdgeStiffness  float64
}

func NewFleshProxy(mesh *asset.RestMesh, in solver.FleshInput) *FleshProxy {
	p := &FleshProxy{
		mesh:           mesh,
		restLen:        mesh.RestLengths(),
		force:          make([]geom.Vec3, mesh.VertexCount()),
		ShapeStiffness: DefaultShapeStiffness,
		EdgeStiffness:  DefaultEdgeStiffness,
	}
	p.reset(nil, in)
	return p
}

func (p *FleshProxy) reset(warm []geom.Vec3, in solver.FleshInput) {
	start := p.mesh.Positions
	if len(warm) == len(start) {
		start = warm
	}
	p.pos = geom.Clone(start)
	p.vel = make([]geom.Vec3, len(start))
	p.input = in
}

func (p *FleshProxy) Kind() solver.Kind { return solver.KindFlesh }

func (p *FleshProxy) Advance(in *solver.InputBuffer, step solver.Step) solver.OutputBuffer {
	if in != nil && in.Flesh != nil {
		p.input = *in.Flesh
	}

	if p.input.Active {
		for s := 0; s < step.Substeps; s++ {
			p.integrate(step)
		}
	}

	return solver.NewFleshOutput(solver.FleshOutput{
		Positions: geom.Clone(p.pos),
		Strain:    p.strain(),
	})
}

func (p *FleshProxy) integrate(step solver.Step) {
	k := p.ShapeStiffness * p.input.StiffnessScale
	invMass := 1 / p.mesh.Mass

	for i, rest := range p.mesh.Positions {
		target := rest.Add(p.input.Offset)
		p.force[i] = target.Sub(p.pos[i]).Scale(k).Add(step.Gravity.Scale(p.mesh.Mass))
	}
	for it := 0; it < max(step.Iterations, 1); it++ {
		p.accumulateEdges(1 / float64(max(step.Iterations, 1)))
	}

	keep := 1 - step.Damping
	for i := range p.pos {
		v := p.vel[i].Add(p.force[i].Scale(invMass * step.Dt)).Scale(keep)
		p.vel[i] = v
		p.pos[i] = p.pos[i].Add(v.Scale(step.Dt))
	}
}

// accumulateEdges adds one weighted pass of edge spring forces.
func (p *FleshProxy) accumulateEdges(weight float64) {
	ks := p.EdgeStiffness * p.input.StiffnessScale * weight
	for k, e := range p.mesh.Edges {
		a, b := e[0], e[1]
		delta := p.pos[b].Sub(p.pos[a])
		d := delta.Len()
		if d == 0 {
			continue
		}
		f := delta.Scale(ks * (d - p.restLen[k]) / d)
		p.force[a] = p.force[a].Add(f)
		p.force[b] = p.force[b].Sub(f)
	}
}

func (p *FleshProxy) strain() float64 {
	if len(p.restLen) == 0 {
		return 0
	}
	var sum float64
	for k, e := range p.mesh.Edges {
		if p.restLen[k] == 0 {
			continue
		}
		d := p.pos[e[1]].Sub(p.pos[e[0]]).Len()
		sum += math.Abs(d-p.restLen[k]) / p.restLen[k]
	}
	return sum / float64(len(p.restLen))
}
