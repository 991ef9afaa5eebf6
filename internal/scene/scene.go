// Package scene builds the set of simulated objects a run drives and
// animates their per-frame inputs.
package scene

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/san-kum/deformsim/internal/asset"
	"github.com/san-kum/deformsim/internal/config"
	"github.com/san-kum/deformsim/internal/deformable"
	"github.com/san-kum/deformsim/internal/geom"
	"github.com/san-kum/deformsim/internal/owner"
)

// Body is what every deformable component offers the scene.
type Body interface {
	owner.Component
	Name() string
	Mesh() *asset.RestMesh
	Positions() []geom.Vec3
	EnableSimulation(o *owner.Owner) bool
	DisableSimulation()
}

type Entity struct {
	Name string
	Kind string
	Body Body

	// Exactly one is set, matching Kind.
	Cloth *deformable.Cloth
	Flesh *deformable.Flesh

	sway float64
}

// drive animates the entity's input for scene time t. Entities without sway
// push no input and keep their previous parameters.
func (e *Entity) drive(t float64) {
	if e.sway == 0 {
		return
	}
	s := e.sway * math.Sin(2*math.Pi*0.5*t)
	switch {
	case e.Cloth != nil:
		e.Cloth.SetAnchor(geom.V(s, 0, 0))
	case e.Flesh != nil:
		e.Flesh.SetOffset(geom.V(0, 0, s))
	}
}

type Scene struct {
	Entities []*Entity
	owner    *owner.Owner
}

// Build spawns every object in sc. Relative asset paths resolve against
// baseDir.
func Build(reg *Registry, sc config.Scene, baseDir string) (*Scene, error) {
	s := &Scene{}
	for i, obj := range sc.Objects {
		k, err := reg.Get(obj.Kind)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		if obj.Name == "" {
			obj.Name = fmt.Sprintf("%s%d", obj.Kind, i)
		}

		var mesh *asset.RestMesh
		if obj.Asset != "" {
			path := obj.Asset
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			mesh, err = asset.Load(path)
			if err != nil {
				return nil, fmt.Errorf("object %s: %w", obj.Name, err)
			}
			if mesh.Kind != obj.Kind {
				return nil, fmt.Errorf("object %s: %w: mesh is %s", obj.Name, ErrUnknownKind, mesh.Kind)
			}
		} else {
			mesh = k.Generate(obj)
			if err := mesh.Validate(); err != nil {
				return nil, fmt.Errorf("object %s: %w", obj.Name, err)
			}
		}
		s.Entities = append(s.Entities, k.Spawn(mesh, obj))
	}
	return s, nil
}

// Attach enables simulation of every entity under o.
func (s *Scene) Attach(o *owner.Owner) {
	s.owner = o
	for _, e := range s.Entities {
		e.Body.EnableSimulation(o)
	}
}

func (s *Scene) Detach() {
	for _, e := range s.Entities {
		e.Body.DisableSimulation()
	}
	s.owner = nil
}

// Drive updates every entity's input for scene time t.
func (s *Scene) Drive(t float64) {
	for _, e := range s.Entities {
		e.drive(t)
	}
}

func (s *Scene) Find(name string) (*Entity, bool) {
	for _, e := range s.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Sag returns the lowest vertex height across all cloth entities.
func (s *Scene) Sag() float64 {
	sag := 0.0
	first := true
	for _, e := range s.Entities {
		if e.Cloth == nil {
			continue
		}
		z := e.Cloth.Sag()
		if first || z < sag {
			sag = z
			first = false
		}
	}
	return sag
}

func (s *Scene) Vertices() int {
	n := 0
	for _, e := range s.Entities {
		if m := e.Body.Mesh(); m != nil {
			n += m.VertexCount()
		}
	}
	return n
}
