package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/deformsim/internal/asset"
	"github.com/san-kum/deformsim/internal/config"
	"github.com/san-kum/deformsim/internal/deformable"
	"github.com/san-kum/deformsim/internal/geom"
)

var ErrUnknownKind = errors.New("scene: unknown object kind")

// Kind knows how to generate a rest mesh for an object description and how
// to wrap a mesh in a scene entity.
type Kind struct {
	Generate func(obj config.Object) *asset.RestMesh
	Spawn    func(mesh *asset.RestMesh, obj config.Object) *Entity
}

type Registry struct {
	kinds map[string]Kind
}

func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[string]Kind)}

	r.kinds[asset.KindCloth] = Kind{
		Generate: func(obj config.Object) *asset.RestMesh {
			cols, rows, spacing := obj.Cols, obj.Rows, obj.Spacing
			if cols == 0 {
				cols = config.DefaultCols
			}
			if rows == 0 {
				rows = config.DefaultRows
			}
			if spacing == 0 {
				spacing = config.DefaultSpacing
			}
			return asset.ClothGrid(obj.Name, cols, rows, spacing)
		},
		Spawn: func(mesh *asset.RestMesh, obj config.Object) *Entity {
			c := deformable.NewCloth(mesh)
			if obj.Wind != (geom.Vec3{}) {
				c.SetWind(obj.Wind)
			}
			return &Entity{Name: obj.Name, Kind: asset.KindCloth, Body: c, Cloth: c, sway: obj.Sway}
		},
	}
	r.kinds[asset.KindFlesh] = Kind{
		Generate: func(obj config.Object) *asset.RestMesh {
			segments, length := obj.Segments, obj.Length
			if segments == 0 {
				segments = config.DefaultSegments
			}
			if length == 0 {
				length = config.DefaultLength
			}
			return asset.FleshBar(obj.Name, segments, length)
		},
		Spawn: func(mesh *asset.RestMesh, obj config.Object) *Entity {
			f := deformable.NewFlesh(mesh)
			return &Entity{Name: obj.Name, Kind: asset.KindFlesh, Body: f, Flesh: f, sway: obj.Sway}
		},
	}

	return r
}

// Register adds or replaces a kind.
func (r *Registry) Register(name string, k Kind) { r.kinds[name] = k }

func (r *Registry) Get(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return k, nil
}

func (r *Registry) ListKinds() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
