// Package asset provides the read-only rest-state meshes proxies are built
// from. Meshes are loaded from yaml or generated procedurally and are never
// modified after validation.
package asset

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/deformsim/internal/geom"
)

var (
	ErrEmptyMesh   = errors.New("asset: mesh has no vertices")
	ErrEdgeIndex   = errors.New("asset: edge references a missing vertex")
	ErrUnknownKind = errors.New("asset: unknown mesh kind")
)

const (
	KindCloth = "cloth"
	KindFlesh = "flesh"

	DefaultMass = 1.0
)

type Edge [2]int

// RestMesh is the undeformed geometry and topology of one simulated object.
type RestMesh struct {
	Name      string      `yaml:"name"`
	Kind      string      `yaml:"kind"`
	Positions []geom.Vec3 `yaml:"positions"`
	Edges     []Edge      `yaml:"edges"`
	Pinned    []int       `yaml:"pinned,omitempty"`
	Mass      float64     `yaml:"mass"` // per vertex
}

func (m *RestMesh) Validate() error {
	if len(m.Positions) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyMesh, m.Name)
	}
	if m.Kind != KindCloth && m.Kind != KindFlesh {
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	n := len(m.Positions)
	for i, e := range m.Edges {
		if e[0] < 0 || e[0] >= n || e[1] < 0 || e[1] >= n || e[0] == e[1] {
			return fmt.Errorf("%w: edge %d %v in %s", ErrEdgeIndex, i, e, m.Name)
		}
	}
	for _, p := range m.Pinned {
		if p < 0 || p >= n {
			return fmt.Errorf("%w: pinned vertex %d in %s", ErrEdgeIndex, p, m.Name)
		}
	}
	if m.Mass <= 0 {
		m.Mass = DefaultMass
	}
	return nil
}

// RestLengths returns the rest length of every edge.
func (m *RestMesh) RestLengths() []float64 {
	out := make([]float64, len(m.Edges))
	for i, e := range m.Edges {
		out[i] = m.Positions[e[1]].Sub(m.Positions[e[0]]).Len()
	}
	return out
}

func (m *RestMesh) VertexCount() int { return len(m.Positions) }

func Load(path string) (*RestMesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*RestMesh, error) {
	var m RestMesh
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("asset: parse mesh: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func Save(path string, m *RestMesh) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
