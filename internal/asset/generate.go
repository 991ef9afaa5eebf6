package asset

import "github.com/san-kum/deformsim/internal/geom"

// ClothGrid builds a horizontal cols x rows sheet in the XY plane whose
// first row is pinned. Edges connect horizontal and vertical neighbours.
func ClothGrid(name string, cols, rows int, spacing float64) *RestMesh {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	m := &RestMesh{Name: name, Kind: KindCloth, Mass: DefaultMass}
	idx := func(c, r int) int { return r*cols + c }

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Positions = append(m.Positions, geom.V(float64(c)*spacing, -float64(r)*spacing, 0))
			if c > 0 {
				m.Edges = append(m.Edges, Edge{idx(c-1, r), idx(c, r)})
			}
			if r > 0 {
				m.Edges = append(m.Edges, Edge{idx(c, r-1), idx(c, r)})
			}
		}
	}
	for c := 0; c < cols; c++ {
		m.Pinned = append(m.Pinned, idx(c, 0))
	}
	return m
}

// FleshBar builds a chain of segments+1 vertices along X with springs
// between neighbours and to the second neighbour for bending resistance.
func FleshBar(name string, segments int, length float64) *RestMesh {
	if segments < 1 {
		segments = 1
	}
	m := &RestMesh{Name: name, Kind: KindFlesh, Mass: DefaultMass}
	step := length / float64(segments)
	for i := 0; i <= segments; i++ {
		m.Positions = append(m.Positions, geom.V(float64(i)*step, 0, 0))
		if i > 0 {
			m.Edges = append(m.Edges, Edge{i - 1, i})
		}
		if i > 1 {
			m.Edges = append(m.Edges, Edge{i - 2, i})
		}
	}
	return m
}
