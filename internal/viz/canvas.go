package viz

import (
	"strings"

	"github.com/san-kum/deformsim/internal/asset"
	"github.com/san-kum/deformsim/internal/geom"
)

const brailleBase = 0x2800

// dot bits of a Braille cell, indexed [row][col]
var dotBits = [4][2]rune{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

// Canvas is a grid of Braille cells addressed in dots: each cell is 2 dots
// wide and 4 tall.
type Canvas struct {
	Width, Height int // in cells
	cells         [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{Width: w, Height: h, cells: make([][]rune, h)}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
	}
	c.Clear()
	return c
}

func (c *Canvas) Dots() (int, int) { return c.Width * 2, c.Height * 4 }

func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col, row := x/2, y/4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.cells[row][col] |= dotBits[y%4][x%2]
}

func (c *Canvas) Clear() {
	for _, row := range c.cells {
		for j := range row {
			row[j] = brailleBase
		}
	}
}

// Line draws a Bresenham line between two dots.
func (c *Canvas) Line(x0, y0, x1, y1 int) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.cells {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

// Viewport maps the world XZ plane onto canvas dots.
type Viewport struct {
	MinX, MaxX float64
	MinZ, MaxZ float64
}

// Fit returns a viewport covering every point with a small margin.
func Fit(points ...[]geom.Vec3) Viewport {
	v := Viewport{MinX: -1, MaxX: 1, MinZ: -1, MaxZ: 1}
	first := true
	for _, pts := range points {
		for _, p := range pts {
			if first {
				v = Viewport{MinX: p.X, MaxX: p.X, MinZ: p.Z, MaxZ: p.Z}
				first = false
				continue
			}
			v.MinX, v.MaxX = min(v.MinX, p.X), max(v.MaxX, p.X)
			v.MinZ, v.MaxZ = min(v.MinZ, p.Z), max(v.MaxZ, p.Z)
		}
	}
	pad := 0.1 * max(v.MaxX-v.MinX, v.MaxZ-v.MinZ, 1)
	v.MinX -= pad
	v.MaxX += pad
	v.MinZ -= pad
	v.MaxZ += pad
	return v
}

func (v Viewport) project(p geom.Vec3, w, h int) (int, int) {
	x := (p.X - v.MinX) / (v.MaxX - v.MinX) * float64(w-1)
	y := (v.MaxZ - p.Z) / (v.MaxZ - v.MinZ) * float64(h-1)
	return int(x + 0.5), int(y + 0.5)
}

// DrawMesh draws every edge of mesh at the given positions.
func (c *Canvas) DrawMesh(v Viewport, mesh *asset.RestMesh, pos []geom.Vec3) {
	if mesh == nil || len(pos) != mesh.VertexCount() {
		return
	}
	w, h := c.Dots()
	for _, e := range mesh.Edges {
		x0, y0 := v.project(pos[e[0]], w, h)
		x1, y1 := v.project(pos[e[1]], w, h)
		c.Line(x0, y0, x1, y1)
	}
	if len(mesh.Edges) == 0 {
		for _, p := range pos {
			c.Set(v.project(p, w, h))
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
