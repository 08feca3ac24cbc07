// Package mesh holds the host-side triangle arrays handed to the renderer
// and a reader for Wavefront OBJ files.
package mesh

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoTriangles is returned by Validate for meshes without geometry.
var ErrNoTriangles = errors.New("mesh: no triangles")

// Mesh is an indexed triangle list. Vertices holds 3 float32 per vertex and
// Indices holds 3 uint32 per triangle.
type Mesh struct {
	Name     string
	Vertices []float32
	Indices  []uint32
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) / 3 }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// Validate checks that the arrays describe at least one triangle and that
// every index refers to an existing vertex.
func (m *Mesh) Validate() error {
	if len(m.Vertices)%3 != 0 {
		return fmt.Errorf("mesh: vertex array length %d is not a multiple of 3", len(m.Vertices))
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("mesh: index array length %d is not a multiple of 3", len(m.Indices))
	}
	if len(m.Indices) == 0 {
		return ErrNoTriangles
	}
	n := uint32(m.VertexCount())
	for i, idx := range m.Indices {
		if idx >= n {
			return fmt.Errorf("mesh: index %d at position %d out of range [0,%d)", idx, i, n)
		}
	}
	for i, v := range m.Vertices {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("mesh: vertex component %d is not finite", i)
		}
	}
	return nil
}

// Vertex returns vertex i.
func (m *Mesh) Vertex(i int) [3]float32 {
	return [3]float32{m.Vertices[3*i], m.Vertices[3*i+1], m.Vertices[3*i+2]}
}

// Triangle returns the corner positions of triangle t.
func (m *Mesh) Triangle(t int) (a, b, c [3]float32) {
	return m.Vertex(int(m.Indices[3*t])), m.Vertex(int(m.Indices[3*t+1])), m.Vertex(int(m.Indices[3*t+2]))
}

// Bounds returns the axis aligned box enclosing all vertices.
func (m *Mesh) Bounds() (min, max [3]float32) {
	if len(m.Vertices) < 3 {
		return
	}
	min = m.Vertex(0)
	max = min
	for i := 1; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		for k := 0; k < 3; k++ {
			if v[k] < min[k] {
				min[k] = v[k]
			}
			if v[k] > max[k] {
				max[k] = v[k]
			}
		}
	}
	return
}

// Triangle returns the single-triangle mesh used by smoke tests and examples.
func Triangle() *Mesh {
	return &Mesh{
		Name:     "triangle",
		Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:  []uint32{0, 1, 2},
	}
}
