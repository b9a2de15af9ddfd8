package models

import (
	"image/color"

	"gonum.org/v1/gonum/spatial/r3"
)

// NoFace is the face index stored by voxels that have no correspondence.
const NoFace = -1

// Vertex is a surface vertex.
type Vertex struct {
	// Pos is the vertex position in world coordinates
	Pos r3.Vec

	// Quality holds the per-vertex scalar field (interpolated ray distance)
	Quality float64

	// Color is filled by the colour ramps for display
	Color color.RGBA
}

// Face is a triangle referencing three vertices by index.
type Face struct {
	// V holds the vertex indices in counter-clockwise order seen from outside
	V [3]int

	// Quality holds the mean ray hit distance of the face
	Quality float64

	// Selected marks faces hit by at least one ray
	Selected bool

	// Color is filled by the colour ramps for display
	Color color.RGBA
}

// SurfaceMesh is the evolving surface. Faces live in a dense slice and
// are referenced by index from the volume, so replacing the mesh never
// leaves dangling references behind.
type SurfaceMesh struct {
	Vertices []Vertex
	Faces    []Face
}

// NewSurfaceMesh builds a mesh from raw positions and triangles.
func NewSurfaceMesh(positions []r3.Vec, triangles [][3]int) *SurfaceMesh {
	m := &SurfaceMesh{
		Vertices: make([]Vertex, len(positions)),
		Faces:    make([]Face, len(triangles)),
	}
	for i, p := range positions {
		m.Vertices[i] = Vertex{Pos: p, Color: color.RGBA{R: 255, G: 255, B: 255, A: 255}}
	}
	for i, t := range triangles {
		m.Faces[i] = Face{V: t, Color: color.RGBA{R: 255, G: 255, B: 255, A: 255}}
	}
	return m
}

// Empty reports whether the mesh has no faces. An empty mesh is the
// normal result of extracting a field without zero crossing.
func (m *SurfaceMesh) Empty() bool {
	return m == nil || len(m.Faces) == 0
}

// Triangle returns the three corner positions of face f.
func (m *SurfaceMesh) Triangle(f int) [3]r3.Vec {
	face := m.Faces[f]
	return [3]r3.Vec{
		m.Vertices[face.V[0]].Pos,
		m.Vertices[face.V[1]].Pos,
		m.Vertices[face.V[2]].Pos,
	}
}

// Centroid returns the barycenter of face f.
func (m *SurfaceMesh) Centroid(f int) r3.Vec {
	t := m.Triangle(f)
	return r3.Scale(1.0/3.0, r3.Add(t[0], r3.Add(t[1], t[2])))
}

// Normal returns the unnormalized normal of face f, its length is twice
// the face area.
func (m *SurfaceMesh) Normal(f int) r3.Vec {
	t := m.Triangle(f)
	return r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0]))
}

// BBox returns the bounding box of the vertices.
func (m *SurfaceMesh) BBox() Box {
	b := EmptyBox()
	for _, v := range m.Vertices {
		b.Add(v.Pos)
	}
	return b
}

// ResetFaceQuality clears the per-face quality and selection.
func (m *SurfaceMesh) ResetFaceQuality() {
	for i := range m.Faces {
		m.Faces[i].Quality = 0
		m.Faces[i].Selected = false
	}
}

// VertexQualities returns a copy of the per-vertex quality values.
func (m *SurfaceMesh) VertexQualities() []float64 {
	q := make([]float64, len(m.Vertices))
	for i, v := range m.Vertices {
		q[i] = v.Quality
	}
	return q
}

// EdgeUse counts, for every undirected edge, how many faces use it. A
// closed two-manifold mesh uses every edge exactly twice.
func (m *SurfaceMesh) EdgeUse() map[[2]int]int {
	use := make(map[[2]int]int, 3*len(m.Faces)/2)
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			a, b := f.V[k], f.V[(k+1)%3]
			if a > b {
				a, b = b, a
			}
			use[[2]int{a, b}]++
		}
	}
	return use
}
