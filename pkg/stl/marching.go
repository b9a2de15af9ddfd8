// Package stl extracts triangle meshes from sampled scalar volumes and
// writes them as binary STL files.
package stl

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// snap is the fraction of an edge under which a crossing is moved onto
// the grid point, so that crossings landing on a sample share a vertex.
const snap = 1e-9

// cubeTetrahedra splits a cube into six tetrahedra sharing the main
// diagonal. Corners are encoded as bit masks: bit 0 = +x, 1 = +y, 2 = +z.
// Neighbouring cubes split their shared faces the same way, so the
// extracted surface has no cracks.
var cubeTetrahedra = [6][4]int{
	{0, 1, 3, 7},
	{0, 1, 5, 7},
	{0, 2, 3, 7},
	{0, 2, 6, 7},
	{0, 4, 5, 7},
	{0, 4, 6, 7},
}

// vertexKey identifies an extracted vertex: the grid edge (a, b) it lies
// on, or the grid point a when b is -1.
type vertexKey struct {
	a, b int
}

// MarchingCubes extracts the level set of a scalar volume stored in
// x-fastest order: index = z*width*height + y*width + x.
type MarchingCubes struct {
	data                 []float64
	width, height, depth int
	isoLevel             float64
	scale                r3.Vec
	origin               r3.Vec

	// insideBelow flips the inside test: samples below the level are
	// inside instead of samples above it.
	insideBelow bool
}

// NewMarchingCubes creates an extractor for the given volume. Samples
// above isoLevel are inside the surface.
func NewMarchingCubes(data []float64, width, height, depth int, isoLevel float64) *MarchingCubes {
	return &MarchingCubes{
		data:     data,
		width:    width,
		height:   height,
		depth:    depth,
		isoLevel: isoLevel,
		scale:    r3.Vec{X: 1, Y: 1, Z: 1},
	}
}

// SetScale sets the physical size of a grid step along each axis.
func (mc *MarchingCubes) SetScale(x, y, z float64) {
	mc.scale = r3.Vec{X: x, Y: y, Z: z}
}

// SetOrigin sets the physical position of grid point (0, 0, 0).
func (mc *MarchingCubes) SetOrigin(origin r3.Vec) {
	mc.origin = origin
}

// SetInsideBelow makes samples below the level count as inside, which is
// the convention of signed distance fields.
func (mc *MarchingCubes) SetInsideBelow(below bool) {
	mc.insideBelow = below
}

func (mc *MarchingCubes) inside(v float64) bool {
	if mc.insideBelow {
		return v < mc.isoLevel
	}
	return v > mc.isoLevel
}

func (mc *MarchingCubes) index(x, y, z int) int {
	return z*mc.width*mc.height + y*mc.width + x
}

func (mc *MarchingCubes) gridPoint(idx int) r3.Vec {
	plane := mc.width * mc.height
	z := idx / plane
	y := (idx % plane) / mc.width
	x := idx % mc.width
	return r3.Vec{
		X: mc.origin.X + float64(x)*mc.scale.X,
		Y: mc.origin.Y + float64(y)*mc.scale.Y,
		Z: mc.origin.Z + float64(z)*mc.scale.Z,
	}
}

// extraction accumulates the indexed mesh while walking the cells.
type extraction struct {
	mc        *MarchingCubes
	keys      map[vertexKey]int
	vertices  []r3.Vec
	triangles [][3]int
}

// vertex returns the index of the crossing on the grid edge (a, b),
// creating it on first use.
func (e *extraction) vertex(a, b int) int {
	if a > b {
		a, b = b, a
	}
	va, vb := e.mc.data[a], e.mc.data[b]
	t := (e.mc.isoLevel - va) / (vb - va)

	key := vertexKey{a: a, b: b}
	switch {
	case t <= snap:
		key = vertexKey{a: a, b: -1}
	case t >= 1-snap:
		key = vertexKey{a: b, b: -1}
	}
	if idx, ok := e.keys[key]; ok {
		return idx
	}

	var p r3.Vec
	if key.b == -1 {
		p = e.mc.gridPoint(key.a)
	} else {
		pa, pb := e.mc.gridPoint(a), e.mc.gridPoint(b)
		p = r3.Add(pa, r3.Scale(t, r3.Sub(pb, pa)))
	}
	idx := len(e.vertices)
	e.vertices = append(e.vertices, p)
	e.keys[key] = idx
	return idx
}

// emit adds the triangle oriented so that its normal points along out.
func (e *extraction) emit(i0, i1, i2 int, out r3.Vec) {
	if i0 == i1 || i1 == i2 || i0 == i2 {
		return
	}
	p0, p1, p2 := e.vertices[i0], e.vertices[i1], e.vertices[i2]
	n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
	if r3.Dot(n, out) < 0 {
		i1, i2 = i2, i1
	}
	e.triangles = append(e.triangles, [3]int{i0, i1, i2})
}

// tetrahedron polygonizes one tetrahedron given by grid indices.
func (e *extraction) tetrahedron(corners [4]int) {
	var in, out []int
	for _, c := range corners {
		if e.mc.inside(e.mc.data[c]) {
			in = append(in, c)
		} else {
			out = append(out, c)
		}
	}
	if len(in) == 0 || len(out) == 0 {
		return
	}

	// direction from the inside corners towards the outside corners
	var cin, cout r3.Vec
	for _, c := range in {
		cin = r3.Add(cin, e.mc.gridPoint(c))
	}
	for _, c := range out {
		cout = r3.Add(cout, e.mc.gridPoint(c))
	}
	dir := r3.Sub(r3.Scale(1/float64(len(out)), cout), r3.Scale(1/float64(len(in)), cin))

	switch len(in) {
	case 1:
		a := in[0]
		e.emit(e.vertex(a, out[0]), e.vertex(a, out[1]), e.vertex(a, out[2]), dir)
	case 3:
		d := out[0]
		e.emit(e.vertex(d, in[0]), e.vertex(d, in[1]), e.vertex(d, in[2]), dir)
	case 2:
		a, b := in[0], in[1]
		c, d := out[0], out[1]
		ac, ad := e.vertex(a, c), e.vertex(a, d)
		bc, bd := e.vertex(b, c), e.vertex(b, d)
		e.emit(ac, ad, bd, dir)
		e.emit(ac, bd, bc, dir)
	}
}

// Extract polygonizes the level set and returns an indexed triangle mesh
// whose faces are wound counter-clockwise seen from outside. A volume
// without crossings yields an empty mesh.
func (mc *MarchingCubes) Extract() ([]r3.Vec, [][3]int) {
	e := &extraction{
		mc:   mc,
		keys: make(map[vertexKey]int),
	}
	if mc.width < 2 || mc.height < 2 || mc.depth < 2 || len(mc.data) < mc.width*mc.height*mc.depth {
		return nil, nil
	}

	var cube [8]int
	for z := 0; z < mc.depth-1; z++ {
		for y := 0; y < mc.height-1; y++ {
			for x := 0; x < mc.width-1; x++ {
				for c := 0; c < 8; c++ {
					cube[c] = mc.index(x+(c&1), y+((c>>1)&1), z+((c>>2)&1))
				}
				for _, tet := range cubeTetrahedra {
					e.tetrahedron([4]int{cube[tet[0]], cube[tet[1]], cube[tet[2]], cube[tet[3]]})
				}
			}
		}
	}

	return compact(e.vertices, e.triangles)
}

// compact drops vertices no triangle references and renumbers the rest.
func compact(vertices []r3.Vec, triangles [][3]int) ([]r3.Vec, [][3]int) {
	remap := make([]int, len(vertices))
	for i := range remap {
		remap[i] = -1
	}
	var kept []r3.Vec
	for i, t := range triangles {
		for k, v := range t {
			if remap[v] < 0 {
				remap[v] = len(kept)
				kept = append(kept, vertices[v])
			}
			triangles[i][k] = remap[v]
		}
	}
	return kept, triangles
}

// GenerateTriangles polygonizes the level set and returns unindexed
// triangles with unit normals, ready to be written as STL.
func (mc *MarchingCubes) GenerateTriangles() []Triangle {
	vertices, faces := mc.Extract()
	triangles := make([]Triangle, 0, len(faces))
	for _, f := range faces {
		triangles = append(triangles, NewTriangle(vertices[f[0]], vertices[f[1]], vertices[f[2]]))
	}
	return triangles
}

// NewTriangle builds an STL triangle and computes its unit normal.
func NewTriangle(p0, p1, p2 r3.Vec) Triangle {
	n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
	if l := r3.Norm(n); l > 0 && !math.IsInf(l, 0) {
		n = r3.Scale(1/l, n)
	}
	return Triangle{
		Normal:  toFloat32(n),
		Vertex1: toFloat32(p0),
		Vertex2: toFloat32(p1),
		Vertex3: toFloat32(p2),
	}
}

func toFloat32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
