package stl

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// sphereVolume fills a size^3 volume with 1 inside a sphere of the given
// radius around the volume centre and 0 outside.
func sphereVolume(size int, radius float64) []float64 {
	data := make([]float64, size*size*size)
	center := float64(size) / 2.0
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx := float64(x) - center
				dy := float64(y) - center
				dz := float64(z) - center
				if math.Sqrt(dx*dx+dy*dy+dz*dz) < radius {
					data[z*size*size+y*size+x] = 1.0
				}
			}
		}
	}
	return data
}

// TestMarchingCubes verifies the marching cubes implementation with a simple sphere
func TestMarchingCubes(t *testing.T) {
	size := 20
	radius := float64(size) / 4.0
	center := float64(size) / 2.0

	mc := NewMarchingCubes(sphereVolume(size, radius), size, size, size, 0.5)
	triangles := mc.GenerateTriangles()

	// A sphere with this resolution should have at least 100 triangles
	if len(triangles) < 100 {
		t.Errorf("Expected at least 100 triangles for sphere, got %d", len(triangles))
	}

	// Normals must point away from the sphere centre
	for _, triangle := range triangles {
		cx := (triangle.Vertex1[0] + triangle.Vertex2[0] + triangle.Vertex3[0]) / 3
		cy := (triangle.Vertex1[1] + triangle.Vertex2[1] + triangle.Vertex3[1]) / 3
		cz := (triangle.Vertex1[2] + triangle.Vertex2[2] + triangle.Vertex3[2]) / 3

		vx := cx - float32(center)
		vy := cy - float32(center)
		vz := cz - float32(center)
		mag := float32(math.Sqrt(float64(vx*vx + vy*vy + vz*vz)))
		if mag > 0 {
			vx /= mag
			vy /= mag
			vz /= mag
		}

		dot := vx*triangle.Normal[0] + vy*triangle.Normal[1] + vz*triangle.Normal[2]
		if dot < -0.5 {
			t.Errorf("Triangle normal appears to point inward, dot product: %f", dot)
		}
	}
}

// TestExtractClosedSurface verifies that every edge of the extracted
// sphere is shared by exactly two faces with opposite orientation
func TestExtractClosedSurface(t *testing.T) {
	size := 16
	data := make([]float64, size*size*size)
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx := float64(x) - 7.3
				dy := float64(y) - 7.6
				dz := float64(z) - 7.1
				data[z*size*size+y*size+x] = 5 - math.Sqrt(dx*dx+dy*dy+dz*dz)
			}
		}
	}

	vertices, faces := NewMarchingCubes(data, size, size, size, 0).Extract()
	if len(faces) == 0 {
		t.Fatal("No faces extracted")
	}

	directed := make(map[[2]int]int)
	for _, f := range faces {
		for k := 0; k < 3; k++ {
			directed[[2]int{f[k], f[(k+1)%3]}]++
		}
	}
	for edge, n := range directed {
		if n != 1 {
			t.Fatalf("Directed edge %v used %d times", edge, n)
		}
		if directed[[2]int{edge[1], edge[0]}] != 1 {
			t.Fatalf("Edge %v has no opposite half edge", edge)
		}
	}

	for _, v := range vertices {
		r := math.Sqrt((v.X-7.3)*(v.X-7.3) + (v.Y-7.6)*(v.Y-7.6) + (v.Z-7.1)*(v.Z-7.1))
		if math.Abs(r-5) > 0.5 {
			t.Errorf("Vertex %v is %.3f away from the sphere", v, math.Abs(r-5))
		}
	}
}

// TestExtractEmpty verifies that a volume without crossings yields no mesh
func TestExtractEmpty(t *testing.T) {
	data := make([]float64, 4*4*4)
	vertices, faces := NewMarchingCubes(data, 4, 4, 4, 0.5).Extract()
	if len(vertices) != 0 || len(faces) != 0 {
		t.Errorf("Expected empty mesh, got %d vertices and %d faces", len(vertices), len(faces))
	}
}

// TestInsideBelow verifies the signed distance convention
func TestInsideBelow(t *testing.T) {
	size := 12
	data := make([]float64, size*size*size)
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx := float64(x) - 5.5
				dy := float64(y) - 5.5
				dz := float64(z) - 5.5
				// negative inside, positive outside
				data[z*size*size+y*size+x] = math.Sqrt(dx*dx+dy*dy+dz*dz) - 3.7
			}
		}
	}

	mc := NewMarchingCubes(data, size, size, size, 0)
	mc.SetInsideBelow(true)
	vertices, faces := mc.Extract()
	if len(faces) == 0 {
		t.Fatal("No faces extracted")
	}

	center := r3.Vec{X: 5.5, Y: 5.5, Z: 5.5}
	for _, f := range faces {
		p0, p1, p2 := vertices[f[0]], vertices[f[1]], vertices[f[2]]
		n := r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0))
		if r3.Dot(n, r3.Sub(p0, center)) < 0 {
			t.Fatalf("Face %v points inward", f)
		}
	}
}

// TestSetScale verifies that the scaling functionality works
func TestSetScale(t *testing.T) {
	data := []float64{
		1, 0,
		0, 0,

		0, 0,
		0, 0,
	}

	mc := NewMarchingCubes(data, 2, 2, 2, 0.5)
	xScale, yScale, zScale := 2.5, 1.5, 3.0
	mc.SetScale(xScale, yScale, zScale)
	mc.SetOrigin(r3.Vec{X: 10})
	triangles := mc.GenerateTriangles()
	if len(triangles) == 0 {
		t.Fatal("No triangles generated")
	}

	mc2 := NewMarchingCubes(data, 2, 2, 2, 0.5)
	triangles2 := mc2.GenerateTriangles()
	if len(triangles) != len(triangles2) {
		t.Fatalf("Scale changed the triangle count: %d vs %d", len(triangles), len(triangles2))
	}

	// Crossings sit halfway along the edges leaving the first corner
	for i := range triangles {
		for k, v := range [][3]float32{triangles[i].Vertex1, triangles[i].Vertex2, triangles[i].Vertex3} {
			u := [][3]float32{triangles2[i].Vertex1, triangles2[i].Vertex2, triangles2[i].Vertex3}[k]
			want := [3]float64{10 + float64(u[0])*xScale, float64(u[1]) * yScale, float64(u[2]) * zScale}
			for a := 0; a < 3; a++ {
				if math.Abs(float64(v[a])-want[a]) > 1e-5 {
					t.Errorf("Triangle %d vertex %d axis %d: got %f, want %f", i, k, a, v[a], want[a])
				}
			}
		}
	}
}

// TestSaveToSTL verifies that the STL file can be written
func TestSaveToSTL(t *testing.T) {
	triangles := []Triangle{
		{
			Normal:  [3]float32{0, 0, 1},
			Vertex1: [3]float32{0, 0, 0},
			Vertex2: [3]float32{1, 0, 0},
			Vertex3: [3]float32{0, 1, 0},
		},
	}

	tmpFile, err := os.CreateTemp("", "test-*.stl")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	if err := SaveToSTL(tmpFile.Name(), triangles); err != nil {
		t.Fatalf("Failed to save STL: %v", err)
	}

	// STL header: 80 bytes, count: 4 bytes, one facet: 50 bytes
	info, err := os.Stat(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to stat output file: %v", err)
	}
	if info.Size() != 80+4+50 {
		t.Errorf("Unexpected STL size %d", info.Size())
	}
}

// TestWriteLayout verifies the binary facet layout
func TestWriteLayout(t *testing.T) {
	tri := NewTriangle(r3.Vec{}, r3.Vec{X: 2}, r3.Vec{Y: 2})
	var buf bytes.Buffer
	if err := Write(&buf, []Triangle{tri}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	b := buf.Bytes()
	if n := binary.LittleEndian.Uint32(b[80:84]); n != 1 {
		t.Fatalf("Expected 1 facet, got %d", n)
	}
	nz := math.Float32frombits(binary.LittleEndian.Uint32(b[92:96]))
	if nz != 1 {
		t.Errorf("Expected unit +Z normal, got %f", nz)
	}
	x2 := math.Float32frombits(binary.LittleEndian.Uint32(b[108:112]))
	if x2 != 2 {
		t.Errorf("Expected second vertex x = 2, got %f", x2)
	}
}

// TestTriangleInterpolation verifies the vertex interpolation for marching cubes
func TestTriangleInterpolation(t *testing.T) {
	data := []float64{
		1, 0,
		0, 0,

		0, 0,
		0, 0,
	}

	triangles := NewMarchingCubes(data, 2, 2, 2, 0.5).GenerateTriangles()
	if len(triangles) == 0 {
		t.Fatal("No triangles generated, cannot test interpolation")
	}

	triangle := triangles[0]
	hasInterpolatedVertex := false
	for _, v := range [][3]float32{triangle.Vertex1, triangle.Vertex2, triangle.Vertex3} {
		if !isIntegerCoordinate(v[0]) || !isIntegerCoordinate(v[1]) || !isIntegerCoordinate(v[2]) {
			hasInterpolatedVertex = true
		}
	}
	if !hasInterpolatedVertex {
		t.Error("No interpolated vertices found in the triangle")
	}

	if triangle.Normal[0] == 0 && triangle.Normal[1] == 0 && triangle.Normal[2] == 0 {
		t.Error("Triangle normal is zero")
	}
}

// isIntegerCoordinate checks if a coordinate is very close to an integer value
func isIntegerCoordinate(coord float32) bool {
	return math.Abs(float64(coord)-math.Round(float64(coord))) < 0.001
}

// BenchmarkMarchingCubes benchmarks the marching cubes algorithm
func BenchmarkMarchingCubes(b *testing.B) {
	size := 16
	data := sphereVolume(size, float64(size)/4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mc := NewMarchingCubes(data, size, size, size, 0.5)
		mc.GenerateTriangles()
	}
}
