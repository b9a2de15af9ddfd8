package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func tetrahedron() *SurfaceMesh {
	return NewSurfaceMesh(
		[]r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 1}},
		[][3]int{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}},
	)
}

func TestSurfaceMeshGeometry(t *testing.T) {
	m := tetrahedron()
	require.False(t, m.Empty())

	c := m.Centroid(3)
	require.InDelta(t, 1.0/3.0, c.X, 1e-12)
	require.InDelta(t, 1.0/3.0, c.Y, 1e-12)
	require.InDelta(t, 1.0/3.0, c.Z, 1e-12)

	// the bottom face is wound to point down
	require.Less(t, m.Normal(0).Z, 0.0)

	for edge, n := range m.EdgeUse() {
		require.Equal(t, 2, n, "edge %v", edge)
	}
}

func TestSurfaceMeshEmpty(t *testing.T) {
	var m *SurfaceMesh
	require.True(t, m.Empty())
	require.True(t, NewSurfaceMesh(nil, nil).Empty())
}

func TestPointCloudBBox(t *testing.T) {
	pc := NewPointCloud(
		[]r3.Vec{{X: -1, Y: 2, Z: 0}, {X: 3, Y: -4, Z: 5}},
		[]r3.Vec{{X: 0, Y: 0, Z: 2}, {X: 1, Y: 0, Z: 0}},
	)
	require.Equal(t, 2, pc.Len())

	bb := pc.BBox()
	require.Equal(t, r3.Vec{X: -1, Y: -4, Z: 0}, bb.Min)
	require.Equal(t, r3.Vec{X: 3, Y: 2, Z: 5}, bb.Max)
	require.Equal(t, 9.0, bb.MaxDim())

	// normals become unit directions
	require.InDelta(t, 1.0, r3.Norm(pc.Ray(0).Dir), 1e-12)
	require.Equal(t, r3.Vec{X: -1, Y: 2, Z: 3}, pc.Ray(0).At(1.5))
}

func TestBoxOffset(t *testing.T) {
	b := EmptyBox()
	require.True(t, b.IsEmpty())
	b.Add(r3.Vec{X: 1, Y: 1, Z: 1})
	require.False(t, b.IsEmpty())

	e := b.Offset(0.5)
	require.True(t, e.Contains(r3.Vec{X: 1.4, Y: 0.6, Z: 1}))
	require.False(t, e.Contains(r3.Vec{X: 1.6, Y: 1, Z: 1}))
	require.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, e.Center())
}
