package volume

import (
	"math"
	"math/rand"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"shrinkwrap/internal/models"
)

func unitBox() models.Box {
	return models.Box{Min: r3.Vec{}, Max: r3.Vec{X: 1, Y: 1, Z: 1}}
}

func newVolume(t *testing.T, resolution, padding int, bbox models.Box) *Volume {
	var v Volume
	require.NoError(t, v.Init(resolution, padding, bbox))
	return &v
}

func seededVolume(t *testing.T, seed models.Box) *Volume {
	v := newVolume(t, 10, 2, unitBox())
	region, err := SeedBox(seed)
	require.NoError(t, err)
	require.NoError(t, v.InitField(region))
	return v
}

func TestInitInvalidConfig(t *testing.T) {
	var v Volume

	err := v.Init(0, 2, unitBox())
	require.Error(t, err)
	require.True(t, errors.IsType(err, models.ErrTypeInvalidConfig))

	err = v.Init(16, 0, unitBox())
	require.True(t, errors.IsType(err, models.ErrTypeInvalidConfig))

	err = v.Init(16, 2, models.EmptyBox())
	require.True(t, errors.IsType(err, models.ErrTypeInvalidConfig))

	flat := models.Box{Min: r3.Vec{X: 1, Y: 1, Z: 1}, Max: r3.Vec{X: 1, Y: 1, Z: 1}}
	err = v.Init(16, 2, flat)
	require.True(t, errors.IsType(err, models.ErrTypeInvalidConfig))

	require.False(t, v.IsInit())
	err = v.InitField(nil)
	require.True(t, errors.IsType(err, models.ErrTypeNotInitialized))
}

func TestInitSizes(t *testing.T) {
	bbox := models.Box{Min: r3.Vec{X: -1}, Max: r3.Vec{X: 3, Y: 2, Z: 1}}
	v := newVolume(t, 16, 2, bbox)

	require.InDelta(t, 0.25, v.Delta(), 1e-12)
	require.Equal(t, 16+1+4, v.Size(0))
	require.Equal(t, 8+1+4, v.Size(1))
	require.Equal(t, 4+1+4, v.Size(2))
	require.Equal(t, 2, v.Padding())
	require.InDelta(t, -1.5, v.Origin().X, 1e-12)
}

func TestPointsInsideGrid(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for n := 0; n < 20; n++ {
		bbox := models.EmptyBox()
		var points []r3.Vec
		for i := 0; i < 30; i++ {
			p := r3.Vec{X: rnd.NormFloat64() * 3, Y: rnd.Float64(), Z: rnd.NormFloat64()*0.1 + 5}
			points = append(points, p)
			bbox.Add(p)
		}
		v := newVolume(t, 1+rnd.Intn(32), 1+rnd.Intn(3), bbox)

		bounds := v.Bounds()
		for _, p := range points {
			require.Greater(t, p.X, bounds.Min.X)
			require.Greater(t, p.Y, bounds.Min.Y)
			require.Greater(t, p.Z, bounds.Min.Z)
			require.Less(t, p.X, bounds.Max.X)
			require.Less(t, p.Y, bounds.Max.Y)
			require.Less(t, p.Z, bounds.Max.Z)
			require.True(t, v.Contains(v.Pos2Off(p)))
		}
	}
}

func TestCoordinateTransforms(t *testing.T) {
	v := newVolume(t, 10, 2, unitBox())

	c := Coord{3, 4, 5}
	p := v.Off2Pos(c)
	require.Equal(t, c, v.Pos2Off(r3.Add(p, r3.Vec{X: 0.01, Y: 0.01, Z: 0.01})))
	require.Equal(t, Coord{2, 3, 4}, v.Pos2Off(r3.Sub(p, r3.Vec{X: 0.01, Y: 0.01, Z: 0.01})))

	vox, err := v.Voxel(3, 4, 5)
	require.NoError(t, err)
	require.Equal(t, Inactive, vox.Status)
	require.Equal(t, models.NoFace, vox.Face)

	_, err = v.Voxel(-1, 0, 0)
	require.True(t, errors.IsType(err, models.ErrTypeOutOfBounds))
	_, err = v.Voxel(0, v.Size(1), 0)
	require.True(t, errors.IsType(err, models.ErrTypeOutOfBounds))
	_, err = v.VoxelAt(r3.Vec{X: 100})
	require.True(t, errors.IsType(err, models.ErrTypeOutOfBounds))
}

func TestSeedIsosurfaceMatchesRegion(t *testing.T) {
	seed := unitBox().Offset(0.037)
	v := seededVolume(t, seed)

	mesh := v.Isosurface(0)
	require.False(t, mesh.Empty())

	region, err := SeedBox(seed)
	require.NoError(t, err)
	for _, vert := range mesh.Vertices {
		d := region.Evaluate(v3.Vec{X: vert.Pos.X, Y: vert.Pos.Y, Z: vert.Pos.Z})
		require.Less(t, math.Abs(d), v.Delta())
	}

	bb := mesh.BBox()
	require.InDelta(t, seed.Min.X, bb.Min.X, v.Delta())
	require.InDelta(t, seed.Max.Z, bb.Max.Z, v.Delta())

	for edge, n := range mesh.EdgeUse() {
		require.Equal(t, 2, n, "edge %v is not shared by two faces", edge)
	}
}

func TestIsosurfaceWithoutCrossing(t *testing.T) {
	far := models.Box{Min: r3.Vec{X: 50, Y: 50, Z: 50}, Max: r3.Vec{X: 51, Y: 51, Z: 51}}
	v := seededVolume(t, far)

	mesh := v.Isosurface(0)
	require.True(t, mesh.Empty())
	require.Empty(t, mesh.Vertices)
}

func TestValueAndGradient(t *testing.T) {
	seed := unitBox().Offset(0.037)
	v := seededVolume(t, seed)

	c := Coord{13, 6, 6}
	vox, err := v.Voxel(c[0], c[1], c[2])
	require.NoError(t, err)
	value, err := v.Value(v.Off2Pos(c))
	require.NoError(t, err)
	require.InDelta(t, vox.Field, value, 1e-9)

	// outside the +X face the field grows by one cell per cell
	g, err := v.Gradient(c[0], c[1], c[2])
	require.NoError(t, err)
	require.InDelta(t, 1/v.Delta(), g.X, 1e-6)
	require.InDelta(t, 0.0, g.Y, 1e-6)

	mid := r3.Scale(0.5, r3.Add(v.Off2Pos(c), v.Off2Pos(Coord{14, 6, 6})))
	value, err = v.Value(mid)
	require.NoError(t, err)
	next, _ := v.Voxel(14, 6, 6)
	require.InDelta(t, (vox.Field+next.Field)/2, value, 1e-9)

	_, err = v.Gradient(0, 0, v.Size(2))
	require.True(t, errors.IsType(err, models.ErrTypeOutOfBounds))
}

func TestBandInvariant(t *testing.T) {
	v := seededVolume(t, unitBox().Offset(0.037))
	mesh := v.Isosurface(0)

	band := v.UpdateSurfaceCorrespondence(mesh, 2*v.Delta(), nil)
	require.NotEmpty(t, band)

	seen := make(map[Coord]bool)
	for i, c := range band {
		require.False(t, seen[c], "voxel %v listed twice", c)
		seen[c] = true

		vox, err := v.Voxel(c[0], c[1], c[2])
		require.NoError(t, err)
		require.Equal(t, Correspondent, vox.Status)
		require.NotEqual(t, models.NoFace, vox.Face)
		require.Less(t, vox.Face, len(mesh.Faces))
		require.Equal(t, i, vox.Index)
		require.LessOrEqual(t, vox.FaceDistance(), 6*v.Delta())
		require.False(t, math.IsNaN(vox.Field) || math.IsInf(vox.Field, 0))
	}

	v.ResetBand(band)
	for _, c := range band {
		vox, _ := v.Voxel(c[0], c[1], c[2])
		require.Equal(t, Inactive, vox.Status)
		require.Equal(t, models.NoFace, vox.Face)
	}
}

func TestCorrespondenceRoundTrip(t *testing.T) {
	v := seededVolume(t, unitBox().Offset(0.037))
	mesh := v.Isosurface(0)

	band := v.UpdateSurfaceCorrespondence(mesh, 0, nil)
	require.NotEmpty(t, band)

	half := v.Delta() / 2
	for _, vert := range mesh.Vertices {
		c := v.Pos2Off(r3.Add(vert.Pos, r3.Vec{X: half, Y: half, Z: half}))
		vox, err := v.Voxel(c[0], c[1], c[2])
		require.NoError(t, err)
		require.Equal(t, Correspondent, vox.Status, "voxel %v of vertex %v", c, vert.Pos)
		require.Less(t, vox.FaceDistance(), v.Delta())
	}
}

func TestBandOfEmptyMesh(t *testing.T) {
	v := newVolume(t, 4, 1, unitBox())
	band := v.UpdateSurfaceCorrespondence(models.NewSurfaceMesh(nil, nil), v.Delta(), nil)
	require.Empty(t, band)
}
