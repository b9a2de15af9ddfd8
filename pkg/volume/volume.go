// Package volume holds the signed scalar field sampled on a regular grid
// around the point cloud. The zero level set of the field is the surface
// being evolved; voxels near that surface carry a correspondence with the
// closest surface face while a step is in progress.
package volume

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"

	"shrinkwrap/internal/models"
	"shrinkwrap/pkg/stl"
)

// Status is the band membership of a voxel.
type Status uint8

const (
	// Inactive voxels are away from the surface.
	Inactive Status = iota
	// InBand voxels have been reached by a face but their closest face
	// is not settled yet.
	InBand
	// Correspondent voxels are in the band with a settled closest face.
	Correspondent
)

func (s Status) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case InBand:
		return "in-band"
	case Correspondent:
		return "correspondent"
	default:
		return "unknown"
	}
}

// Voxel is a grid sample.
type Voxel struct {
	// Field is the signed distance to the surface in cell units,
	// positive outside and negative inside
	Field float64

	// Status is the band membership
	Status Status

	// Face is the index of the closest face of the current surface, or
	// models.NoFace when Status is Inactive
	Face int

	// Index is the position of the voxel in the band list
	Index int

	// dist is the unsigned distance to Face
	dist float64
}

// Reset drops the band bookkeeping of the voxel.
func (v *Voxel) Reset() {
	v.Status = Inactive
	v.Face = models.NoFace
	v.Index = 0
	v.dist = 0
}

// Volume is a dense grid of voxels.
type Volume struct {
	Geometry

	voxels []Voxel

	// scratch receives the field values for extraction
	scratch []float64
}

// Init allocates a grid covering bbox with resolution cells along its
// longest axis and padding extra cells on every side. All voxels start
// Inactive with a zero field.
func (v *Volume) Init(resolution, padding int, bbox models.Box) error {
	g, err := NewGeometry(resolution, padding, bbox)
	if err != nil {
		return err
	}
	v.Geometry = g
	v.voxels = make([]Voxel, g.Len())
	v.scratch = make([]float64, g.Len())
	for i := range v.voxels {
		v.voxels[i].Face = models.NoFace
	}
	return nil
}

// IsInit reports whether Init succeeded.
func (v *Volume) IsInit() bool {
	return len(v.voxels) > 0
}

// SeedBox returns the signed distance function of box, suitable for
// InitField.
func SeedBox(box models.Box) (sdf.SDF3, error) {
	size := box.Size()
	s, err := sdf.Box3D(v3.Vec{X: size.X, Y: size.Y, Z: size.Z}, 0)
	if err != nil {
		return nil, errors.New("invalid seed box").
			WithType(models.ErrTypeInvalidConfig).
			Wrap(err)
	}
	c := box.Center()
	return sdf.Transform3D(s, sdf.Translate3d(v3.Vec{X: c.X, Y: c.Y, Z: c.Z})), nil
}

// InitField samples the signed distance of region at every grid point,
// positive outside and negative inside, and clears the band bookkeeping.
func (v *Volume) InitField(region sdf.SDF3) error {
	if !v.IsInit() {
		return errors.New("volume is not initialized").
			WithType(models.ErrTypeNotInitialized)
	}
	for k := 0; k < v.size[2]; k++ {
		for j := 0; j < v.size[1]; j++ {
			for i := 0; i < v.size[0]; i++ {
				c := Coord{i, j, k}
				p := v.Off2Pos(c)
				vox := &v.voxels[v.Index(c)]
				vox.Field = region.Evaluate(v3.Vec{X: p.X, Y: p.Y, Z: p.Z}) / v.delta
				vox.Reset()
			}
		}
	}
	return nil
}

// Isosurface extracts the level set field == level as a closed mesh with
// outward facing normals. A field without crossing yields an empty mesh.
func (v *Volume) Isosurface(level float64) *models.SurfaceMesh {
	if !v.IsInit() {
		return models.NewSurfaceMesh(nil, nil)
	}
	v.scratch = v.Fields(v.scratch)
	mc := stl.NewMarchingCubes(v.scratch, v.size[0], v.size[1], v.size[2], level)
	mc.SetScale(v.delta, v.delta, v.delta)
	mc.SetOrigin(v.origin)
	mc.SetInsideBelow(true)
	vertices, faces := mc.Extract()
	return models.NewSurfaceMesh(vertices, faces)
}

// Fields copies the field of every voxel into dst, grown as needed, in
// Index order.
func (v *Volume) Fields(dst []float64) []float64 {
	if cap(dst) < len(v.voxels) {
		dst = make([]float64, len(v.voxels))
	}
	dst = dst[:len(v.voxels)]
	for i := range v.voxels {
		dst[i] = v.voxels[i].Field
	}
	return dst
}

// Voxel returns the voxel at (i, j, k).
func (v *Volume) Voxel(i, j, k int) (*Voxel, error) {
	c := Coord{i, j, k}
	if !v.Contains(c) {
		return nil, v.outOfBounds(c)
	}
	return &v.voxels[v.Index(c)], nil
}

// VoxelAt returns the voxel of the cell containing p.
func (v *Volume) VoxelAt(p r3.Vec) (*Voxel, error) {
	c := v.Pos2Off(p)
	return v.Voxel(c[0], c[1], c[2])
}

// at returns the voxel at c without bounds checking.
func (v *Volume) at(c Coord) *Voxel {
	return &v.voxels[v.Index(c)]
}

// Value returns the field trilinearly interpolated at p.
func (v *Volume) Value(p r3.Vec) (float64, error) {
	c := v.Pos2Off(p)
	if !v.Contains(c) {
		return 0, v.outOfBounds(c)
	}
	// the last grid point has no upper neighbour, fall back to it
	c = v.clamp(Coord{min(c[0], v.size[0]-2), min(c[1], v.size[1]-2), min(c[2], v.size[2]-2)})
	base := v.Off2Pos(c)
	fx := clamp01((p.X - base.X) / v.delta)
	fy := clamp01((p.Y - base.Y) / v.delta)
	fz := clamp01((p.Z - base.Z) / v.delta)

	var value float64
	for corner := 0; corner < 8; corner++ {
		dx, dy, dz := corner&1, (corner>>1)&1, (corner>>2)&1
		w := lerpWeight(fx, dx) * lerpWeight(fy, dy) * lerpWeight(fz, dz)
		if w == 0 {
			continue
		}
		value += w * v.at(v.clamp(Coord{c[0] + dx, c[1] + dy, c[2] + dz})).Field
	}
	return value, nil
}

// Gradient returns the gradient of the field at grid point (i, j, k) in
// cell units per world unit, using central differences inside the grid
// and one sided differences on its faces.
func (v *Volume) Gradient(i, j, k int) (r3.Vec, error) {
	c := Coord{i, j, k}
	if !v.Contains(c) {
		return r3.Vec{}, v.outOfBounds(c)
	}
	var g [3]float64
	for a := 0; a < 3; a++ {
		lo, hi := c, c
		lo[a]--
		hi[a]++
		lo, hi = v.clamp(lo), v.clamp(hi)
		span := float64(hi[a]-lo[a]) * v.delta
		if span == 0 {
			continue
		}
		g[a] = (v.at(hi).Field - v.at(lo).Field) / span
	}
	return r3.Vec{X: g[0], Y: g[1], Z: g[2]}, nil
}

// ResetBand returns every voxel of band to Inactive.
func (v *Volume) ResetBand(band []Coord) {
	for _, c := range band {
		if v.Contains(c) {
			v.at(c).Reset()
		}
	}
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

func lerpWeight(f float64, upper int) float64 {
	if upper == 1 {
		return f
	}
	return 1 - f
}
