package volume

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"shrinkwrap/internal/models"
	"shrinkwrap/pkg/geometry"
)

// degenerateArea is the face area, relative to a cell face, under which a
// face is ignored by the band computation.
const degenerateArea = 1e-12

// UpdateSurfaceCorrespondence computes the narrow band around mesh. For
// every face it visits the grid points of the face bounding box grown by
// bandRadius and snapped outwards to the grid; points whose distance to
// the face plane is at most max(bandRadius, Delta) join the band and
// remember their closest face. The coordinates of newly reached voxels
// are appended to band, which is returned.
//
// On return every voxel appended to band is Correspondent with a valid
// face index.
func (v *Volume) UpdateSurfaceCorrespondence(mesh *models.SurfaceMesh, bandRadius float64, band []Coord) []Coord {
	if !v.IsInit() || mesh.Empty() {
		return band
	}
	start := len(band)
	reach := math.Max(bandRadius, v.delta)
	grow := r3.Vec{X: bandRadius, Y: bandRadius, Z: bandRadius}
	minArea := degenerateArea * v.delta * v.delta

	for f := range mesh.Faces {
		tri := mesh.Triangle(f)
		if geometry.Area(tri) <= minArea {
			continue
		}

		box := models.EmptyBox()
		for _, p := range tri {
			box.Add(p)
		}
		lo := v.clamp(v.Pos2Off(r3.Sub(box.Min, grow)))
		hi := v.clamp(v.ceilOff(r3.Add(box.Max, grow)))

		for k := lo[2]; k <= hi[2]; k++ {
			for j := lo[1]; j <= hi[1]; j++ {
				for i := lo[0]; i <= hi[0]; i++ {
					c := Coord{i, j, k}
					p := v.Off2Pos(c)
					if math.Abs(geometry.PlaneDistance(p, tri)) > reach {
						continue
					}
					d, _ := geometry.SignedPointTriangleDistance(p, tri)
					d = math.Abs(d)

					vox := v.at(c)
					switch {
					case vox.Status == Inactive:
						vox.Status = InBand
						vox.Face = f
						vox.dist = d
						vox.Index = len(band)
						band = append(band, c)
					case d < vox.dist:
						vox.Face = f
						vox.dist = d
					}
				}
			}
		}
	}

	for _, c := range band[start:] {
		v.at(c).Status = Correspondent
	}
	return band
}

// ceilOff is Pos2Off rounding up.
func (g Geometry) ceilOff(p r3.Vec) Coord {
	return Coord{
		int(math.Ceil((p.X - g.origin.X) / g.delta)),
		int(math.Ceil((p.Y - g.origin.Y) / g.delta)),
		int(math.Ceil((p.Z - g.origin.Z) / g.delta)),
	}
}

// FaceDistance returns the unsigned distance between the voxel and its
// corresponding face as recorded by the last band update.
func (vox *Voxel) FaceDistance() float64 {
	return vox.dist
}
