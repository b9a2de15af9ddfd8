// Package rayindex buckets the rays of a point cloud into the cells of
// the volume grid so that a surface face only tests the rays sharing its
// cell.
package rayindex

import (
	"math"

	"shrinkwrap/internal/models"
	"shrinkwrap/pkg/volume"
)

// Traversal selects which cells a ray is bucketed into.
type Traversal int

const (
	// Origin buckets each ray once, in the cell holding its origin.
	Origin Traversal = iota
	// March buckets each ray in every cell it crosses, from its origin
	// until it leaves the grid.
	March
)

// ParseTraversal maps a configuration string to a Traversal.
func ParseTraversal(s string) (Traversal, bool) {
	switch s {
	case "origin":
		return Origin, true
	case "march", "":
		return March, true
	default:
		return Origin, false
	}
}

func (t Traversal) String() string {
	if t == March {
		return "march"
	}
	return "origin"
}

// Index maps grid cells to the rays bucketed there. The rays are borrowed
// from the cloud. An Index is read only once built and safe for
// concurrent readers.
type Index struct {
	geometry volume.Geometry
	buckets  [][]*models.Ray
	refs     int
	cells    int
}

// Build buckets every ray of cloud in the cell holding its origin. Each
// ray is referenced exactly once; rays starting outside the grid are
// skipped.
func Build(g volume.Geometry, cloud *models.PointCloud) *Index {
	idx := newIndex(g)
	for i := 0; i < cloud.Len(); i++ {
		r := cloud.Ray(i)
		c := g.Pos2Off(r.Origin)
		if g.Contains(c) {
			idx.add(c, r)
		}
	}
	return idx
}

// BuildMarched buckets every ray of cloud in each cell it crosses,
// walking the grid with a 3D DDA from the origin cell until the ray
// leaves the grid. A ray without direction only lands in its origin cell.
func BuildMarched(g volume.Geometry, cloud *models.PointCloud) *Index {
	idx := newIndex(g)
	for i := 0; i < cloud.Len(); i++ {
		idx.march(cloud.Ray(i))
	}
	return idx
}

// New builds an index with the given traversal.
func New(g volume.Geometry, cloud *models.PointCloud, t Traversal) *Index {
	if t == March {
		return BuildMarched(g, cloud)
	}
	return Build(g, cloud)
}

func newIndex(g volume.Geometry) *Index {
	return &Index{
		geometry: g,
		buckets:  make([][]*models.Ray, g.Len()),
	}
}

func (idx *Index) add(c volume.Coord, r *models.Ray) {
	i := idx.geometry.Index(c)
	if len(idx.buckets[i]) == 0 {
		idx.cells++
	}
	idx.buckets[i] = append(idx.buckets[i], r)
	idx.refs++
}

func (idx *Index) march(r *models.Ray) {
	g := idx.geometry
	c := g.Pos2Off(r.Origin)
	if !g.Contains(c) {
		return
	}

	origin := g.Origin()
	delta := g.Delta()
	pos := [3]float64{r.Origin.X - origin.X, r.Origin.Y - origin.Y, r.Origin.Z - origin.Z}
	dir := [3]float64{r.Dir.X, r.Dir.Y, r.Dir.Z}

	var step [3]int
	var tMax, tDelta [3]float64
	for a := 0; a < 3; a++ {
		switch {
		case dir[a] > 0:
			step[a] = 1
			tMax[a] = (float64(c[a]+1)*delta - pos[a]) / dir[a]
			tDelta[a] = delta / dir[a]
		case dir[a] < 0:
			step[a] = -1
			tMax[a] = (float64(c[a])*delta - pos[a]) / dir[a]
			tDelta[a] = -delta / dir[a]
		default:
			tMax[a] = math.Inf(1)
			tDelta[a] = math.Inf(1)
		}
	}

	for g.Contains(c) {
		idx.add(c, r)
		a := 0
		if tMax[1] < tMax[a] {
			a = 1
		}
		if tMax[2] < tMax[a] {
			a = 2
		}
		if math.IsInf(tMax[a], 1) {
			return
		}
		c[a] += step[a]
		tMax[a] += tDelta[a]
	}
}

// Rays returns the rays bucketed at cell (i, j, k). Cells outside the grid
// hold no rays. The returned slice must not be modified.
func (idx *Index) Rays(i, j, k int) []*models.Ray {
	c := volume.Coord{i, j, k}
	if !idx.geometry.Contains(c) {
		return nil
	}
	return idx.buckets[idx.geometry.Index(c)]
}

// RaysAt returns the rays bucketed at coordinate c.
func (idx *Index) RaysAt(c volume.Coord) []*models.Ray {
	return idx.Rays(c[0], c[1], c[2])
}

// Len returns the total number of ray references.
func (idx *Index) Len() int { return idx.refs }

// Cells returns the number of non-empty cells.
func (idx *Index) Cells() int { return idx.cells }

// Geometry returns the grid the index was built against.
func (idx *Index) Geometry() volume.Geometry { return idx.geometry }
