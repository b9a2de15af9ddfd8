package reconstruction

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"shrinkwrap/internal/models"
)

// Residual summarizes the distance from the cloud points to the nearest
// surface vertex.
type Residual struct {
	Mean   float64 `json:"mean"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

// vertexPoint is a surface vertex stored in the kd-tree.
type vertexPoint struct {
	r3.Vec
	index int
}

// Compare implements the kdtree.Comparable interface
func (p vertexPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(vertexPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p vertexPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p vertexPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(vertexPoint)
	d := r3.Sub(p.Vec, q.Vec)
	return r3.Dot(d, d)
}

// vertexPoints satisfies kdtree.Interface
type vertexPoints []vertexPoint

func (p vertexPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p vertexPoints) Len() int                              { return len(p) }
func (p vertexPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p vertexPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(vertexPlane{vertexPoints: p, Dim: d}, kdtree.MedianOfRandoms(vertexPlane{vertexPoints: p, Dim: d}, 100))
}

// vertexPlane implements sort.Interface and kdtree.SortSlicer
type vertexPlane struct {
	vertexPoints
	kdtree.Dim
}

func (p vertexPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.vertexPoints[i].X < p.vertexPoints[j].X
	case 1:
		return p.vertexPoints[i].Y < p.vertexPoints[j].Y
	case 2:
		return p.vertexPoints[i].Z < p.vertexPoints[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p vertexPlane) Slice(start, end int) kdtree.SortSlicer {
	return vertexPlane{vertexPoints: p.vertexPoints[start:end], Dim: p.Dim}
}

func (p vertexPlane) Swap(i, j int) {
	p.vertexPoints[i], p.vertexPoints[j] = p.vertexPoints[j], p.vertexPoints[i]
}

// NearestVertex returns, for every cloud point, the index of the closest
// vertex of mesh and the distance to it. It returns nil slices for an
// empty mesh.
func NearestVertex(mesh *models.SurfaceMesh, cloud *models.PointCloud) ([]int, []float64) {
	if mesh == nil || len(mesh.Vertices) == 0 || cloud == nil {
		return nil, nil
	}
	points := make(vertexPoints, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		points[i] = vertexPoint{Vec: v.Pos, index: i}
	}
	tree := kdtree.New(points, false)

	nearest := make([]int, cloud.Len())
	dist := make([]float64, cloud.Len())
	for i := range nearest {
		c, d := tree.Nearest(vertexPoint{Vec: cloud.Ray(i).Origin})
		nearest[i] = c.(vertexPoint).index
		dist[i] = math.Sqrt(d)
	}
	return nearest, dist
}

// ComputeResidual measures how far the cloud is from mesh.
func ComputeResidual(mesh *models.SurfaceMesh, cloud *models.PointCloud) Residual {
	_, dist := NearestVertex(mesh, cloud)
	if len(dist) == 0 {
		return Residual{}
	}

	var r Residual
	for _, d := range dist {
		r.Max = math.Max(r.Max, d)
	}
	if len(dist) == 1 {
		r.Mean = dist[0]
		return r
	}
	r.Mean, r.StdDev = stat.MeanStdDev(dist, nil)
	return r
}
