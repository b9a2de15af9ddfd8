package volume

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"shrinkwrap/internal/models"
)

// Coord is an integer grid coordinate (i, j, k).
type Coord [3]int

// Geometry describes the grid layout: grid point (i, j, k) sits at
// Origin + (i, j, k) * Delta. The grid is shared by the volume and the
// ray index so that both agree on cell keys.
type Geometry struct {
	origin  r3.Vec
	delta   float64
	size    [3]int
	padding int
}

// NewGeometry sizes a grid covering bbox with resolution cells along its
// longest axis plus padding cells on every side.
func NewGeometry(resolution, padding int, bbox models.Box) (Geometry, error) {
	if resolution <= 0 {
		return Geometry{}, errors.New("grid resolution must be positive").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("resolution", resolution)
	}
	if padding < 1 {
		return Geometry{}, errors.New("grid padding must be at least one cell").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("padding", padding)
	}
	if bbox.IsEmpty() {
		return Geometry{}, errors.New("empty bounding box").
			WithType(models.ErrTypeInvalidConfig)
	}
	maxDim := bbox.MaxDim()
	if maxDim <= 0 || math.IsInf(maxDim, 0) || math.IsNaN(maxDim) {
		return Geometry{}, errors.New("degenerate bounding box").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("max_dim", maxDim)
	}

	g := Geometry{
		delta:   maxDim / float64(resolution),
		padding: padding,
	}
	dims := bbox.Size()
	for axis, d := range [3]float64{dims.X, dims.Y, dims.Z} {
		cells := int(math.Ceil(d/g.delta - 1e-9))
		if cells < 0 {
			cells = 0
		}
		g.size[axis] = cells + 1 + 2*padding
	}
	pad := float64(padding) * g.delta
	g.origin = r3.Sub(bbox.Min, r3.Vec{X: pad, Y: pad, Z: pad})
	return g, nil
}

// Size returns the number of grid points along axis.
func (g Geometry) Size(axis int) int { return g.size[axis] }

// Delta returns the cell width.
func (g Geometry) Delta() float64 { return g.delta }

// Origin returns the position of grid point (0, 0, 0).
func (g Geometry) Origin() r3.Vec { return g.origin }

// Padding returns the number of padding cells around the bounding box.
func (g Geometry) Padding() int { return g.padding }

// Len returns the number of grid points.
func (g Geometry) Len() int { return g.size[0] * g.size[1] * g.size[2] }

// Bounds returns the box spanned by the grid points.
func (g Geometry) Bounds() models.Box {
	return models.Box{
		Min: g.origin,
		Max: g.Off2Pos(Coord{g.size[0] - 1, g.size[1] - 1, g.size[2] - 1}),
	}
}

// Contains reports whether c is a valid grid coordinate.
func (g Geometry) Contains(c Coord) bool {
	return c[0] >= 0 && c[0] < g.size[0] &&
		c[1] >= 0 && c[1] < g.size[1] &&
		c[2] >= 0 && c[2] < g.size[2]
}

// Pos2Off returns the coordinate of the cell containing p, that is the
// grid point at the lower corner of the cell. The result may lie outside
// the grid.
func (g Geometry) Pos2Off(p r3.Vec) Coord {
	return Coord{
		int(math.Floor((p.X - g.origin.X) / g.delta)),
		int(math.Floor((p.Y - g.origin.Y) / g.delta)),
		int(math.Floor((p.Z - g.origin.Z) / g.delta)),
	}
}

// Off2Pos returns the position of grid point c.
func (g Geometry) Off2Pos(c Coord) r3.Vec {
	return r3.Vec{
		X: g.origin.X + float64(c[0])*g.delta,
		Y: g.origin.Y + float64(c[1])*g.delta,
		Z: g.origin.Z + float64(c[2])*g.delta,
	}
}

// Index returns the linear index of c, x fastest.
func (g Geometry) Index(c Coord) int {
	return c[2]*g.size[0]*g.size[1] + c[1]*g.size[0] + c[0]
}

// clamp limits c to the grid.
func (g Geometry) clamp(c Coord) Coord {
	for a := 0; a < 3; a++ {
		if c[a] < 0 {
			c[a] = 0
		}
		if c[a] > g.size[a]-1 {
			c[a] = g.size[a] - 1
		}
	}
	return c
}

func (g Geometry) outOfBounds(c Coord) error {
	return errors.New("voxel coordinate out of bounds").
		WithType(models.ErrTypeOutOfBounds).
		WithTag("i", c[0]).
		WithTag("j", c[1]).
		WithTag("k", c[2])
}
