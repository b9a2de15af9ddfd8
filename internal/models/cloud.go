package models

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Ray is a half line starting at Origin and pointing along Dir.
type Ray struct {
	// Origin is the position of the sample the ray belongs to
	Origin r3.Vec

	// Dir is the unit surface normal of the sample
	Dir r3.Vec
}

// At returns the point reached after travelling t along the ray.
func (r Ray) At(t float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(t, r.Dir))
}

// Box is an axis aligned bounding box.
type Box struct {
	Min, Max r3.Vec
}

// EmptyBox returns a box that contains nothing and grows with Add.
func EmptyBox() Box {
	inf := math.Inf(1)
	return Box{
		Min: r3.Vec{X: inf, Y: inf, Z: inf},
		Max: r3.Vec{X: -inf, Y: -inf, Z: -inf},
	}
}

// IsEmpty reports whether the box has never been grown.
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Add grows the box so that it contains p.
func (b *Box) Add(p r3.Vec) {
	b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
	b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
}

// Offset returns the box enlarged by d on every side.
func (b Box) Offset(d float64) Box {
	off := r3.Vec{X: d, Y: d, Z: d}
	return Box{Min: r3.Sub(b.Min, off), Max: r3.Add(b.Max, off)}
}

// Size returns the extent of the box along each axis.
func (b Box) Size() r3.Vec {
	return r3.Sub(b.Max, b.Min)
}

// Center returns the midpoint of the box.
func (b Box) Center() r3.Vec {
	return r3.Scale(0.5, r3.Add(b.Min, b.Max))
}

// MaxDim returns the longest extent of the box.
func (b Box) MaxDim() float64 {
	s := b.Size()
	return math.Max(s.X, math.Max(s.Y, s.Z))
}

// Contains reports whether p lies inside the box or on its boundary.
func (b Box) Contains(p r3.Vec) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// PointCloud is an ordered set of oriented samples. Each sample is read
// as a ray whose origin is the position and whose direction is the normal.
// A cloud is never modified once loaded.
type PointCloud struct {
	rays []Ray
	bbox Box
}

// NewPointCloud builds a cloud from positions and normals of equal length.
// Normals are normalized; a zero normal is kept as is.
func NewPointCloud(positions, normals []r3.Vec) *PointCloud {
	n := len(positions)
	if len(normals) < n {
		n = len(normals)
	}
	pc := &PointCloud{
		rays: make([]Ray, n),
		bbox: EmptyBox(),
	}
	for i := 0; i < n; i++ {
		dir := normals[i]
		if r3.Norm(dir) > 0 {
			dir = r3.Unit(dir)
		}
		pc.rays[i] = Ray{Origin: positions[i], Dir: dir}
		pc.bbox.Add(positions[i])
	}
	return pc
}

// Len returns the number of samples.
func (pc *PointCloud) Len() int { return len(pc.rays) }

// Ray returns a pointer to the i-th ray. The pointer is shared, callers
// must not modify the ray.
func (pc *PointCloud) Ray(i int) *Ray { return &pc.rays[i] }

// Rays returns the backing ray slice. Read only.
func (pc *PointCloud) Rays() []Ray { return pc.rays }

// BBox returns the bounding box of the sample positions.
func (pc *PointCloud) BBox() Box { return pc.bbox }
