// Package geometry provides the ray–triangle and point–triangle
// primitives used to relate the point cloud, the surface and the grid.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// epsilon guards against parallel rays and degenerate triangles.
const epsilon = 1e-12

// Hit is the result of a ray–triangle intersection. The intersection
// point is (1-U-V)*P0 + U*P1 + V*P2, reached after travelling T.
type Hit struct {
	T, U, V float64
}

// Weights returns the barycentric weights of the three triangle corners.
func (h Hit) Weights() [3]float64 {
	return [3]float64{1 - h.U - h.V, h.U, h.V}
}

// IntersectRayTriangle tests the ray (origin, dir) against the triangle
// with the Möller–Trumbore algorithm. Both faces of the triangle are hit.
// ok is false when the ray misses, is parallel to the triangle, or only
// the line behind the origin (t <= 0) crosses it.
func IntersectRayTriangle(origin, dir r3.Vec, tri [3]r3.Vec) (hit Hit, ok bool) {
	edge1 := r3.Sub(tri[1], tri[0])
	edge2 := r3.Sub(tri[2], tri[0])
	h := r3.Cross(dir, edge2)
	det := r3.Dot(edge1, h)
	if math.Abs(det) < epsilon {
		return Hit{}, false
	}
	invDet := 1 / det
	s := r3.Sub(origin, tri[0])
	u := invDet * r3.Dot(s, h)
	if u < 0 || u > 1 {
		return Hit{}, false
	}
	q := r3.Cross(s, edge1)
	v := invDet * r3.Dot(dir, q)
	if v < 0 || u+v > 1 {
		return Hit{}, false
	}
	t := invDet * r3.Dot(edge2, q)
	if t <= 0 {
		return Hit{}, false
	}
	return Hit{T: t, U: u, V: v}, true
}

// PlaneDistance returns the signed distance of p from the supporting
// plane of the triangle, positive on the side the normal points to.
// Degenerate triangles yield +Inf.
func PlaneDistance(p r3.Vec, tri [3]r3.Vec) float64 {
	n := r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0]))
	l := r3.Norm(n)
	if l < epsilon {
		return math.Inf(1)
	}
	return r3.Dot(r3.Sub(p, tri[0]), n) / l
}

// SignedPointTriangleDistance returns the distance between p and the
// closest point of the triangle, signed by the side of the supporting
// plane p lies on, together with that closest point.
func SignedPointTriangleDistance(p r3.Vec, tri [3]r3.Vec) (dist float64, closest r3.Vec) {
	closest = ClosestPoint(p, tri)
	dist = r3.Norm(r3.Sub(p, closest))
	n := r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0]))
	if r3.Dot(r3.Sub(p, closest), n) < 0 {
		dist = -dist
	}
	return dist, closest
}

// ClosestPoint returns the point of the triangle closest to p, using the
// Voronoi region classification of Ericson, Real-Time Collision Detection.
func ClosestPoint(p r3.Vec, tri [3]r3.Vec) r3.Vec {
	a, b, c := tri[0], tri[1], tri[2]
	ab := r3.Sub(b, a)
	ac := r3.Sub(c, a)
	ap := r3.Sub(p, a)
	d1 := r3.Dot(ab, ap)
	d2 := r3.Dot(ac, ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := r3.Sub(p, b)
	d3 := r3.Dot(ab, bp)
	d4 := r3.Dot(ac, bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return r3.Add(a, r3.Scale(v, ab))
	}

	cp := r3.Sub(p, c)
	d5 := r3.Dot(ab, cp)
	d6 := r3.Dot(ac, cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return r3.Add(a, r3.Scale(w, ac))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return r3.Add(b, r3.Scale(w, r3.Sub(c, b)))
	}

	denom := va + vb + vc
	if math.Abs(denom) < epsilon {
		return a
	}
	v := vb / denom
	w := vc / denom
	return r3.Add(a, r3.Add(r3.Scale(v, ab), r3.Scale(w, ac)))
}

// Barycentric returns the weights (a, b, c) such that
// p = a*P0 + b*P1 + c*P2 for a point p on the plane of the triangle.
// ok is false for degenerate triangles.
func Barycentric(p r3.Vec, tri [3]r3.Vec) (a, b, c float64, ok bool) {
	v0 := r3.Sub(tri[1], tri[0])
	v1 := r3.Sub(tri[2], tri[0])
	v2 := r3.Sub(p, tri[0])
	d00 := r3.Dot(v0, v0)
	d01 := r3.Dot(v0, v1)
	d11 := r3.Dot(v1, v1)
	d20 := r3.Dot(v2, v0)
	d21 := r3.Dot(v2, v1)
	denom := d00*d11 - d01*d01
	if math.Abs(denom) < epsilon*epsilon {
		return 0, 0, 0, false
	}
	b = (d11*d20 - d01*d21) / denom
	c = (d00*d21 - d01*d20) / denom
	return 1 - b - c, b, c, true
}

// Area returns the area of the triangle.
func Area(tri [3]r3.Vec) float64 {
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(tri[1], tri[0]), r3.Sub(tri[2], tri[0])))
}

// Cotangent returns the cotangent of the angle at o between the
// directions towards a and b. Degenerate corners return 0.
func Cotangent(o, a, b r3.Vec) float64 {
	u := r3.Sub(a, o)
	v := r3.Sub(b, o)
	sin := r3.Norm(r3.Cross(u, v))
	if sin < epsilon {
		return 0
	}
	return r3.Dot(u, v) / sin
}
