// Package interpolation spreads sparse scalar samples over a triangle mesh
// by minimizing a weighted Dirichlet energy plus soft point constraints.
//
// The energy is
//
//	E(x) = sum over edges w_ij (x_i - x_j)^2 + sum over constraints c_k (x_v - t_k)^2
//
// and its minimizer solves (L + C) x = b, with L the weighted graph
// Laplacian of the mesh, C the diagonal of accumulated constraint weights
// and b the accumulated weighted targets.
package interpolation

import (
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"

	"shrinkwrap/internal/models"
	"shrinkwrap/pkg/geometry"
)

// WeightScheme selects the edge weights of the smoothness term.
type WeightScheme int

const (
	// Cotangent weights discretize the Laplace–Beltrami operator.
	Cotangent WeightScheme = iota
	// Combinatorial weights give every edge the same weight.
	Combinatorial
)

// ParseWeightScheme maps a configuration string to a WeightScheme.
func ParseWeightScheme(s string) (WeightScheme, bool) {
	switch s {
	case "cotangent", "":
		return Cotangent, true
	case "combinatorial", "uniform":
		return Combinatorial, true
	default:
		return Cotangent, false
	}
}

func (s WeightScheme) String() string {
	if s == Combinatorial {
		return "combinatorial"
	}
	return "cotangent"
}

// Cotangent weights are clamped to this range: obtuse corners would make
// them negative and slivers from the extraction make them explode.
const (
	minCotWeight = 1e-3
	maxCotWeight = 1e3
)

// Constraint pulls a vertex towards a value.
type Constraint struct {
	Vertex int
	Weight float64
	Value  float64
}

// FieldInterpolator assembles and solves the interpolation system of one
// mesh. It is rebuilt every iteration since the mesh is replaced.
type FieldInterpolator struct {
	n      int
	scheme WeightScheme

	// rows holds the off-diagonal entries of L, sorted by column
	rows [][]entry
	// diag holds the diagonal of L
	diag []float64

	// cdiag and rhs accumulate the constraint terms
	cdiag []float64
	rhs   []float64

	constraints []Constraint

	solver         Solver
	regularization float64
	tolerance      float64
	maxIterations  int

	last SolveInfo
}

type entry struct {
	col    int
	weight float64
}

// New returns an interpolator with default solver settings. Call Init
// before adding constraints.
func New() *FieldInterpolator {
	return &FieldInterpolator{
		solver:         SolverAuto,
		regularization: defaultRegularization,
		tolerance:      defaultTolerance,
	}
}

// SetSolver selects the linear solver.
func (fi *FieldInterpolator) SetSolver(s Solver) {
	fi.solver = s
}

// SetTolerance sets the relative residual at which the conjugate gradient
// solver stops, and its iteration cap (0 picks a cap from the size).
func (fi *FieldInterpolator) SetTolerance(tol float64, maxIterations int) {
	fi.tolerance = tol
	fi.maxIterations = maxIterations
}

// Init builds the smoothness term of mesh with the given weights and
// drops every constraint.
func (fi *FieldInterpolator) Init(mesh *models.SurfaceMesh, scheme WeightScheme) error {
	if mesh == nil {
		return errors.New("nil mesh").WithType(models.ErrTypeInvalidConfig)
	}
	n := len(mesh.Vertices)
	fi.n = n
	fi.scheme = scheme
	fi.diag = make([]float64, n)
	fi.cdiag = make([]float64, n)
	fi.rhs = make([]float64, n)
	fi.constraints = fi.constraints[:0]

	weights := make(map[[2]int]float64, 3*len(mesh.Faces)/2)
	for f, face := range mesh.Faces {
		for _, v := range face.V {
			if v < 0 || v >= n {
				return errors.New("face references a missing vertex").
					WithType(models.ErrTypeOutOfBounds).
					WithTag("face", f).
					WithTag("vertex", v)
			}
		}
		tri := mesh.Triangle(f)
		for k := 0; k < 3; k++ {
			a, b := face.V[(k+1)%3], face.V[(k+2)%3]
			if a == b {
				continue
			}
			if a > b {
				a, b = b, a
			}
			key := [2]int{a, b}
			switch scheme {
			case Combinatorial:
				weights[key] = 1
			default:
				weights[key] += 0.5 * geometry.Cotangent(tri[k], tri[(k+1)%3], tri[(k+2)%3])
			}
		}
	}

	fi.rows = make([][]entry, n)
	for key, w := range weights {
		if scheme == Cotangent {
			w = clamp(w, minCotWeight, maxCotWeight)
		}
		a, b := key[0], key[1]
		fi.rows[a] = append(fi.rows[a], entry{col: b, weight: w})
		fi.rows[b] = append(fi.rows[b], entry{col: a, weight: w})
		fi.diag[a] += w
		fi.diag[b] += w
	}
	for i := range fi.rows {
		sort.Slice(fi.rows[i], func(x, y int) bool { return fi.rows[i][x].col < fi.rows[i][y].col })
	}
	return nil
}

// AddConstraint adds weight * (x[vertex] - value)^2 to the energy.
// Constraints on the same vertex accumulate.
func (fi *FieldInterpolator) AddConstraint(vertex int, weight, value float64) error {
	if vertex < 0 || vertex >= fi.n {
		return errors.New("constraint on a missing vertex").
			WithType(models.ErrTypeOutOfBounds).
			WithTag("vertex", vertex)
	}
	if weight < 0 {
		return errors.New("negative constraint weight").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("weight", weight)
	}
	if weight == 0 {
		return nil
	}
	fi.cdiag[vertex] += weight
	fi.rhs[vertex] += weight * value
	fi.constraints = append(fi.constraints, Constraint{Vertex: vertex, Weight: weight, Value: value})
	return nil
}

// Constraints returns the constraints added since Init.
func (fi *FieldInterpolator) Constraints() []Constraint {
	return fi.constraints
}

// NumConstraints returns the number of constraints added since Init.
func (fi *FieldInterpolator) NumConstraints() int {
	return len(fi.constraints)
}

// Len returns the number of unknowns.
func (fi *FieldInterpolator) Len() int {
	return fi.n
}

// EdgeWeight returns the weight of edge (a, b), 0 when there is none.
func (fi *FieldInterpolator) EdgeWeight(a, b int) float64 {
	if a < 0 || a >= fi.n {
		return 0
	}
	row := fi.rows[a]
	i := sort.Search(len(row), func(i int) bool { return row[i].col >= b })
	if i < len(row) && row[i].col == b {
		return row[i].weight
	}
	return 0
}

// Energy evaluates the energy at x.
func (fi *FieldInterpolator) Energy(x []float64) float64 {
	var e float64
	for a, row := range fi.rows {
		for _, en := range row {
			if en.col > a {
				d := x[a] - x[en.col]
				e += en.weight * d * d
			}
		}
	}
	for _, c := range fi.constraints {
		d := x[c.Vertex] - c.Value
		e += c.Weight * d * d
	}
	return e
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
