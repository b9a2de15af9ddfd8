package interpolation

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"shrinkwrap/internal/models"
)

// Solver selects how the interpolation system is solved.
type Solver int

const (
	// SolverAuto factorizes small systems and iterates on large ones.
	SolverAuto Solver = iota
	// SolverCholesky factorizes the dense system.
	SolverCholesky
	// SolverCG runs a Jacobi-preconditioned conjugate gradient on the
	// sparse system.
	SolverCG
)

const (
	// denseLimit is the largest system SolverAuto factorizes densely.
	denseLimit = 800

	defaultRegularization = 1e-10
	defaultTolerance      = 1e-14
)

// ParseSolver maps a configuration string to a Solver.
func ParseSolver(s string) (Solver, bool) {
	switch s {
	case "auto", "":
		return SolverAuto, true
	case "cholesky":
		return SolverCholesky, true
	case "cg":
		return SolverCG, true
	default:
		return SolverAuto, false
	}
}

func (s Solver) String() string {
	switch s {
	case SolverCholesky:
		return "cholesky"
	case SolverCG:
		return "cg"
	default:
		return "auto"
	}
}

// SolveInfo describes the last Solve.
type SolveInfo struct {
	// Solver is the solver that ran, never SolverAuto.
	Solver     Solver
	Iterations int
	Converged  bool
}

// LastSolve describes the last Solve.
func (fi *FieldInterpolator) LastSolve() SolveInfo {
	return fi.last
}

// Solve returns the per-vertex minimizer of the energy. Without any
// constraint the minimizer is the zero field. A vertex with neither edges
// nor constraints makes the system singular.
func (fi *FieldInterpolator) Solve() ([]float64, error) {
	x := make([]float64, fi.n)

	solver := fi.solver
	if solver == SolverAuto {
		solver = SolverCG
		if fi.n <= denseLimit {
			solver = SolverCholesky
		}
	}
	fi.last = SolveInfo{Solver: solver, Converged: true}

	var lapMean float64
	for i := 0; i < fi.n; i++ {
		if fi.diag[i] == 0 && fi.cdiag[i] == 0 {
			fi.last.Converged = false
			return nil, errors.New("vertex has neither edges nor constraints").
				WithType(models.ErrTypeSingularSystem).
				WithTag("vertex", i)
		}
		lapMean += fi.diag[i]
	}
	if fi.n == 0 || len(fi.constraints) == 0 {
		return x, nil
	}
	lapMean /= float64(fi.n)

	// A component without constraints has a constant null space, the
	// regularization pins it to zero.
	reg := fi.regularization * math.Max(lapMean, 1)

	var err error
	switch solver {
	case SolverCholesky:
		err = fi.solveCholesky(x, reg)
	default:
		err = fi.solveCG(x, reg)
	}
	if err != nil {
		fi.last.Converged = false
		return nil, err
	}
	return x, nil
}

func (fi *FieldInterpolator) solveCholesky(x []float64, reg float64) error {
	a := mat.NewSymDense(fi.n, nil)
	for i := 0; i < fi.n; i++ {
		a.SetSym(i, i, fi.diag[i]+fi.cdiag[i]+reg)
		for _, e := range fi.rows[i] {
			if e.col > i {
				a.SetSym(i, e.col, -e.weight)
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return errors.New("interpolation system is not positive definite").
			WithType(models.ErrTypeSingularSystem).
			WithTag("unknowns", fi.n)
	}

	dst := mat.NewVecDense(fi.n, x)
	if err := chol.SolveVecTo(dst, mat.NewVecDense(fi.n, fi.rhs)); err != nil {
		return errors.New("cholesky solve failed").
			WithType(models.ErrTypeSingularSystem).
			WithTag("unknowns", fi.n).
			Wrap(err)
	}
	return nil
}

// mulVec computes dst = (L + C + reg I) x.
func (fi *FieldInterpolator) mulVec(dst, x []float64, reg float64) {
	for i := 0; i < fi.n; i++ {
		s := (fi.diag[i] + fi.cdiag[i] + reg) * x[i]
		for _, e := range fi.rows[i] {
			s -= e.weight * x[e.col]
		}
		dst[i] = s
	}
}

func (fi *FieldInterpolator) solveCG(x []float64, reg float64) error {
	n := fi.n
	maxIter := fi.maxIterations
	if maxIter <= 0 {
		maxIter = 10 * n
	}

	inv := make([]float64, n)
	for i := range inv {
		inv[i] = 1 / (fi.diag[i] + fi.cdiag[i] + reg)
	}

	// x starts at zero so the residual starts at b.
	r := make([]float64, n)
	copy(r, fi.rhs)
	z := make([]float64, n)
	floats.MulTo(z, inv, r)
	p := make([]float64, n)
	copy(p, z)
	ap := make([]float64, n)

	rz := floats.Dot(r, z)
	stop := fi.tolerance * fi.tolerance * rz
	if rz == 0 {
		return nil
	}

	for it := 0; it < maxIter; it++ {
		fi.mulVec(ap, p, reg)
		pap := floats.Dot(p, ap)
		if pap <= 0 || math.IsNaN(pap) {
			return errors.New("conjugate gradient breakdown").
				WithType(models.ErrTypeSingularSystem).
				WithTag("iteration", it).
				WithTag("unknowns", n)
		}
		alpha := rz / pap
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		floats.MulTo(z, inv, r)

		next := floats.Dot(r, z)
		fi.last.Iterations = it + 1
		if next <= stop {
			logs.WithTag("iterations", it+1).
				WithTag("unknowns", n).
				Debug("conjugate gradient converged")
			return nil
		}
		floats.Scale(next/rz, p)
		floats.Add(p, z)
		rz = next
	}

	fi.last.Converged = false
	logs.Warn(errors.New("conjugate gradient reached its iteration cap").
		WithTag("iterations", maxIter).
		WithTag("unknowns", n).
		WithTag("residual", math.Sqrt(rz)).
		WithTag("stop", math.Sqrt(stop)))
	return nil
}
