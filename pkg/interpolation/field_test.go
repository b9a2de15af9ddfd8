package interpolation

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"shrinkwrap/internal/models"
)

// gridMesh triangulates an nx by ny lattice of unit squares in the XY plane.
func gridMesh(nx, ny int) *models.SurfaceMesh {
	var positions []r3.Vec
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			positions = append(positions, r3.Vec{X: float64(i), Y: float64(j)})
		}
	}
	id := func(i, j int) int { return j*(nx+1) + i }

	var triangles [][3]int
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			triangles = append(triangles,
				[3]int{id(i, j), id(i+1, j), id(i+1, j+1)},
				[3]int{id(i, j), id(i+1, j+1), id(i, j+1)},
			)
		}
	}
	return models.NewSurfaceMesh(positions, triangles)
}

func tetrahedron() *models.SurfaceMesh {
	return models.NewSurfaceMesh(
		[]r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 1}},
		[][3]int{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}},
	)
}

func TestParseWeightScheme(t *testing.T) {
	s, ok := ParseWeightScheme("combinatorial")
	require.True(t, ok)
	require.Equal(t, Combinatorial, s)

	s, ok = ParseWeightScheme("")
	require.True(t, ok)
	require.Equal(t, Cotangent, s)

	_, ok = ParseWeightScheme("mean-value")
	require.False(t, ok)
}

func TestCotangentWeights(t *testing.T) {
	fi := New()
	require.NoError(t, fi.Init(gridMesh(1, 1), Cotangent))

	// the diagonal faces two right angles
	require.Equal(t, minCotWeight, fi.EdgeWeight(0, 3))
	// each side faces one 45 degree corner
	require.InDelta(t, 0.5, fi.EdgeWeight(0, 1), 1e-12)
	require.InDelta(t, 0.5, fi.EdgeWeight(1, 0), 1e-12)
	require.InDelta(t, 0.5, fi.EdgeWeight(2, 3), 1e-12)
	// no edge between 1 and 2
	require.Zero(t, fi.EdgeWeight(1, 2))
}

func TestCombinatorialWeights(t *testing.T) {
	fi := New()
	require.NoError(t, fi.Init(tetrahedron(), Combinatorial))
	for a := 0; a < 4; a++ {
		for b := 0; b < 4; b++ {
			if a != b {
				require.Equal(t, 1.0, fi.EdgeWeight(a, b))
			}
		}
	}
}

func TestSolveWithoutConstraints(t *testing.T) {
	fi := New()
	require.NoError(t, fi.Init(tetrahedron(), Cotangent))

	x, err := fi.Solve()
	require.NoError(t, err)
	require.Equal(t, []float64{0, 0, 0, 0}, x)
}

func TestSingleConstraintSpreads(t *testing.T) {
	for _, solver := range []Solver{SolverCholesky, SolverCG} {
		t.Run(solver.String(), func(t *testing.T) {
			fi := New()
			fi.SetSolver(solver)
			require.NoError(t, fi.Init(gridMesh(4, 3), Cotangent))
			require.NoError(t, fi.AddConstraint(7, 1e8, 2.5))

			x, err := fi.Solve()
			require.NoError(t, err)
			for i, v := range x {
				require.InDelta(t, 2.5, v, 1e-6, "vertex %d", i)
			}
		})
	}
}

func TestConstraintsAccumulate(t *testing.T) {
	fi := New()
	require.NoError(t, fi.Init(tetrahedron(), Combinatorial))
	require.NoError(t, fi.AddConstraint(2, 1, 1))
	require.NoError(t, fi.AddConstraint(2, 3, 5))
	require.NoError(t, fi.AddConstraint(2, 0, 100))
	require.Equal(t, 2, fi.NumConstraints())

	x, err := fi.Solve()
	require.NoError(t, err)
	for _, v := range x {
		require.InDelta(t, 4.0, v, 1e-6)
	}
}

func TestAddConstraintErrors(t *testing.T) {
	fi := New()
	require.NoError(t, fi.Init(tetrahedron(), Cotangent))

	err := fi.AddConstraint(4, 1, 1)
	require.Error(t, err)
	require.True(t, errors.IsType(err, models.ErrTypeOutOfBounds))

	err = fi.AddConstraint(-1, 1, 1)
	require.True(t, errors.IsType(err, models.ErrTypeOutOfBounds))

	err = fi.AddConstraint(0, -1, 1)
	require.True(t, errors.IsType(err, models.ErrTypeInvalidConfig))
	require.Zero(t, fi.NumConstraints())
}

func TestMaximumPrinciple(t *testing.T) {
	mesh := gridMesh(6, 4)
	fi := New()
	require.NoError(t, fi.Init(mesh, Cotangent))
	for j := 0; j <= 4; j++ {
		require.NoError(t, fi.AddConstraint(j*7, 1e8, 0))
		require.NoError(t, fi.AddConstraint(j*7+6, 1e8, 1))
	}

	x, err := fi.Solve()
	require.NoError(t, err)
	for i, v := range x {
		require.GreaterOrEqual(t, v, -1e-6, "vertex %d", i)
		require.LessOrEqual(t, v, 1+1e-6, "vertex %d", i)
	}

	// values grow from the left column to the right one
	for j := 0; j <= 4; j++ {
		for i := 1; i <= 6; i++ {
			require.GreaterOrEqual(t, x[j*7+i], x[j*7+i-1]-1e-6)
		}
	}
}

func TestSolversAgree(t *testing.T) {
	mesh := gridMesh(8, 5)
	values := []float64{0.3, -1.2, 2.7, 0.9}
	vertices := []int{0, 13, 30, 53}

	solve := func(solver Solver) []float64 {
		fi := New()
		fi.SetSolver(solver)
		fi.SetTolerance(1e-14, 0)
		require.NoError(t, fi.Init(mesh, Cotangent))
		for i, v := range vertices {
			require.NoError(t, fi.AddConstraint(v, 10, values[i]))
		}
		x, err := fi.Solve()
		require.NoError(t, err)
		return x
	}

	dense := solve(SolverCholesky)
	sparse := solve(SolverCG)
	require.Len(t, sparse, len(dense))
	for i := range dense {
		require.InDelta(t, dense[i], sparse[i], 1e-6, "vertex %d", i)
	}
}

func TestSolutionMinimizesEnergy(t *testing.T) {
	fi := New()
	require.NoError(t, fi.Init(gridMesh(3, 3), Cotangent))
	require.NoError(t, fi.AddConstraint(0, 2, 1))
	require.NoError(t, fi.AddConstraint(15, 2, -1))
	require.NoError(t, fi.AddConstraint(5, 0.5, 3))

	x, err := fi.Solve()
	require.NoError(t, err)
	e := fi.Energy(x)

	for i := range x {
		for _, d := range []float64{-0.01, 0.01} {
			y := append([]float64(nil), x...)
			y[i] += d
			require.Greater(t, fi.Energy(y), e-1e-9)
		}
	}
}

func TestIsolatedVertexIsSingular(t *testing.T) {
	mesh := tetrahedron()
	mesh.Vertices = append(mesh.Vertices, models.Vertex{Pos: r3.Vec{X: 5}})

	fi := New()
	require.NoError(t, fi.Init(mesh, Cotangent))
	require.NoError(t, fi.AddConstraint(0, 1, 1))

	_, err := fi.Solve()
	require.Error(t, err)
	require.True(t, errors.IsType(err, models.ErrTypeSingularSystem))

	// a constraint on the isolated vertex makes the system solvable
	require.NoError(t, fi.AddConstraint(4, 1, 7))
	x, err := fi.Solve()
	require.NoError(t, err)
	require.InDelta(t, 7, x[4], 1e-6)
	require.InDelta(t, 1, x[2], 1e-6)
}

func TestIsolatedVertexWithoutConstraints(t *testing.T) {
	mesh := tetrahedron()
	mesh.Vertices = append(mesh.Vertices, models.Vertex{Pos: r3.Vec{X: 5}})

	fi := New()
	require.NoError(t, fi.Init(mesh, Cotangent))

	_, err := fi.Solve()
	require.Error(t, err)
	require.True(t, errors.IsType(err, models.ErrTypeSingularSystem))
	require.False(t, fi.LastSolve().Converged)
}

func TestLastSolve(t *testing.T) {
	fi := New()
	require.NoError(t, fi.Init(gridMesh(4, 3), Cotangent))
	require.NoError(t, fi.AddConstraint(0, 1, 1))

	_, err := fi.Solve()
	require.NoError(t, err)
	require.Equal(t, SolveInfo{Solver: SolverCholesky, Converged: true}, fi.LastSolve())

	fi.SetSolver(SolverCG)
	_, err = fi.Solve()
	require.NoError(t, err)
	info := fi.LastSolve()
	require.Equal(t, SolverCG, info.Solver)
	require.True(t, info.Converged)
	require.Positive(t, info.Iterations)
}

func TestIterationCap(t *testing.T) {
	fi := New()
	fi.SetSolver(SolverCG)
	fi.SetTolerance(1e-14, 1)
	require.NoError(t, fi.Init(gridMesh(6, 4), Cotangent))
	for j := 0; j <= 4; j++ {
		require.NoError(t, fi.AddConstraint(j*7, 1e8, 0))
		require.NoError(t, fi.AddConstraint(j*7+6, 1e8, 1))
	}

	x, err := fi.Solve()
	require.NoError(t, err)
	require.Len(t, x, 35)
	require.Equal(t, SolveInfo{Solver: SolverCG, Iterations: 1}, fi.LastSolve())
}

func TestInitRejectsBrokenFaces(t *testing.T) {
	mesh := models.NewSurfaceMesh([]r3.Vec{{}, {X: 1}}, [][3]int{{0, 1, 2}})
	fi := New()
	err := fi.Init(mesh, Cotangent)
	require.Error(t, err)
	require.True(t, errors.IsType(err, models.ErrTypeOutOfBounds))
}
