// Package reconstruction shrink-wraps an oriented point cloud: a surface
// extracted from a signed field is pulled towards the cloud along the
// cloud normals until it settles on it.
//
// Every step follows the same sequence:
// 1. Intersect each face with the rays hashed near its centroid
// 2. Turn every hit into barycentric weighted vertex constraints
// 3. Spread the hit distances over the surface with a harmonic solve
// 4. Collect the narrow band of voxels around the surface
// 5. Sample the spread distances at every band voxel
// 6. Raise the field of the band voxels, most where the pull is strongest
// 7. Clear the band bookkeeping
// 8. Extract the new surface
package reconstruction

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"

	"shrinkwrap/internal/models"
	"shrinkwrap/pkg/geometry"
	"shrinkwrap/pkg/interpolation"
	"shrinkwrap/pkg/rayindex"
	"shrinkwrap/pkg/visualization"
	"shrinkwrap/pkg/volume"
)

// Params holds the evolution parameters.
type Params struct {
	// SeedOffset enlarges the cloud bounding box, in cells, to build the
	// initial surface.
	SeedOffset float64

	// StepSize is the largest field increment of a step, in cells.
	StepSize float64

	// FalloffScale widens the term keeping updates close to the largest
	// pull of the step.
	FalloffScale float64

	// SlowdownScale widens the term damping voxels whose pull is close to
	// zero.
	SlowdownScale float64

	// BandRadius is the half width of the narrow band, in cells.
	BandRadius float64

	// Omega scales the constraint weights of ray hits.
	Omega float64

	// AverageHits feeds one constraint set per hit face, built from the
	// mean hit, instead of one set per hit.
	AverageHits bool

	// WeightScheme selects the edge weights of the harmonic solve.
	WeightScheme interpolation.WeightScheme

	// Solver selects the linear solver of the harmonic solve.
	Solver interpolation.Solver

	// Traversal selects how rays are hashed into cells.
	Traversal rayindex.Traversal

	// ConvergenceTol stops Run once the largest field increment of a step
	// is at most this value.
	ConvergenceTol float64

	// NumCores specifies how many goroutines share the per-face and
	// per-voxel phases.
	NumCores int

	// RenderMode selects the colours of the annotated surface.
	RenderMode visualization.RenderMode
}

// DefaultParams returns the parameters the reconstruction is tuned for.
func DefaultParams() Params {
	return Params{
		SeedOffset:    0.5,
		StepSize:      0.25,
		FalloffScale:  3,
		SlowdownScale: 1,
		BandRadius:    2,
		Omega:         1e8,
		WeightScheme:  interpolation.Cotangent,
		Solver:        interpolation.SolverAuto,
		Traversal:     rayindex.March,
		NumCores:      runtime.NumCPU(),
		RenderMode:    visualization.RenderVertexQuality,
	}
}

// Validate reports parameters that cannot drive an evolution.
func (p Params) Validate() error {
	check := func(name string, v float64, ok bool) error {
		if ok && !math.IsNaN(v) {
			return nil
		}
		return errors.New("invalid evolution parameter").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("param", name).
			WithTag("value", v)
	}
	for _, err := range []error{
		check("seed_offset", p.SeedOffset, p.SeedOffset >= 0),
		check("step_size", p.StepSize, p.StepSize > 0),
		check("falloff_scale", p.FalloffScale, p.FalloffScale > 0),
		check("slowdown_scale", p.SlowdownScale, p.SlowdownScale > 0),
		check("band_radius", p.BandRadius, p.BandRadius >= 0),
		check("omega", p.Omega, p.Omega > 0),
		check("convergence_tol", p.ConvergenceTol, p.ConvergenceTol >= 0),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats describes the last step.
type Stats struct {
	Iteration    int      `json:"iteration"`
	Vertices     int      `json:"vertices"`
	Faces        int      `json:"faces"`
	HitFaces     int      `json:"hit_faces"`
	Hits         int      `json:"hits"`
	Constraints  int      `json:"constraints"`
	BandSize     int      `json:"band_size"`
	MinUpdate    float64  `json:"min_update"`
	MaxUpdate    float64  `json:"max_update"`
	MaxIncrement float64  `json:"max_increment"`
	Solver       string   `json:"solver"`
	SolveSeconds float64  `json:"solve_seconds"`
	Residual     Residual `json:"residual"`
}

// Evolver owns the field, the ray index and the current surface of one
// reconstruction.
type Evolver struct {
	params    Params
	sessionID string

	cloud   *models.PointCloud
	vol     *volume.Volume
	index   *rayindex.Index
	surface *models.SurfaceMesh

	// annotated is the surface the last step worked on, with its face
	// and vertex qualities
	annotated *models.SurfaceMesh

	interp *interpolation.FieldInterpolator
	band   []volume.Coord

	iterations int
	stats      Stats
	history    []Stats
}

// NewEvolver creates an uninitialized evolver.
func NewEvolver(params Params) *Evolver {
	if params.NumCores < 1 {
		params.NumCores = 1
	}
	interp := interpolation.New()
	interp.SetSolver(params.Solver)
	return &Evolver{
		params: params,
		interp: interp,
	}
}

// Init builds the grid around cloud, hashes its rays, seeds the field with
// the enlarged bounding box and extracts the first surface. It resets the
// iteration counter.
func (e *Evolver) Init(gridResolution, padding int, cloud *models.PointCloud) error {
	if err := e.params.Validate(); err != nil {
		return err
	}
	if cloud == nil || cloud.Len() == 0 {
		return errors.New("empty point cloud").
			WithType(models.ErrTypeInvalidConfig)
	}

	vol := &volume.Volume{}
	if err := vol.Init(gridResolution, padding, cloud.BBox()); err != nil {
		return err
	}

	seed, err := volume.SeedBox(cloud.BBox().Offset(e.params.SeedOffset * vol.Delta()))
	if err != nil {
		return err
	}
	if err := vol.InitField(seed); err != nil {
		return err
	}

	e.sessionID = uuid.NewString()
	e.cloud = cloud
	e.vol = vol
	e.index = rayindex.New(vol.Geometry, cloud, e.params.Traversal)
	e.surface = vol.Isosurface(0)
	e.annotated = nil
	e.band = e.band[:0]
	e.iterations = 0
	e.history = e.history[:0]
	e.stats = Stats{
		Vertices: len(e.surface.Vertices),
		Faces:    len(e.surface.Faces),
		Residual: ComputeResidual(e.surface, cloud),
	}
	surfaceVertices.Set(float64(e.stats.Vertices))

	logs.WithTag("session_id", e.sessionID).
		WithTag("points", cloud.Len()).
		WithTag("grid", [3]int{vol.Size(0), vol.Size(1), vol.Size(2)}).
		WithTag("delta", vol.Delta()).
		WithTag("ray_refs", e.index.Len()).
		WithTag("traversal", e.params.Traversal.String()).
		WithTag("vertices", e.stats.Vertices).
		Info("reconstruction initialized")
	return nil
}

// IsInit reports whether Init succeeded.
func (e *Evolver) IsInit() bool {
	return e.vol != nil
}

// Step runs one evolution iteration and replaces the current surface.
func (e *Evolver) Step() error {
	if !e.IsInit() {
		return errors.New("evolver is not initialized").
			WithType(models.ErrTypeNotInitialized)
	}
	if err := e.step(); err != nil {
		instrumentStepError(err)
		return errors.New("evolution step failed").
			WithType(errors.Type(err)).
			WithTag("session_id", e.sessionID).
			WithTag("iteration", e.iterations).
			Wrap(err)
	}
	return nil
}

func (e *Evolver) step() error {
	mesh := e.surface
	stats := Stats{
		Iteration: e.iterations + 1,
		Vertices:  len(mesh.Vertices),
		Faces:     len(mesh.Faces),
	}

	field, err := e.spreadHits(mesh, &stats)
	if err != nil {
		return err
	}

	delta := e.vol.Delta()
	e.band = e.vol.UpdateSurfaceCorrespondence(mesh, e.params.BandRadius*delta, e.band[:0])
	stats.BandSize = len(e.band)

	if len(e.band) > 0 {
		updates := e.sampleUpdates(mesh, field, &stats)
		stats.MaxIncrement = e.applyUpdates(updates, stats.MaxUpdate)
	}
	e.vol.ResetBand(e.band)

	visualization.ApplyRamps(mesh, e.params.RenderMode)
	e.annotated = mesh
	e.surface = e.vol.Isosurface(0)
	e.iterations++

	stats.Residual = ComputeResidual(e.surface, e.cloud)
	e.stats = stats
	e.history = append(e.history, stats)
	instrumentStep(stats)
	surfaceVertices.Set(float64(len(e.surface.Vertices)))

	logs.WithTag("session_id", e.sessionID).
		WithTag("iteration", stats.Iteration).
		WithTag("hits", stats.Hits).
		WithTag("band", stats.BandSize).
		WithTag("max_update", stats.MaxUpdate).
		WithTag("max_increment", stats.MaxIncrement).
		WithTag("residual", stats.Residual.Mean).
		Debug("evolution step done")
	return nil
}

// pendingConstraint is a constraint collected by a worker before it is
// handed to the interpolator.
type pendingConstraint struct {
	vertex int
	weight float64
	value  float64
}

// spreadHits intersects every face with its candidate rays and returns
// the per-vertex interpolated hit distance. Face qualities are set to the
// mean hit distance and hit faces are selected.
func (e *Evolver) spreadHits(mesh *models.SurfaceMesh, stats *Stats) ([]float64, error) {
	if err := e.interp.Init(mesh, e.params.WeightScheme); err != nil {
		return nil, err
	}
	mesh.ResetFaceQuality()
	if mesh.Empty() {
		return make([]float64, len(mesh.Vertices)), nil
	}

	hits := make([]int, len(mesh.Faces))
	buffers := make([][]pendingConstraint, e.params.NumCores)
	parallel(len(mesh.Faces), e.params.NumCores, func(worker, start, end int) {
		var buf []pendingConstraint
		for f := start; f < end; f++ {
			tri := mesh.Triangle(f)
			cell := e.vol.Pos2Off(mesh.Centroid(f))
			var mean geometry.Hit
			for _, r := range e.index.RaysAt(cell) {
				hit, ok := geometry.IntersectRayTriangle(r.Origin, r.Dir, tri)
				if !ok {
					continue
				}
				hits[f]++
				mean.T += hit.T
				mean.U += hit.U
				mean.V += hit.V
				if !e.params.AverageHits {
					buf = e.appendConstraints(buf, mesh.Faces[f], hit)
				}
			}
			if hits[f] == 0 {
				continue
			}
			n := float64(hits[f])
			mean = geometry.Hit{T: mean.T / n, U: mean.U / n, V: mean.V / n}
			mesh.Faces[f].Quality = mean.T
			mesh.Faces[f].Selected = true
			if e.params.AverageHits {
				buf = e.appendConstraints(buf, mesh.Faces[f], mean)
			}
		}
		buffers[worker] = buf
	})

	for _, buf := range buffers {
		for _, c := range buf {
			if err := e.interp.AddConstraint(c.vertex, c.weight, c.value); err != nil {
				return nil, err
			}
		}
	}
	for _, n := range hits {
		if n > 0 {
			stats.HitFaces++
			stats.Hits += n
		}
	}
	stats.Constraints = e.interp.NumConstraints()

	start := time.Now()
	field, err := e.interp.Solve()
	stats.Solver = e.interp.LastSolve().Solver.String()
	instrumentSolve(stats.Solver, start)
	stats.SolveSeconds = time.Since(start).Seconds()
	if err != nil {
		return nil, err
	}

	for i := range mesh.Vertices {
		mesh.Vertices[i].Quality = field[i]
	}
	return field, nil
}

// appendConstraints pulls the corners of face towards the hit distance,
// weighted by their barycentric share of the hit.
func (e *Evolver) appendConstraints(buf []pendingConstraint, face models.Face, hit geometry.Hit) []pendingConstraint {
	for k, w := range hit.Weights() {
		buf = append(buf, pendingConstraint{
			vertex: face.V[k],
			weight: e.params.Omega * math.Max(w, 0),
			value:  hit.T,
		})
	}
	return buf
}

// sampleUpdates interpolates field at the closest point of every band
// voxel on its face.
func (e *Evolver) sampleUpdates(mesh *models.SurfaceMesh, field []float64, stats *Stats) []float64 {
	updates := make([]float64, len(e.band))
	lo := make([]float64, e.params.NumCores)
	hi := make([]float64, e.params.NumCores)
	for w := range lo {
		lo[w], hi[w] = math.Inf(1), math.Inf(-1)
	}

	parallel(len(e.band), e.params.NumCores, func(worker, start, end int) {
		for i := start; i < end; i++ {
			c := e.band[i]
			vox, err := e.vol.Voxel(c[0], c[1], c[2])
			if err != nil || vox.Face == models.NoFace {
				continue
			}
			face := mesh.Faces[vox.Face]
			tri := mesh.Triangle(vox.Face)
			p := geometry.ClosestPoint(e.vol.Off2Pos(c), tri)
			a, b, cc, ok := geometry.Barycentric(p, tri)
			if !ok {
				a, b, cc = 1.0/3, 1.0/3, 1.0/3
			}
			u := a*field[face.V[0]] + b*field[face.V[1]] + cc*field[face.V[2]]
			updates[i] = u
			lo[worker] = math.Min(lo[worker], u)
			hi[worker] = math.Max(hi[worker], u)
		}
	})

	stats.MinUpdate, stats.MaxUpdate = math.Inf(1), math.Inf(-1)
	for w := range lo {
		stats.MinUpdate = math.Min(stats.MinUpdate, lo[w])
		stats.MaxUpdate = math.Max(stats.MaxUpdate, hi[w])
	}
	if math.IsInf(stats.MinUpdate, 0) {
		stats.MinUpdate, stats.MaxUpdate = 0, 0
	}
	return updates
}

// applyUpdates raises the field of the band voxels and returns the
// largest increment.
func (e *Evolver) applyUpdates(updates []float64, maxUpdate float64) float64 {
	sigma2 := e.vol.Delta() * e.vol.Delta()
	falloff := e.params.FalloffScale * sigma2
	slowdown := e.params.SlowdownScale * sigma2
	largest := make([]float64, e.params.NumCores)

	parallel(len(e.band), e.params.NumCores, func(worker, start, end int) {
		for i := start; i < end; i++ {
			c := e.band[i]
			vox, err := e.vol.Voxel(c[0], c[1], c[2])
			if err != nil {
				continue
			}
			u := updates[i]
			k1 := math.Exp(-(u - maxUpdate) * (u - maxUpdate) / falloff)
			k2 := 1 - math.Exp(-u*u/slowdown)
			inc := e.params.StepSize * k1 * k2
			vox.Field += inc
			largest[worker] = math.Max(largest[worker], inc)
		}
	})

	var m float64
	for _, l := range largest {
		m = math.Max(m, l)
	}
	return m
}

// Run steps until ctx is done, maxIterations steps ran, the band is empty
// or the largest increment of a step is at most the convergence
// tolerance. It returns the number of steps run.
func (e *Evolver) Run(ctx context.Context, maxIterations int) (int, error) {
	if maxIterations <= 0 {
		return 0, errors.New("iteration cap must be positive").
			WithType(models.ErrTypeInvalidConfig).
			WithTag("max_iterations", maxIterations)
	}

	for n := 0; n < maxIterations; n++ {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}

		if err := e.Step(); err != nil {
			return n, err
		}

		if e.stats.BandSize == 0 || e.stats.MaxIncrement <= e.params.ConvergenceTol {
			logs.WithTag("session_id", e.sessionID).
				WithTag("iteration", e.iterations).
				WithTag("band", e.stats.BandSize).
				WithTag("max_increment", e.stats.MaxIncrement).
				Info("evolution converged")
			return n + 1, nil
		}
	}
	return maxIterations, nil
}

// Surface returns the current surface. It is replaced, never modified, by
// the next step.
func (e *Evolver) Surface() *models.SurfaceMesh {
	return e.surface
}

// Annotated returns the surface the last step worked on, coloured for the
// render mode, or nil before the first step.
func (e *Evolver) Annotated() *models.SurfaceMesh {
	return e.annotated
}

// Volume returns the field grid.
func (e *Evolver) Volume() *volume.Volume {
	return e.vol
}

// Index returns the ray index.
func (e *Evolver) Index() *rayindex.Index {
	return e.index
}

// Iterations returns the number of steps since Init.
func (e *Evolver) Iterations() int {
	return e.iterations
}

// LastStats returns the statistics of the last step.
func (e *Evolver) LastStats() Stats {
	return e.stats
}

// History returns the statistics of every step since Init.
func (e *Evolver) History() []Stats {
	return e.history
}

// SessionID returns the identifier tagging the logs of this
// reconstruction.
func (e *Evolver) SessionID() string {
	return e.sessionID
}

// parallel splits [0, n) into one contiguous range per worker.
func parallel(n, workers int, fn func(worker, start, end int)) {
	if workers < 1 {
		workers = 1
	}
	per := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * per
		end := min(start+per, n)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(worker, start, end int) {
			defer wg.Done()
			fn(worker, start, end)
		}(w, start, end)
	}
	wg.Wait()
}
