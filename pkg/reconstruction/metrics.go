package reconstruction

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	solverLabel  = "solver"
)

var (
	iterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrinkwrap_iterations",
		Help: "The number of evolution steps completed.",
	})

	stepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shrinkwrap_step_errors",
		Help: "The errors that occurred during an evolution step.",
	}, []string{
		errTypeLabel,
	})

	rayHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shrinkwrap_ray_hits",
		Help: "The number of ray-face intersections fed to the interpolator.",
	})

	bandSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shrinkwrap_band_voxels",
		Help: "The number of voxels in the narrow band of the last step.",
	})

	surfaceVertices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shrinkwrap_surface_vertices",
		Help: "The number of vertices of the current surface.",
	})

	solveLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "shrinkwrap_solve_latency",
		Help: "The time to solve the interpolation system.",
	}, []string{
		solverLabel,
	})
)

func instrumentStep(stats Stats) {
	iterations.Inc()
	rayHits.Add(float64(stats.Hits))
	bandSize.Set(float64(stats.BandSize))
}

func instrumentSolve(solver string, start time.Time) {
	solveLatency.With(prometheus.Labels{
		solverLabel: solver,
	}).Observe(time.Since(start).Seconds())
}

func instrumentStepError(err error) {
	stepErrors.
		With(prometheus.Labels{
			errTypeLabel: errors.Type(err),
		}).
		Inc()
}

// WriteMetrics writes the reconstruction metrics to filename in the
// Prometheus text format.
func WriteMetrics(filename string) error {
	if err := prometheus.WriteToTextfile(filename, prometheus.DefaultGatherer); err != nil {
		return errors.New("writing metrics failed").
			WithTag("filename", filename).
			Wrap(err)
	}
	return nil
}
