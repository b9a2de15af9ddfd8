package visualization

import (
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"shrinkwrap/internal/models"
)

// RenderMode selects which quality the surface colours show.
type RenderMode int

const (
	// RenderFlat leaves every element white.
	RenderFlat RenderMode = iota
	// RenderVertexQuality colours vertices by the interpolated field.
	RenderVertexQuality
	// RenderFaceQuality colours faces by their mean hit distance.
	RenderFaceQuality
)

// ParseRenderMode maps a configuration string to a RenderMode.
func ParseRenderMode(s string) (RenderMode, bool) {
	switch s {
	case "flat", "":
		return RenderFlat, true
	case "vertex":
		return RenderVertexQuality, true
	case "face":
		return RenderFaceQuality, true
	default:
		return RenderFlat, false
	}
}

func (m RenderMode) String() string {
	switch m {
	case RenderVertexQuality:
		return "vertex"
	case RenderFaceQuality:
		return "face"
	default:
		return "flat"
	}
}

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// QualityRange returns the lo and hi percentiles, in [0, 1], of values.
// It returns zeros for an empty slice.
func QualityRange(values []float64, lo, hi float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(clampUnit(lo), stat.Empirical, sorted, nil),
		stat.Quantile(clampUnit(hi), stat.Empirical, sorted, nil)
}

// Ramp maps v within [lo, hi] to a red, yellow, green, cyan, blue ramp.
// Values outside the range saturate.
func Ramp(v, lo, hi float64) color.RGBA {
	if hi <= lo || math.IsNaN(v) {
		return color.RGBA{R: 255, A: 255}
	}
	t := clampUnit((v - lo) / (hi - lo))

	// four segments of the ramp
	seg := t * 4
	f := seg - math.Floor(seg)
	c := func(x float64) uint8 { return uint8(math.Round(255 * x)) }
	switch {
	case seg < 1:
		return color.RGBA{R: 255, G: c(f), A: 255}
	case seg < 2:
		return color.RGBA{R: c(1 - f), G: 255, A: 255}
	case seg < 3:
		return color.RGBA{G: 255, B: c(f), A: 255}
	case seg < 4:
		return color.RGBA{G: c(1 - f), B: 255, A: 255}
	default:
		return color.RGBA{B: 255, A: 255}
	}
}

// VertexQualityRamp colours vertices by quality between the 0th and
// 100th percentile.
func VertexQualityRamp(mesh *models.SurfaceMesh) {
	if mesh == nil {
		return
	}
	lo, hi := QualityRange(mesh.VertexQualities(), 0, 1)
	for i := range mesh.Vertices {
		mesh.Vertices[i].Color = Ramp(mesh.Vertices[i].Quality, lo, hi)
	}
}

// FaceQualityRamp colours the selected faces by quality. Faces without
// hits stay white.
func FaceQualityRamp(mesh *models.SurfaceMesh) {
	if mesh == nil {
		return
	}
	var values []float64
	for _, f := range mesh.Faces {
		if f.Selected {
			values = append(values, f.Quality)
		}
	}
	lo, hi := QualityRange(values, 0, 1)
	for i := range mesh.Faces {
		if mesh.Faces[i].Selected {
			mesh.Faces[i].Color = Ramp(mesh.Faces[i].Quality, lo, hi)
		} else {
			mesh.Faces[i].Color = white
		}
	}
}

// ApplyRamps colours mesh for the given mode.
func ApplyRamps(mesh *models.SurfaceMesh, mode RenderMode) {
	if mesh == nil {
		return
	}
	switch mode {
	case RenderVertexQuality:
		VertexQualityRamp(mesh)
	case RenderFaceQuality:
		FaceQualityRamp(mesh)
	default:
		for i := range mesh.Vertices {
			mesh.Vertices[i].Color = white
		}
		for i := range mesh.Faces {
			mesh.Faces[i].Color = white
		}
	}
}

func clampUnit(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
