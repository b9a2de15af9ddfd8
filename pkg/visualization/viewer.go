// Package visualization renders the signed field and the evolving surface
// for inspection: grey level slices of the grid and quality colour ramps
// of the mesh.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"github.com/aukilabs/go-tooling/pkg/errors"

	"shrinkwrap/internal/models"
	"shrinkwrap/pkg/volume"
)

// Viewer extracts slices from a scalar grid laid out with x varying
// fastest, then y, then z.
type Viewer struct {
	// volumeData holds the grid samples
	volumeData []float64

	// dimensions of the grid
	width  int
	height int
	depth  int

	// spacing is the world distance between grid samples
	spacing float64

	// lo and hi are the values mapped to black and white
	lo float64
	hi float64
}

// NewViewer creates a viewer mapping values in [0, 1] to grey levels.
func NewViewer(volumeData []float64, width, height, depth int, spacing float64) *Viewer {
	return &Viewer{
		volumeData: volumeData,
		width:      width,
		height:     height,
		depth:      depth,
		spacing:    spacing,
		lo:         0,
		hi:         1,
	}
}

// FromVolume creates a viewer over a snapshot of the signed field of v.
// Distances of clip cells or more saturate, the surface shows as mid grey.
func FromVolume(v *volume.Volume, clip float64) *Viewer {
	if clip <= 0 {
		clip = 1
	}
	viewer := NewViewer(v.Fields(nil), v.Size(0), v.Size(1), v.Size(2), v.Delta())
	viewer.SetRange(-clip, clip)
	return viewer
}

// SetRange sets the values mapped to black and white.
func (v *Viewer) SetRange(lo, hi float64) {
	v.lo, v.hi = lo, hi
}

func (v *Viewer) gray(value float64) color.Gray16 {
	t := 0.0
	if v.hi > v.lo {
		t = (value - v.lo) / (v.hi - v.lo)
	}
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t*65535)))}
}

// ExtractSlice extracts a 2D slice from the grid along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, errors.New("position must be non-negative").
			WithType(models.ErrTypeOutOfBounds).
			WithTag("position", position)
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= v.width {
			return nil, v.outOfRange(axis, position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				idx := z*v.width*v.height + y*v.width + position
				if idx < len(v.volumeData) {
					img.SetGray16(z, y, v.gray(v.volumeData[idx]))
				}
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= v.height {
			return nil, v.outOfRange(axis, position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				idx := z*v.width*v.height + position*v.width + x
				if idx < len(v.volumeData) {
					img.SetGray16(x, z, v.gray(v.volumeData[idx]))
				}
			}
		}

	case "z", "Z":
		// XY plane
		if position >= v.depth {
			return nil, v.outOfRange(axis, position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				idx := position*v.width*v.height + y*v.width + x
				if idx < len(v.volumeData) {
					img.SetGray16(x, y, v.gray(v.volumeData[idx]))
				}
			}
		}

	default:
		return nil, invalidAxis(axis)
	}

	return img, nil
}

// ExtractRegion extracts a 3D subregion of the grid
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) ([]float64, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, errors.New("start coordinates must be non-negative").
			WithType(models.ErrTypeOutOfBounds)
	}

	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, errors.New("size dimensions must be positive").
			WithType(models.ErrTypeInvalidInput)
	}

	if startX+sizeX > v.width || startY+sizeY > v.height || startZ+sizeZ > v.depth {
		return nil, errors.New("region extends beyond volume boundaries").
			WithType(models.ErrTypeOutOfBounds)
	}

	region := make([]float64, sizeX*sizeY*sizeZ)
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				srcIdx := (startZ+z)*v.width*v.height + (startY+y)*v.width + (startX + x)
				dstIdx := z*sizeX*sizeY + y*sizeX + x
				if srcIdx < len(v.volumeData) {
					region[dstIdx] = v.volumeData[srcIdx]
				}
			}
		}
	}

	return region, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.New("creating slice file failed").
			WithTag("filename", filename).
			Wrap(err)
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return invalidAxis(axis)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.New("creating slice directory failed").
			WithTag("dir", outputDir).
			Wrap(err)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

func (v *Viewer) outOfRange(axis string, position, size int) error {
	return errors.New("slice position exceeds the grid").
		WithType(models.ErrTypeOutOfBounds).
		WithTag("axis", axis).
		WithTag("position", position).
		WithTag("size", size)
}

func invalidAxis(axis string) error {
	return errors.New("invalid axis, must be x, y or z").
		WithType(models.ErrTypeInvalidInput).
		WithTag("axis", axis)
}
