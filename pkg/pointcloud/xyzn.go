// Package pointcloud reads and writes oriented point clouds stored as
// ASCII lines of "x y z nx ny nz".
package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"shrinkwrap/internal/models"
)

// Read parses an oriented cloud. Empty lines and lines starting with '#'
// are skipped. A line with only a position gets a zero normal.
func Read(r io.Reader) (*models.PointCloud, error) {
	var positions, normals []r3.Vec

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 3 && len(fields) != 6 {
			return nil, errors.New("expected 3 or 6 values").
				WithType(models.ErrTypeInvalidInput).
				WithTag("line", line).
				WithTag("values", len(fields))
		}

		var v [6]float64
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.New("parsing value failed").
					WithType(models.ErrTypeInvalidInput).
					WithTag("line", line).
					WithTag("column", i+1).
					Wrap(err)
			}
			v[i] = x
		}
		positions = append(positions, r3.Vec{X: v[0], Y: v[1], Z: v[2]})
		normals = append(normals, r3.Vec{X: v[3], Y: v[4], Z: v[5]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New("reading point cloud failed").
			WithType(models.ErrTypeInvalidInput).
			Wrap(err)
	}

	return models.NewPointCloud(positions, normals), nil
}

// Load reads the cloud stored in filename.
func Load(filename string) (*models.PointCloud, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.New("opening point cloud failed").
			WithType(models.ErrTypeInvalidInput).
			WithTag("filename", filename).
			Wrap(err)
	}
	defer file.Close()

	cloud, err := Read(file)
	if err != nil {
		return nil, errors.New("loading point cloud failed").
			WithType(errors.Type(err)).
			WithTag("filename", filename).
			Wrap(err)
	}
	return cloud, nil
}

// Write stores cloud in the format Read parses.
func Write(w io.Writer, cloud *models.PointCloud) error {
	bw := bufio.NewWriter(w)
	for _, r := range cloud.Rays() {
		o, d := r.Origin, r.Dir
		if _, err := fmt.Fprintf(bw, "%g %g %g %g %g %g\n", o.X, o.Y, o.Z, d.X, d.Y, d.Z); err != nil {
			return err
		}
	}
	return bw.Flush()
}
