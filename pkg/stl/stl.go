package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"shrinkwrap/internal/models"
)

// Triangle is a single facet of an STL file.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// FromMesh converts a surface mesh into STL facets.
func FromMesh(m *models.SurfaceMesh) []Triangle {
	if m.Empty() {
		return nil
	}
	triangles := make([]Triangle, len(m.Faces))
	for i := range m.Faces {
		t := m.Triangle(i)
		triangles[i] = NewTriangle(t[0], t[1], t[2])
	}
	return triangles
}

// Write encodes the triangles in binary STL format.
func Write(w io.Writer, triangles []Triangle) error {
	var header [80]byte
	copy(header[:], "shrinkwrap surface")
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	var facet struct {
		Triangle
		Attribute uint16
	}
	for _, t := range triangles {
		facet.Triangle = t
		if err := binary.Write(w, binary.LittleEndian, &facet); err != nil {
			return err
		}
	}
	return nil
}

// SaveToSTL writes the triangles to a binary STL file.
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if err := Write(w, triangles); err != nil {
		return fmt.Errorf("failed to write STL data: %w", err)
	}
	return w.Flush()
}
