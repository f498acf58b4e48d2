// Package sitemodel loads the building model mesh and hit-tests rays against
// it. The mesh is a plain triangle soup; calibration model points and
// annotation placement both resolve through Raycast.
package sitemodel

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/pkg/spatial"
)

const rayEpsilon = 1e-9

// Triangle is one mesh face.
type Triangle struct {
	A, B, C r3.Vector
}

// Mesh is a hit-test surface over a set of triangles.
type Mesh struct {
	triangles []Triangle
}

// NewMesh builds a mesh from the given triangles.
func NewMesh(triangles []Triangle) *Mesh {
	return &Mesh{triangles: triangles}
}

// GroundPlane returns a square horizontal surface at y=0 spanning
// [-extent, extent] on both axes. Used when no site model is configured so
// calibration and annotation taps still resolve against something.
func GroundPlane(extent float64) *Mesh {
	a := r3.Vector{X: -extent, Y: 0, Z: -extent}
	b := r3.Vector{X: extent, Y: 0, Z: -extent}
	c := r3.Vector{X: extent, Y: 0, Z: extent}
	d := r3.Vector{X: -extent, Y: 0, Z: extent}
	return NewMesh([]Triangle{{A: a, B: b, C: c}, {A: a, B: c, C: d}})
}

// Len returns the triangle count.
func (m *Mesh) Len() int {
	return len(m.triangles)
}

// Raycast returns the nearest intersection along the ray, if any.
func (m *Mesh) Raycast(ray spatial.Ray) (r3.Vector, bool) {
	dirLen := ray.Direction.Norm()
	if dirLen < rayEpsilon {
		return r3.Vector{}, false
	}
	dir := ray.Direction.Mul(1 / dirLen)

	best := math.Inf(1)
	for _, tri := range m.triangles {
		if t, ok := intersect(ray.Origin, dir, tri); ok && t < best {
			best = t
		}
	}
	if math.IsInf(best, 1) {
		return r3.Vector{}, false
	}
	return ray.Origin.Add(dir.Mul(best)), true
}

// intersect is the Moller-Trumbore ray/triangle test. Both faces count as
// hits so winding order in the model file does not matter.
func intersect(origin, dir r3.Vector, tri Triangle) (float64, bool) {
	e1 := tri.B.Sub(tri.A)
	e2 := tri.C.Sub(tri.A)

	p := dir.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < rayEpsilon {
		return 0, false
	}
	inv := 1 / det

	s := origin.Sub(tri.A)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}

	q := s.Cross(e1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}

	t := e2.Dot(q) * inv
	if t < rayEpsilon {
		return 0, false
	}
	return t, true
}

// LoadOBJ reads a Wavefront OBJ file, keeping vertex and face data only.
// Faces with more than three vertices are fan-triangulated. Face entries may
// carry texture/normal indices (v/t/n); negative indices count from the end
// of the vertex list.
func LoadOBJ(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	var vertices []r3.Vector
	var triangles []Triangle

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 coordinates", lineNum)
			}
			var coords [3]float64
			for i := 0; i < 3; i++ {
				coords[i], err = strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad vertex coordinate: %w", lineNum, err)
				}
			}
			vertices = append(vertices, r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]})

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNum)
			}
			corners := make([]r3.Vector, 0, len(fields)-1)
			for _, entry := range fields[1:] {
				idx, err := faceIndex(entry, len(vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNum, err)
				}
				corners = append(corners, vertices[idx])
			}
			for i := 1; i+1 < len(corners); i++ {
				triangles = append(triangles, Triangle{A: corners[0], B: corners[i], C: corners[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	if len(triangles) == 0 {
		return nil, fmt.Errorf("model file %s contains no faces", path)
	}

	return NewMesh(triangles), nil
}

// faceIndex resolves one face entry ("7", "7/2", "7//3", "-1") to a
// zero-based vertex index.
func faceIndex(entry string, vertexCount int) (int, error) {
	if i := strings.IndexByte(entry, '/'); i >= 0 {
		entry = entry[:i]
	}
	idx, err := strconv.Atoi(entry)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q: %w", entry, err)
	}
	if idx < 0 {
		idx = vertexCount + idx
	} else {
		idx--
	}
	if idx < 0 || idx >= vertexCount {
		return 0, fmt.Errorf("face index %q out of range", entry)
	}
	return idx, nil
}
