// Package stl extracts triangle meshes from sampled scalar volumes with the
// marching cubes algorithm and writes them as binary STL.
package stl

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Triangle is a single facet of an extracted surface
type Triangle struct {
	// Normal is the unit facet normal, pointing towards lower field values
	Normal [3]float32

	// Vertex1, Vertex2, Vertex3 are counter-clockwise when seen from the
	// side the normal points to
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// cornerOffsets are the cell corners in the order the case table expects
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

// edgeCorners maps each of the 12 cell edges to the corners it joins
var edgeCorners = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// MarchingCubes extracts the isosurface of a volume at a single level.
//
// The volume is a flat buffer in which x varies fastest, then y, then z:
// sample (x, y, z) lives at x + width*(y + height*z). This is the column-major
// layout of a field indexed [x][y][z].
type MarchingCubes struct {
	// data holds the scalar samples
	data []float64

	// dimensions of the volume in samples
	width  int
	height int
	depth  int

	// isoLevel is the value the surface passes through
	isoLevel float64

	// scale is the physical size of one voxel along each axis
	scale [3]float32
}

// NewMarchingCubes creates an extractor over data with unit voxel size
func NewMarchingCubes(data []float64, width, height, depth int, isoLevel float64) *MarchingCubes {
	return &MarchingCubes{
		data:     data,
		width:    width,
		height:   height,
		depth:    depth,
		isoLevel: isoLevel,
		scale:    [3]float32{1, 1, 1},
	}
}

// SetScale sets the physical voxel size along x, y and z
func (mc *MarchingCubes) SetScale(x, y, z float32) {
	mc.scale = [3]float32{x, y, z}
}

// SetIsoLevel changes the extracted level; the next GenerateTriangles call
// uses the new value
func (mc *MarchingCubes) SetIsoLevel(level float64) {
	mc.isoLevel = level
}

// IsoLevel returns the current extraction level
func (mc *MarchingCubes) IsoLevel() float64 {
	return mc.isoLevel
}

// GenerateTriangles walks every cell of the volume and returns the surface
// facets. A volume with fewer than two samples along any axis, or a buffer
// shorter than its dimensions, yields no triangles.
func (mc *MarchingCubes) GenerateTriangles() []Triangle {
	if mc.width < 2 || mc.height < 2 || mc.depth < 2 {
		return nil
	}
	if len(mc.data) < mc.width*mc.height*mc.depth {
		return nil
	}

	var (
		triangles []Triangle
		values    [8]float64
		edgePts   [12]r3.Vec
	)

	for z := 0; z < mc.depth-1; z++ {
		for y := 0; y < mc.height-1; y++ {
			for x := 0; x < mc.width-1; x++ {
				// Classify the corners against the level
				cubeIndex := 0
				for i, off := range cornerOffsets {
					values[i] = mc.value(x+off[0], y+off[1], z+off[2])
					if values[i] < mc.isoLevel {
						cubeIndex |= 1 << uint(i)
					}
				}

				edges := triTable[cubeIndex]
				if len(edges) == 0 {
					continue
				}

				// Crossing points are computed once per cell and shared
				// between the triangles that use them
				var computed uint16
				grad := mc.cellGradient(&values)
				for t := 0; t+2 < len(edges); t += 3 {
					var pts [3]r3.Vec
					for v := 0; v < 3; v++ {
						e := edges[t+v]
						if computed&(1<<uint(e)) == 0 {
							edgePts[e] = mc.interpolate(x, y, z, int(e), &values)
							computed |= 1 << uint(e)
						}
						pts[v] = edgePts[e]
					}
					triangles = append(triangles, orientTriangle(pts, grad))
				}
			}
		}
	}

	return triangles
}

// value returns sample (x, y, z)
func (mc *MarchingCubes) value(x, y, z int) float64 {
	return mc.data[x+mc.width*(y+mc.height*z)]
}

// interpolate places the crossing on edge e of cell (x, y, z) linearly
// between its two corner values
func (mc *MarchingCubes) interpolate(x, y, z, e int, values *[8]float64) r3.Vec {
	// Always walk from the corner nearer the origin so that neighbouring
	// cells produce bit-identical points on a shared edge
	a, b := edgeCorners[e][0], edgeCorners[e][1]
	if offsetSum(a) > offsetSum(b) {
		a, b = b, a
	}
	va, vb := values[a], values[b]

	t := 0.5
	if d := vb - va; math.Abs(d) > 1e-12 {
		t = (mc.isoLevel - va) / d
	}

	oa, ob := cornerOffsets[a], cornerOffsets[b]
	p := r3.Vec{
		X: float64(x+oa[0]) + t*float64(ob[0]-oa[0]),
		Y: float64(y+oa[1]) + t*float64(ob[1]-oa[1]),
		Z: float64(z+oa[2]) + t*float64(ob[2]-oa[2]),
	}
	return r3.Vec{
		X: p.X * float64(mc.scale[0]),
		Y: p.Y * float64(mc.scale[1]),
		Z: p.Z * float64(mc.scale[2]),
	}
}

func offsetSum(corner int) int {
	off := cornerOffsets[corner]
	return off[0] + off[1] + off[2]
}

// cellGradient estimates the field gradient over one cell in physical units
func (mc *MarchingCubes) cellGradient(values *[8]float64) r3.Vec {
	var g r3.Vec
	for i, off := range cornerOffsets {
		g.X += values[i] * float64(2*off[0]-1)
		g.Y += values[i] * float64(2*off[1]-1)
		g.Z += values[i] * float64(2*off[2]-1)
	}
	return r3.Vec{
		X: g.X / (4 * float64(mc.scale[0])),
		Y: g.Y / (4 * float64(mc.scale[1])),
		Z: g.Z / (4 * float64(mc.scale[2])),
	}
}

// orientTriangle builds a facet whose normal points down the gradient,
// swapping two vertices when the table winding disagrees
func orientTriangle(pts [3]r3.Vec, grad r3.Vec) Triangle {
	n := r3.Cross(r3.Sub(pts[1], pts[0]), r3.Sub(pts[2], pts[0]))
	if r3.Dot(n, grad) > 0 {
		pts[1], pts[2] = pts[2], pts[1]
		n = r3.Scale(-1, n)
	}
	if norm := r3.Norm(n); norm > 0 {
		n = r3.Scale(1/norm, n)
	}

	return Triangle{
		Normal:  toFloat32(n),
		Vertex1: toFloat32(pts[0]),
		Vertex2: toFloat32(pts[1]),
		Vertex3: toFloat32(pts[2]),
	}
}

func toFloat32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
