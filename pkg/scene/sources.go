package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SphereSource tessellates a UV sphere
type SphereSource struct {
	Center r3.Vec
	Radius float64

	// ThetaResolution is the number of longitude segments, at least 3
	ThetaResolution int

	// PhiResolution is the number of latitude segments, at least 2
	PhiResolution int

	cache *PolyData
}

// NewSphereSource creates a sphere with the toolkit's default resolution of 8x8
func NewSphereSource(center r3.Vec, radius float64) *SphereSource {
	return &SphereSource{
		Center:          center,
		Radius:          radius,
		ThetaResolution: 8,
		PhiResolution:   8,
	}
}

// Output returns the tessellated sphere. The mesh is built once.
func (s *SphereSource) Output() *PolyData {
	if s.cache != nil {
		return s.cache
	}

	nTheta := max(s.ThetaResolution, 3)
	nPhi := max(s.PhiResolution, 2)
	pd := &PolyData{}

	// Poles first, then nPhi-1 rings of nTheta points
	pd.Points = append(pd.Points,
		r3.Add(s.Center, r3.Vec{Z: s.Radius}),
		r3.Add(s.Center, r3.Vec{Z: -s.Radius}),
	)
	for i := 1; i < nPhi; i++ {
		phi := math.Pi * float64(i) / float64(nPhi)
		for j := 0; j < nTheta; j++ {
			theta := 2 * math.Pi * float64(j) / float64(nTheta)
			pd.Points = append(pd.Points, r3.Add(s.Center, r3.Vec{
				X: s.Radius * math.Sin(phi) * math.Cos(theta),
				Y: s.Radius * math.Sin(phi) * math.Sin(theta),
				Z: s.Radius * math.Cos(phi),
			}))
		}
	}

	ring := func(i, j int) int { return 2 + (i-1)*nTheta + j%nTheta }
	for j := 0; j < nTheta; j++ {
		pd.Triangles = append(pd.Triangles, [3]int{0, ring(1, j), ring(1, j+1)})
		pd.Triangles = append(pd.Triangles, [3]int{1, ring(nPhi-1, j+1), ring(nPhi-1, j)})
	}
	for i := 1; i < nPhi-1; i++ {
		for j := 0; j < nTheta; j++ {
			a, b := ring(i, j), ring(i, j+1)
			c, d := ring(i+1, j), ring(i+1, j+1)
			pd.Triangles = append(pd.Triangles, [3]int{a, c, d}, [3]int{a, d, b})
		}
	}
	pd.Normals = faceNormals(pd, s.Center)

	s.cache = pd
	return pd
}

// CubeSource is an axis-aligned box
type CubeSource struct {
	Bounds r3.Box

	cache *PolyData
}

// NewCubeSource creates a box spanning bounds
func NewCubeSource(bounds r3.Box) *CubeSource {
	return &CubeSource{Bounds: bounds}
}

// Output returns the 12 faces and 12 edges of the box
func (c *CubeSource) Output() *PolyData {
	if c.cache != nil {
		return c.cache
	}

	lo, hi := c.Bounds.Min, c.Bounds.Max
	pd := &PolyData{}
	for i := 0; i < 8; i++ {
		p := lo
		if i&1 != 0 {
			p.X = hi.X
		}
		if i&2 != 0 {
			p.Y = hi.Y
		}
		if i&4 != 0 {
			p.Z = hi.Z
		}
		pd.Points = append(pd.Points, p)
	}

	quads := [6][4]int{
		{0, 2, 3, 1}, // z = lo
		{4, 5, 7, 6}, // z = hi
		{0, 1, 5, 4}, // y = lo
		{2, 6, 7, 3}, // y = hi
		{0, 4, 6, 2}, // x = lo
		{1, 3, 7, 5}, // x = hi
	}
	for _, q := range quads {
		pd.Triangles = append(pd.Triangles, [3]int{q[0], q[1], q[2]}, [3]int{q[0], q[2], q[3]})
	}
	pd.Lines = [][2]int{
		{0, 1}, {2, 3}, {4, 5}, {6, 7},
		{0, 2}, {1, 3}, {4, 6}, {5, 7},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	}
	pd.Normals = faceNormals(pd, r3.Scale(0.5, r3.Add(lo, hi)))

	c.cache = pd
	return pd
}

// faceNormals computes unit triangle normals pointing away from center
func faceNormals(pd *PolyData, center r3.Vec) []r3.Vec {
	normals := make([]r3.Vec, len(pd.Triangles))
	for i, t := range pd.Triangles {
		a, b, c := pd.Points[t[0]], pd.Points[t[1]], pd.Points[t[2]]
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if r3.Norm(n) == 0 {
			continue
		}
		n = r3.Unit(n)
		if r3.Dot(n, r3.Sub(a, center)) < 0 {
			n = r3.Scale(-1, n)
		}
		normals[i] = n
	}
	return normals
}
