// Package interpolation refines scalar grids by ordinary kriging.
//
// Coarse .pp grids give faceted isosurfaces. Refine resamples a field onto a
// grid that is an integer factor finer along every axis, estimating each new
// sample from its nearest coarse neighbors. The field is treated as periodic
// over the cell, so samples near a face draw on neighbors across it.
package interpolation

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"

	"ppview/internal/models"
)

// ErrInvalidFactor is returned for refinement factors below one
var ErrInvalidFactor = errors.New("refinement factor must be at least 1")

// Variogram models supported by the implementation
type VariogramModel int

const (
	Spherical VariogramModel = iota
	Exponential
	Gaussian
)

// String returns the model name
func (m VariogramModel) String() string {
	switch m {
	case Spherical:
		return "spherical"
	case Exponential:
		return "exponential"
	case Gaussian:
		return "gaussian"
	}
	return fmt.Sprintf("VariogramModel(%d)", int(m))
}

// KrigingParams holds the parameters for kriging interpolation
type KrigingParams struct {
	// Range is the correlation length in grid spacings of the coarse grid
	Range float64

	// Sill and Nugget shape the variogram; with zero nugget the estimate
	// honors every coarse sample exactly
	Sill   float64
	Nugget float64

	Model VariogramModel

	// Neighbors is how many coarse samples enter each estimate
	Neighbors int

	// Workers bounds the goroutines used; zero means one per CPU
	Workers int
}

// DefaultParams returns an exponential variogram over eight neighbors
func DefaultParams() KrigingParams {
	return KrigingParams{
		Range:     2,
		Sill:      1,
		Nugget:    0,
		Model:     Exponential,
		Neighbors: 8,
	}
}

// Point3D is a coarse sample position in bohr with its value
type Point3D struct {
	X, Y, Z float64
	Value   float64
}

// Compare implements the kdtree.Comparable interface
func (p Point3D) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(Point3D)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p Point3D) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p Point3D) Distance(c kdtree.Comparable) float64 {
	q := c.(Point3D)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// Points3D is a collection of Point3D that satisfies kdtree.Interface
type Points3D []Point3D

func (p Points3D) Index(i int) kdtree.Comparable         { return p[i] }
func (p Points3D) Len() int                              { return len(p) }
func (p Points3D) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p Points3D) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{Points3D: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{Points3D: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for Points3D
type pointPlane struct {
	Points3D
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.Points3D[i].X < p.Points3D[j].X
	case 1:
		return p.Points3D[i].Y < p.Points3D[j].Y
	case 2:
		return p.Points3D[i].Z < p.Points3D[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{Points3D: p.Points3D[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.Points3D[i], p.Points3D[j] = p.Points3D[j], p.Points3D[i]
}

// Kriging estimates field values anywhere in the cell from the coarse samples
type Kriging struct {
	grid    *models.ScalarGrid
	params  KrigingParams
	spacing [3]float64
	scale   float64 // bohr per coarse spacing, for the variogram range
	tree    *kdtree.Tree
}

// NewKriging indexes the samples of grid, plus a one-sample periodic shell
// around the cell so neighbor searches wrap across faces
func NewKriging(grid *models.ScalarGrid, params KrigingParams) (*Kriging, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if params.Neighbors < 1 {
		params.Neighbors = DefaultParams().Neighbors
	}
	if params.Range <= 0 {
		params.Range = DefaultParams().Range
	}

	sp := grid.Spacing()
	k := &Kriging{
		grid:    grid,
		params:  params,
		spacing: [3]float64{sp.X, sp.Y, sp.Z},
		scale:   math.Max(sp.X, math.Max(sp.Y, sp.Z)),
	}

	nx, ny, nz := grid.Shape[0], grid.Shape[1], grid.Shape[2]
	points := make(Points3D, 0, (nx+2)*(ny+2)*(nz+2))
	for kk := -1; kk <= nz; kk++ {
		for j := -1; j <= ny; j++ {
			for i := -1; i <= nx; i++ {
				points = append(points, Point3D{
					X:     float64(i) * sp.X,
					Y:     float64(j) * sp.Y,
					Z:     float64(kk) * sp.Z,
					Value: grid.At(wrap(i, nx), wrap(j, ny), wrap(kk, nz)),
				})
			}
		}
	}
	k.tree = kdtree.New(points, false)
	return k, nil
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}

// variogram calculates the semivariance between two points at distance h
// (in bohr)
func (k *Kriging) variogram(h float64) float64 {
	if h == 0 {
		return 0
	}
	p := k.params
	r := p.Range * k.scale

	gamma := p.Nugget
	switch p.Model {
	case Spherical:
		if h < r {
			x := h / r
			gamma += p.Sill * (1.5*x - 0.5*x*x*x)
		} else {
			gamma += p.Sill
		}
	case Exponential:
		gamma += p.Sill * (1 - math.Exp(-3*h/r))
	case Gaussian:
		gamma += p.Sill * (1 - math.Exp(-3*h*h/(r*r)))
	}
	return gamma
}

// EstimateAt returns the ordinary kriging estimate at q
func (k *Kriging) EstimateAt(q Point3D) float64 {
	keeper := kdtree.NewNKeeper(k.params.Neighbors)
	k.tree.NearestSet(keeper, q)

	neighbors := make([]Point3D, 0, k.params.Neighbors)
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		p := cd.Comparable.(Point3D)
		// Coincident sample: exact when there is no nugget
		if cd.Dist == 0 && k.params.Nugget == 0 {
			return p.Value
		}
		neighbors = append(neighbors, p)
	}
	if len(neighbors) == 0 {
		return math.NaN()
	}

	weights, err := k.weights(q, neighbors)
	if err != nil {
		return inverseDistance(q, neighbors)
	}
	est := 0.0
	for i, p := range neighbors {
		est += weights[i] * p.Value
	}
	return est
}

// weights solves the ordinary kriging system, with a Lagrange row forcing
// the weights to sum to one
func (k *Kriging) weights(q Point3D, neighbors []Point3D) ([]float64, error) {
	n := len(neighbors)
	a := mat.NewDense(n+1, n+1, nil)
	b := mat.NewVecDense(n+1, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			g := k.variogram(math.Sqrt(neighbors[i].Distance(neighbors[j])))
			a.Set(i, j, g)
			a.Set(j, i, g)
		}
		a.Set(i, n, 1)
		a.Set(n, i, 1)
		b.SetVec(i, k.variogram(math.Sqrt(neighbors[i].Distance(q))))
	}
	b.SetVec(n, 1)

	var x mat.VecDense
	var qr mat.QR
	qr.Factorize(a)
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		// Regularize the diagonal and retry once
		for i := 0; i < n; i++ {
			a.Set(i, i, a.At(i, i)+1e-6)
		}
		qr.Factorize(a)
		if err := qr.SolveVecTo(&x, false, b); err != nil {
			return nil, err
		}
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = x.AtVec(i)
		if math.IsNaN(w[i]) || math.IsInf(w[i], 0) {
			return nil, fmt.Errorf("non-finite kriging weight")
		}
	}
	return w, nil
}

// inverseDistance is the fallback estimate when the kriging system is singular
func inverseDistance(q Point3D, neighbors []Point3D) float64 {
	var num, den float64
	for _, p := range neighbors {
		w := 1 / q.Distance(p)
		num += w * p.Value
		den += w
	}
	return num / den
}

// Refine returns grid resampled factor times finer along every axis over the
// same cell. Coarse samples land on fine samples factor apart and keep their
// values; everything in between is kriged. Factor 1 returns a copy.
func Refine(grid *models.ScalarGrid, factor int, params KrigingParams) (*models.ScalarGrid, error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFactor, factor)
	}
	k, err := NewKriging(grid, params)
	if err != nil {
		return nil, err
	}

	shape := [3]int{grid.Shape[0] * factor, grid.Shape[1] * factor, grid.Shape[2] * factor}
	fine := models.NewScalarGrid(grid.Lattice, shape)
	if factor == 1 {
		copy(fine.Data, grid.Data)
		return fine, nil
	}

	h := [3]float64{k.spacing[0] / float64(factor), k.spacing[1] / float64(factor), k.spacing[2] / float64(factor)}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > shape[2] {
		workers = shape[2]
	}

	// Planes are handed out one at a time; each sample is written once
	planes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for z := range planes {
				for y := 0; y < shape[1]; y++ {
					for x := 0; x < shape[0]; x++ {
						q := Point3D{X: float64(x) * h[0], Y: float64(y) * h[1], Z: float64(z) * h[2]}
						if x%factor == 0 && y%factor == 0 && z%factor == 0 {
							fine.Set(x, y, z, grid.At(x/factor, y/factor, z/factor))
							continue
						}
						fine.Set(x, y, z, k.EstimateAt(q))
					}
				}
			}
		}()
	}
	for z := 0; z < shape[2]; z++ {
		planes <- z
	}
	close(planes)
	wg.Wait()

	return fine, nil
}
