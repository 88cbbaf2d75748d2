package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrGridShapeMismatch is returned when the sample buffer does not match
	// the per-axis sample counts of a grid.
	ErrGridShapeMismatch = errors.New("grid shape mismatch")

	// ErrDegenerateLattice is returned when the cell cannot enclose a volume
	ErrDegenerateLattice = errors.New("degenerate lattice")

	// ErrUnsupportedCell is returned for a valid cell whose diagonal has a
	// non-positive entry, such as fcc or bcc primitive cells. Voxel spacing
	// comes from the diagonal, so no surface can be placed in it.
	ErrUnsupportedCell = errors.New("non-positive lattice diagonal, non-orthogonal cell unsupported")
)

// Atom is a single ion read from a post-processing file
type Atom struct {
	// Label is the chemical species label, e.g. "O" or "H"
	Label string

	// Position is the Cartesian position in bohr
	Position r3.Vec
}

// ScalarGrid is a scalar field sampled on a regular grid spanning one unit cell
type ScalarGrid struct {
	// Data holds the samples in column-major (Fortran) order: the first
	// index varies fastest, matching the order of the .pp file
	Data []float64

	// Shape is the number of samples along each lattice vector
	Shape [3]int

	// Lattice holds the cell edge vectors as rows, in bohr
	Lattice *mat.Dense
}

// NewScalarGrid allocates a zeroed grid of the given shape
func NewScalarGrid(lattice *mat.Dense, shape [3]int) *ScalarGrid {
	n := shape[0] * shape[1] * shape[2]
	if n < 0 {
		n = 0
	}
	return &ScalarGrid{
		Data:    make([]float64, n),
		Shape:   shape,
		Lattice: lattice,
	}
}

// FromNested flattens values[i][j][k] in column-major order into a new grid.
// The shape is taken from the nested slice lengths; ragged input is rejected.
func FromNested(values [][][]float64, lattice *mat.Dense) (*ScalarGrid, error) {
	nx := len(values)
	if nx == 0 || len(values[0]) == 0 || len(values[0][0]) == 0 {
		return nil, fmt.Errorf("empty nested field: %w", ErrGridShapeMismatch)
	}
	ny, nz := len(values[0]), len(values[0][0])

	g := NewScalarGrid(lattice, [3]int{nx, ny, nz})
	for i := 0; i < nx; i++ {
		if len(values[i]) != ny {
			return nil, fmt.Errorf("row %d has %d planes, want %d: %w", i, len(values[i]), ny, ErrGridShapeMismatch)
		}
		for j := 0; j < ny; j++ {
			if len(values[i][j]) != nz {
				return nil, fmt.Errorf("column (%d,%d) has %d samples, want %d: %w", i, j, len(values[i][j]), nz, ErrGridShapeMismatch)
			}
			for k := 0; k < nz; k++ {
				g.Data[g.Index(i, j, k)] = values[i][j][k]
			}
		}
	}
	return g, nil
}

// Nested unflattens the column-major buffer into values[i][j][k]
func (g *ScalarGrid) Nested() [][][]float64 {
	out := make([][][]float64, g.Shape[0])
	for i := range out {
		out[i] = make([][]float64, g.Shape[1])
		for j := range out[i] {
			out[i][j] = make([]float64, g.Shape[2])
			for k := range out[i][j] {
				out[i][j][k] = g.Data[g.Index(i, j, k)]
			}
		}
	}
	return out
}

// Index returns the position of sample (i, j, k) in Data
func (g *ScalarGrid) Index(i, j, k int) int {
	return i + g.Shape[0]*(j+g.Shape[1]*k)
}

// At returns sample (i, j, k)
func (g *ScalarGrid) At(i, j, k int) float64 {
	return g.Data[g.Index(i, j, k)]
}

// Set stores v at sample (i, j, k)
func (g *ScalarGrid) Set(i, j, k int, v float64) {
	g.Data[g.Index(i, j, k)] = v
}

// Len is the number of samples the shape calls for
func (g *ScalarGrid) Len() int {
	return g.Shape[0] * g.Shape[1] * g.Shape[2]
}

// Validate checks the buffer against the shape and the lattice for a usable
// cell. It does not require the cell to be orthogonal.
func (g *ScalarGrid) Validate() error {
	for i, n := range g.Shape {
		if n <= 0 {
			return fmt.Errorf("axis %d has %d samples: %w", i, n, ErrGridShapeMismatch)
		}
	}
	if len(g.Data) != g.Len() {
		return fmt.Errorf("%d samples for shape %v: %w", len(g.Data), g.Shape, ErrGridShapeMismatch)
	}
	if g.Lattice == nil {
		return fmt.Errorf("missing lattice: %w", ErrDegenerateLattice)
	}
	if r, c := g.Lattice.Dims(); r != 3 || c != 3 {
		return fmt.Errorf("lattice is %dx%d: %w", r, c, ErrDegenerateLattice)
	}
	if mat.Det(g.Lattice) == 0 {
		return fmt.Errorf("zero cell volume: %w", ErrDegenerateLattice)
	}
	for i := 0; i < 3; i++ {
		if g.Lattice.At(i, i) <= 0 {
			return fmt.Errorf("lattice[%d][%d] = %g: %w", i, i, g.Lattice.At(i, i), ErrUnsupportedCell)
		}
	}
	return nil
}

// Diagonal returns the diagonal of the lattice
func (g *ScalarGrid) Diagonal() r3.Vec {
	return r3.Vec{X: g.Lattice.At(0, 0), Y: g.Lattice.At(1, 1), Z: g.Lattice.At(2, 2)}
}

// Spacing returns the voxel spacing along each axis, lattice[i][i]/shape[i].
// Only the diagonal of the lattice is used.
func (g *ScalarGrid) Spacing() r3.Vec {
	d := g.Diagonal()
	return r3.Vec{
		X: d.X / float64(g.Shape[0]),
		Y: d.Y / float64(g.Shape[1]),
		Z: d.Z / float64(g.Shape[2]),
	}
}

// IsOrthogonal reports whether every off-diagonal lattice entry is zero
func (g *ScalarGrid) IsOrthogonal() bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i != j && g.Lattice.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// System is everything read from one post-processing file
type System struct {
	// Title is the free-form first line of the file
	Title string

	// Cell holds the lattice vectors as rows, in bohr
	Cell *mat.Dense

	// Atoms lists the ions in file order
	Atoms []Atom

	// Field is the plotted quantity on the real-space grid
	Field *ScalarGrid

	// PlotNum is the quantity code written by pp.x (0 = charge density)
	PlotNum int
}

// Species returns the number of atoms per label
func (s *System) Species() map[string]int {
	counts := make(map[string]int)
	for _, a := range s.Atoms {
		counts[a.Label]++
	}
	return counts
}

// Diagonal builds a lattice with the given edge lengths on the diagonal
func Diagonal(a, b, c float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a, 0, 0,
		0, b, 0,
		0, 0, c,
	})
}
