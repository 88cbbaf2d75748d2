// Package qepp reads and writes Quantum Espresso post-processing (.pp) files,
// the filplot output of pp.x.
//
// A file holds a title, grid dimensions, the Bravais lattice (ibrav and
// celldm), the species and ion positions, and finally the plotted quantity
// on the real-space grid in Fortran order. Lengths are converted to bohr.
package qepp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"ppview/internal/models"
)

const (
	// Extension is the file extension of post-processing files
	Extension = ".pp"

	// MaxGridPoints caps the allocation a header may declare
	MaxGridPoints = 1 << 28
)

var (
	// ErrUnsupportedLattice is returned for ibrav codes the reader cannot
	// turn into lattice vectors
	ErrUnsupportedLattice = errors.New("unsupported Bravais lattice")

	// ErrTruncated is returned when the file ends before the field is complete
	ErrTruncated = errors.New("unexpected end of file")

	// ErrGridTooLarge is returned when the header declares more than
	// MaxGridPoints grid points
	ErrGridTooLarge = errors.New("grid too large")
)

// ParseError reports where decoding a file failed
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: %v", e.Path, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Read parses the file at path
func Read(path string) (*models.System, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer file.Close()

	sys, err := Decode(file)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return nil, pe
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	return sys, nil
}

// lineReader hands out whitespace-separated fields line by line
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func (r *lineReader) next() (string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return "", r.fail(err)
		}
		return "", r.fail(ErrTruncated)
	}
	r.line++
	return r.sc.Text(), nil
}

func (r *lineReader) fields(min int) ([]string, error) {
	text, err := r.next()
	if err != nil {
		return nil, err
	}
	f := strings.Fields(text)
	if len(f) < min {
		return nil, r.fail(fmt.Errorf("expected at least %d fields, got %d", min, len(f)))
	}
	return f, nil
}

func (r *lineReader) fail(err error) *ParseError {
	return &ParseError{Line: r.line, Err: err}
}

func (r *lineReader) ints(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, r.fail(fmt.Errorf("field %d: %w", i+1, err))
		}
		out[i] = v
	}
	return out, nil
}

func (r *lineReader) floats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := parseFloat(f)
		if err != nil {
			return nil, r.fail(fmt.Errorf("field %d: %w", i+1, err))
		}
		out[i] = v
	}
	return out, nil
}

// parseFloat also accepts Fortran D exponents
func parseFloat(s string) (float64, error) {
	if strings.ContainsAny(s, "dD") {
		s = strings.NewReplacer("d", "e", "D", "e").Replace(s)
	}
	return strconv.ParseFloat(s, 64)
}

// Decode parses a post-processing file from r
func Decode(r io.Reader) (*models.System, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lr := &lineReader{sc: sc}

	title, err := lr.next()
	if err != nil {
		return nil, err
	}

	// nr1x nr2x nr3x nr1 nr2 nr3 nat ntyp
	f, err := lr.fields(8)
	if err != nil {
		return nil, err
	}
	dims, err := lr.ints(f[:8])
	if err != nil {
		return nil, err
	}
	nrx := [3]int{dims[0], dims[1], dims[2]}
	nr := [3]int{dims[3], dims[4], dims[5]}
	nat, ntyp := dims[6], dims[7]
	for i := 0; i < 3; i++ {
		if nr[i] <= 0 || nrx[i] < nr[i] {
			return nil, lr.fail(fmt.Errorf("grid %v does not fit allocation %v: %w", nr, nrx, models.ErrGridShapeMismatch))
		}
	}
	total := 1
	for _, n := range nrx {
		if n > MaxGridPoints/total {
			return nil, lr.fail(fmt.Errorf("allocation %v exceeds %d points: %w", nrx, MaxGridPoints, ErrGridTooLarge))
		}
		total *= n
	}
	if nat < 0 || ntyp < 0 {
		return nil, lr.fail(fmt.Errorf("negative atom or species count"))
	}

	// ibrav celldm(1..6)
	f, err = lr.fields(7)
	if err != nil {
		return nil, err
	}
	ibrav, err := strconv.Atoi(f[0])
	if err != nil {
		return nil, lr.fail(fmt.Errorf("ibrav: %w", err))
	}
	celldm, err := lr.floats(f[1:7])
	if err != nil {
		return nil, err
	}
	alat := celldm[0]
	if alat <= 0 {
		return nil, lr.fail(fmt.Errorf("celldm(1) = %g: %w", alat, models.ErrDegenerateLattice))
	}

	var cell *mat.Dense
	if ibrav == 0 {
		rows := make([]float64, 0, 9)
		for i := 0; i < 3; i++ {
			f, err := lr.fields(3)
			if err != nil {
				return nil, err
			}
			v, err := lr.floats(f[:3])
			if err != nil {
				return nil, err
			}
			rows = append(rows, v...)
		}
		cell = mat.NewDense(3, 3, rows)
		cell.Scale(alat, cell)
	} else {
		cell, err = bravais(ibrav, celldm)
		if err != nil {
			return nil, lr.fail(err)
		}
	}

	// gcutm dual ecut plot_num
	f, err = lr.fields(4)
	if err != nil {
		return nil, err
	}
	plotNum, err := strconv.Atoi(f[3])
	if err != nil {
		return nil, lr.fail(fmt.Errorf("plot_num: %w", err))
	}

	// ityp label zv
	labels := make(map[int]string)
	for i := 0; i < ntyp; i++ {
		f, err := lr.fields(2)
		if err != nil {
			return nil, err
		}
		ityp, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, lr.fail(fmt.Errorf("species index: %w", err))
		}
		labels[ityp] = f[1]
	}

	// index x y z ityp, positions in alat units
	var atoms []models.Atom
	for i := 0; i < nat; i++ {
		f, err := lr.fields(5)
		if err != nil {
			return nil, err
		}
		pos, err := lr.floats(f[1:4])
		if err != nil {
			return nil, err
		}
		ityp, err := strconv.Atoi(f[4])
		if err != nil {
			return nil, lr.fail(fmt.Errorf("atom species: %w", err))
		}
		label, ok := labels[ityp]
		if !ok {
			return nil, lr.fail(fmt.Errorf("atom %d refers to unknown species %d", i+1, ityp))
		}
		atoms = append(atoms, models.Atom{
			Label:    label,
			Position: r3.Vec{X: pos[0] * alat, Y: pos[1] * alat, Z: pos[2] * alat},
		})
	}

	// Field over the full allocation, any number of values per line. Sizes
	// from the header are never preallocated.
	var raw []float64
	for len(raw) < total {
		text, err := lr.next()
		if err != nil {
			return nil, err
		}
		for _, s := range strings.Fields(text) {
			v, err := parseFloat(s)
			if err != nil {
				return nil, lr.fail(fmt.Errorf("field value: %w", err))
			}
			raw = append(raw, v)
		}
	}
	if len(raw) > total {
		return nil, lr.fail(fmt.Errorf("%d field values for %d grid points: %w", len(raw), total, models.ErrGridShapeMismatch))
	}

	field := models.NewScalarGrid(cell, nr)
	for k := 0; k < nr[2]; k++ {
		for j := 0; j < nr[1]; j++ {
			for i := 0; i < nr[0]; i++ {
				field.Set(i, j, k, raw[i+nrx[0]*(j+nrx[1]*k)])
			}
		}
	}

	return &models.System{
		Title:   strings.TrimSpace(title),
		Cell:    cell,
		Atoms:   atoms,
		Field:   field,
		PlotNum: plotNum,
	}, nil
}

// bravais builds lattice vectors in bohr for the Bravais lattices whose
// vectors depend only on celldm(1..3). The fcc cell decodes, but its
// diagonal has a zero and a negative entry, so models.ScalarGrid.Validate
// rejects it with models.ErrUnsupportedCell: surfaces are only placed on
// cells with a positive diagonal.
func bravais(ibrav int, celldm []float64) (*mat.Dense, error) {
	a := celldm[0]
	var v []float64
	switch ibrav {
	case 1: // simple cubic
		v = []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	case 2: // face-centered cubic
		v = []float64{-0.5, 0, 0.5, 0, 0.5, 0.5, -0.5, 0.5, 0}
	case 3: // body-centered cubic
		v = []float64{0.5, 0.5, 0.5, -0.5, 0.5, 0.5, -0.5, -0.5, 0.5}
	case 6: // simple tetragonal, celldm(3) = c/a
		v = []float64{1, 0, 0, 0, 1, 0, 0, 0, celldm[2]}
	case 8: // simple orthorhombic, celldm(2) = b/a, celldm(3) = c/a
		v = []float64{1, 0, 0, 0, celldm[1], 0, 0, 0, celldm[2]}
	default:
		return nil, fmt.Errorf("ibrav %d: %w", ibrav, ErrUnsupportedLattice)
	}

	cell := mat.NewDense(3, 3, v)
	cell.Scale(a, cell)
	if math.Abs(mat.Det(cell)) == 0 {
		return nil, fmt.Errorf("ibrav %d with celldm %v: %w", ibrav, celldm, models.ErrDegenerateLattice)
	}
	return cell, nil
}
