package qepp

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"ppview/internal/models"
)

// waterPP has a 3x2x2 allocation cropped to a 2x2x2 grid. Each value is its
// own allocation index.
const waterPP = ` water molecule
      3       2       2       2       2       2       2       2
     1   10.00000000    0.00000000    0.00000000    0.00000000    0.00000000    0.00000000
     40.0000000      4.0000000     10.0000000     0
   1   O     6.00
   2   H     1.00
   1   0.000000   0.000000   0.000000   1
   2   0.100000   0.000000   0.000000   2
  0.000000E+00  1.000000E+00  2.000000E+00  3.000000E+00  4.000000E+00
  5.000000E+00  6.000000E+00  7.000000E+00  8.000000E+00  9.000000E+00
  1.000000D+01  1.100000E+01
`

func TestDecode(t *testing.T) {
	sys, err := Decode(strings.NewReader(waterPP))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if sys.Title != "water molecule" {
		t.Errorf("Expected title %q, got %q", "water molecule", sys.Title)
	}
	if sys.PlotNum != 0 {
		t.Errorf("Expected plot_num 0, got %d", sys.PlotNum)
	}
	if !mat.Equal(sys.Cell, models.Diagonal(10, 10, 10)) {
		t.Errorf("Expected a 10 bohr cube, got %v", mat.Formatted(sys.Cell))
	}

	if len(sys.Atoms) != 2 {
		t.Fatalf("Expected 2 atoms, got %d", len(sys.Atoms))
	}
	if sys.Atoms[0].Label != "O" || sys.Atoms[1].Label != "H" {
		t.Errorf("Unexpected labels %q %q", sys.Atoms[0].Label, sys.Atoms[1].Label)
	}
	if d := r3.Norm(r3.Sub(sys.Atoms[1].Position, r3.Vec{X: 1})); d > 1e-12 {
		t.Errorf("Expected H at (1,0,0) bohr, got %v", sys.Atoms[1].Position)
	}

	g := sys.Field
	if g.Shape != [3]int{2, 2, 2} {
		t.Fatalf("Expected shape [2 2 2], got %v", g.Shape)
	}
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				if want := float64(i + 3*(j+2*k)); g.At(i, j, k) != want {
					t.Errorf("At(%d,%d,%d): expected %g, got %g", i, j, k, want, g.At(i, j, k))
				}
			}
		}
	}
}

func TestDecodeBravais(t *testing.T) {
	tests := []struct {
		name   string
		ibrav  string
		celldm string
		want   []float64
		valid  error
	}{
		{"cubic", "1", "4.0 0 0 0 0 0", []float64{4, 0, 0, 0, 4, 0, 0, 0, 4}, nil},
		{"fcc", "2", "4.0 0 0 0 0 0", []float64{-2, 0, 2, 0, 2, 2, -2, 2, 0}, models.ErrUnsupportedCell},
		{"bcc", "3", "4.0 0 0 0 0 0", []float64{2, 2, 2, -2, 2, 2, -2, -2, 2}, nil},
		{"tetragonal", "6", "4.0 0 1.5 0 0 0", []float64{4, 0, 0, 0, 4, 0, 0, 0, 6}, nil},
		{"orthorhombic", "8", "4.0 0.5 2.0 0 0 0", []float64{4, 0, 0, 0, 2, 0, 0, 0, 8}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := strings.Join([]string{
				"title",
				"1 1 1 1 1 1 0 0",
				tt.ibrav + " " + tt.celldm,
				"0 4 0 0",
				"0.5",
			}, "\n")
			sys, err := Decode(strings.NewReader(src))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !mat.EqualApprox(sys.Cell, mat.NewDense(3, 3, tt.want), 1e-12) {
				t.Errorf("Unexpected cell\n%v", mat.Formatted(sys.Cell))
			}
			if err := sys.Field.Validate(); !errors.Is(err, tt.valid) {
				t.Errorf("Expected Validate to return %v, got %v", tt.valid, err)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		err  error
	}{
		{
			name: "unsupported lattice",
			src:  "t\n1 1 1 1 1 1 0 0\n4 1 0 0 0 0 0\n",
			line: 3,
			err:  ErrUnsupportedLattice,
		},
		{
			name: "truncated field",
			src:  "t\n2 1 1 2 1 1 0 0\n1 1 0 0 0 0 0\n0 4 0 0\n1.0\n",
			line: 5,
			err:  ErrTruncated,
		},
		{
			name: "too many values",
			src:  "t\n1 1 1 1 1 1 0 0\n1 1 0 0 0 0 0\n0 4 0 0\n1.0 2.0\n",
			line: 5,
			err:  models.ErrGridShapeMismatch,
		},
		{
			name: "grid larger than allocation",
			src:  "t\n1 1 1 2 1 1 0 0\n",
			line: 2,
			err:  models.ErrGridShapeMismatch,
		},
		{
			name: "huge allocation",
			src:  "corrupt\n1048576 1048576 1048576 1 1 1 0 0\n1 10.0 0 0 0 0 0\n0 4 0 0\n1.0\n",
			line: 2,
			err:  ErrGridTooLarge,
		},
		{
			name: "allocation just over the cap",
			src:  "t\n1024 1024 257 1 1 1 0 0\n",
			line: 2,
			err:  ErrGridTooLarge,
		},
		{
			name: "huge atom count",
			src:  "t\n1 1 1 1 1 1 4000000000 4000000000\n1 10.0 0 0 0 0 0\n0 4 0 0\n",
			line: 4,
			err:  ErrTruncated,
		},
		{
			name: "zero lattice parameter",
			src:  "t\n1 1 1 1 1 1 0 0\n1 0 0 0 0 0 0\n",
			line: 3,
			err:  models.ErrDegenerateLattice,
		},
		{
			name: "empty",
			src:  "",
			line: 0,
			err:  ErrTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			if !errors.Is(err, tt.err) {
				t.Fatalf("Expected %v, got %v", tt.err, err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected a *ParseError, got %T", err)
			}
			if pe.Line != tt.line {
				t.Errorf("Expected line %d, got %d", tt.line, pe.Line)
			}
		})
	}
}

func TestDecodeBadNumber(t *testing.T) {
	src := "t\n1 1 1 1 1 1 0 0\n1 1 0 0 0 0 0\n0 4 0 0\nnope\n"
	_, err := Decode(strings.NewReader(src))
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 5 {
		t.Errorf("Expected a parse error on line 5, got %v", err)
	}
}

func TestReadSetsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pp")
	if err := os.WriteFile(path, []byte("t\n"), 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	_, err := Read(path)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected a *ParseError, got %v", err)
	}
	if pe.Path != path {
		t.Errorf("Expected path %q, got %q", path, pe.Path)
	}
	if !strings.HasPrefix(err.Error(), path+":") {
		t.Errorf("Expected the message to start with the path, got %q", err.Error())
	}

	if _, err := Read(filepath.Join(t.TempDir(), "missing.pp")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	field := models.NewScalarGrid(models.Diagonal(6, 7, 8), [3]int{3, 4, 5})
	for i := range field.Data {
		field.Data[i] = math.Exp(-float64(i) / 7)
	}
	in := &models.System{
		Title: "round trip",
		Cell:  field.Lattice,
		Atoms: []models.Atom{
			{Label: "O", Position: r3.Vec{X: 3, Y: 3.5, Z: 4}},
			{Label: "H", Position: r3.Vec{X: 4.5, Y: 3.5, Z: 4}},
			{Label: "H", Position: r3.Vec{X: 1.5, Y: 3.5, Z: 4}},
		},
		Field:   field,
		PlotNum: 6,
	}

	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if out.Title != in.Title || out.PlotNum != in.PlotNum {
		t.Errorf("Header mismatch: %q/%d vs %q/%d", out.Title, out.PlotNum, in.Title, in.PlotNum)
	}
	if !mat.Equal(out.Cell, in.Cell) {
		t.Errorf("Cell mismatch\n%v", mat.Formatted(out.Cell))
	}
	if len(out.Atoms) != len(in.Atoms) {
		t.Fatalf("Expected %d atoms, got %d", len(in.Atoms), len(out.Atoms))
	}
	for i := range in.Atoms {
		if out.Atoms[i] != in.Atoms[i] {
			t.Errorf("Atom %d: expected %+v, got %+v", i, in.Atoms[i], out.Atoms[i])
		}
	}
	if out.Field.Shape != in.Field.Shape {
		t.Fatalf("Shape mismatch: %v vs %v", out.Field.Shape, in.Field.Shape)
	}
	for i := range in.Field.Data {
		if out.Field.Data[i] != in.Field.Data[i] {
			t.Fatalf("Value %d: expected %g, got %g", i, in.Field.Data[i], out.Field.Data[i])
		}
	}
	if got := out.Species(); got["H"] != 2 || got["O"] != 1 {
		t.Errorf("Unexpected species %v", got)
	}
}

func TestWriteRejectsInvalidField(t *testing.T) {
	sys := &models.System{
		Field: &models.ScalarGrid{Data: make([]float64, 3), Shape: [3]int{2, 2, 2}, Lattice: models.Diagonal(1, 1, 1)},
	}
	if err := Write(&bytes.Buffer{}, sys); !errors.Is(err, models.ErrGridShapeMismatch) {
		t.Errorf("Expected ErrGridShapeMismatch, got %v", err)
	}
}
