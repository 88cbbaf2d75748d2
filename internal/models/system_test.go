package models

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// TestNestedRoundTrip verifies that flattening and unflattening is exact
func TestNestedRoundTrip(t *testing.T) {
	shapes := [][3]int{{1, 1, 1}, {2, 3, 4}, {5, 1, 2}, {3, 3, 3}}
	for _, shape := range shapes {
		values := make([][][]float64, shape[0])
		for i := range values {
			values[i] = make([][]float64, shape[1])
			for j := range values[i] {
				values[i][j] = make([]float64, shape[2])
				for k := range values[i][j] {
					values[i][j][k] = float64(100*i+10*j+k) + 0.25
				}
			}
		}

		g, err := FromNested(values, Diagonal(1, 1, 1))
		if err != nil {
			t.Fatalf("FromNested(%v) failed: %v", shape, err)
		}
		if g.Shape != shape {
			t.Errorf("Expected shape %v, got %v", shape, g.Shape)
		}

		back := g.Nested()
		for i := range values {
			for j := range values[i] {
				for k := range values[i][j] {
					if back[i][j][k] != values[i][j][k] {
						t.Fatalf("Round trip mismatch at (%d,%d,%d): %g != %g", i, j, k, back[i][j][k], values[i][j][k])
					}
				}
			}
		}
	}
}

// TestColumnMajorLayout checks that the first index varies fastest
func TestColumnMajorLayout(t *testing.T) {
	g := NewScalarGrid(Diagonal(1, 1, 1), [3]int{2, 3, 4})
	for n := range g.Data {
		g.Data[n] = float64(n)
	}

	if g.At(1, 0, 0) != 1 {
		t.Errorf("Expected (1,0,0) at offset 1, got %g", g.At(1, 0, 0))
	}
	if g.At(0, 1, 0) != 2 {
		t.Errorf("Expected (0,1,0) at offset 2, got %g", g.At(0, 1, 0))
	}
	if g.At(0, 0, 1) != 6 {
		t.Errorf("Expected (0,0,1) at offset 6, got %g", g.At(0, 0, 1))
	}
}

func TestFromNestedRagged(t *testing.T) {
	values := [][][]float64{
		{{1, 2}, {3, 4}},
		{{5, 6}, {7}},
	}
	if _, err := FromNested(values, Diagonal(1, 1, 1)); !errors.Is(err, ErrGridShapeMismatch) {
		t.Errorf("Expected ErrGridShapeMismatch, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		grid *ScalarGrid
		want error
	}{
		{
			name: "valid",
			grid: NewScalarGrid(Diagonal(2, 3, 4), [3]int{2, 2, 2}),
		},
		{
			name: "short buffer",
			grid: &ScalarGrid{Data: make([]float64, 7), Shape: [3]int{2, 2, 2}, Lattice: Diagonal(1, 1, 1)},
			want: ErrGridShapeMismatch,
		},
		{
			name: "zero axis",
			grid: &ScalarGrid{Data: nil, Shape: [3]int{0, 2, 2}, Lattice: Diagonal(1, 1, 1)},
			want: ErrGridShapeMismatch,
		},
		{
			name: "negative diagonal",
			grid: NewScalarGrid(Diagonal(1, -1, 1), [3]int{1, 1, 1}),
			want: ErrUnsupportedCell,
		},
		{
			name: "fcc primitive cell",
			grid: NewScalarGrid(mat.NewDense(3, 3, []float64{-2, 0, 2, 0, 2, 2, -2, 2, 0}), [3]int{1, 1, 1}),
			want: ErrUnsupportedCell,
		},
		{
			name: "flat cell",
			grid: NewScalarGrid(mat.NewDense(3, 3, []float64{1, 1, 0, 1, 1, 0, 0, 0, 1}), [3]int{1, 1, 1}),
			want: ErrDegenerateLattice,
		},
		{
			name: "no lattice",
			grid: &ScalarGrid{Data: make([]float64, 1), Shape: [3]int{1, 1, 1}},
			want: ErrDegenerateLattice,
		},
	}

	for _, tt := range tests {
		err := tt.grid.Validate()
		if tt.want == nil && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestSpacing(t *testing.T) {
	g := NewScalarGrid(Diagonal(10, 20, 30), [3]int{10, 40, 15})
	s := g.Spacing()
	if s.X != 1 || s.Y != 0.5 || s.Z != 2 {
		t.Errorf("Expected spacing (1, 0.5, 2), got %v", s)
	}
	if !g.IsOrthogonal() {
		t.Error("Expected diagonal lattice to be orthogonal")
	}

	skew := NewScalarGrid(mat.NewDense(3, 3, []float64{1, 0, 0, 0.5, 1, 0, 0, 0, 1}), [3]int{1, 1, 1})
	if skew.IsOrthogonal() {
		t.Error("Expected sheared lattice to be reported as non-orthogonal")
	}
}

func TestSpecies(t *testing.T) {
	s := &System{Atoms: []Atom{{Label: "O"}, {Label: "H"}, {Label: "H"}}}
	counts := s.Species()
	if counts["O"] != 1 || counts["H"] != 2 {
		t.Errorf("Expected O:1 H:2, got %v", counts)
	}
}
