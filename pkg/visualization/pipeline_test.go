package visualization

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"ppview/internal/models"
	"ppview/pkg/scene"
)

// blobGrid returns an n^3 grid over an a^3 cell holding a Gaussian centered
// in the cell with peak 1
func blobGrid(n int, a float64) *models.ScalarGrid {
	g := models.NewScalarGrid(models.Diagonal(a, a, a), [3]int{n, n, n})
	h := a / float64(n)
	c := a / 2
	sigma := a / 6
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				dx, dy, dz := float64(i)*h-c, float64(j)*h-c, float64(k)*h-c
				g.Set(i, j, k, math.Exp(-(dx*dx+dy*dy+dz*dz)/(sigma*sigma)))
			}
		}
	}
	return g
}

func TestSurfaceColorCycle(t *testing.T) {
	want := []scene.Color{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1},
		{1, 1, 0}, {1, 0, 1}, {0, 1, 1},
	}
	for i := 0; i < 18; i++ {
		if got := SurfaceColor(i); got != want[i%6] {
			t.Errorf("SurfaceColor(%d): expected %v, got %v", i, want[i%6], got)
		}
	}
	if SurfaceColor(0) != SurfaceColor(6) {
		t.Error("Expected indices 0 and 6 to share a color")
	}
	if SurfaceColor(-1) != want[5] {
		t.Errorf("Expected -1 to wrap to cyan, got %v", SurfaceColor(-1))
	}
}

func TestAtomStyle(t *testing.T) {
	tests := []struct {
		label  string
		radius float64
		color  scene.Color
	}{
		{"O", 0.5, scene.Color{1, 0, 0}},
		{"H", 0.25, scene.Color{0.9, 0.9, 0.9}},
		{"C", 0.5, scene.Color{0.5, 0.5, 0.5}},
		{"", 0.5, scene.Color{0.5, 0.5, 0.5}},
	}
	for _, tt := range tests {
		if r := AtomRadius(tt.label); r != tt.radius {
			t.Errorf("AtomRadius(%q): expected %g, got %g", tt.label, tt.radius, r)
		}
		if c := AtomColor(tt.label); c != tt.color {
			t.Errorf("AtomColor(%q): expected %v, got %v", tt.label, tt.color, c)
		}
	}
}

func TestAddField(t *testing.T) {
	scn := scene.New()
	grid := blobGrid(16, 8)

	sub, err := AddField(grid, scn, 0.5, 2, "/data/run/water.pp")
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	if sub.Name != "water.pp" || sub.Path != "/data/run/water.pp" {
		t.Errorf("Unexpected names: %q %q", sub.Name, sub.Path)
	}
	if !scn.HasActor(sub.Actor) {
		t.Error("Expected the surface actor in the scene")
	}
	if sub.Actor.Property.Color != (scene.Color{0, 0, 1}) {
		t.Errorf("Expected blue for index 2, got %v", sub.Actor.Property.Color)
	}
	if sub.Actor.Property.Opacity != 0.4 {
		t.Errorf("Expected opacity 0.4, got %g", sub.Actor.Property.Opacity)
	}
	if sub.Mapper.ScalarVisibility {
		t.Error("Expected scalar coloring to be off")
	}

	pd := sub.Mapper.Update()
	if len(pd.Triangles) == 0 {
		t.Fatal("Expected a non-empty surface")
	}

	// The half-maximum surface of the blob sits at r = sigma*sqrt(ln 2)
	// around the cell center
	center := r3.Vec{X: 4, Y: 4, Z: 4}
	want := 8.0 / 6 * math.Sqrt(math.Ln2)
	for _, p := range pd.Points {
		if d := r3.Norm(r3.Sub(p, center)); math.Abs(d-want) > 0.2 {
			t.Fatalf("Surface point %v is %g from the center, expected about %g", p, d, want)
		}
	}

	// Camera frames the surface
	if r3.Norm(r3.Sub(scn.Camera.FocalPoint, center)) > 0.3 {
		t.Errorf("Expected focal point near %v, got %v", center, scn.Camera.FocalPoint)
	}
}

func TestAddFieldShapeMismatch(t *testing.T) {
	scn := scene.New()
	grid := &models.ScalarGrid{Data: make([]float64, 10), Shape: [3]int{2, 2, 2}, Lattice: models.Diagonal(1, 1, 1)}

	_, err := AddField(grid, scn, 0.1, 0, "bad.pp")
	if !errors.Is(err, models.ErrGridShapeMismatch) {
		t.Errorf("Expected ErrGridShapeMismatch, got %v", err)
	}
	if scn.Len() != 0 {
		t.Errorf("Expected nothing added to the scene, got %d actors", scn.Len())
	}
}

func TestContourSetValue(t *testing.T) {
	grid := blobGrid(12, 6)
	c := NewContourSource(grid, 0.5)

	first := c.Output()
	if c.Builds() != 1 {
		t.Fatalf("Expected 1 build, got %d", c.Builds())
	}
	if c.Output() != first || c.Builds() != 1 {
		t.Error("Expected cached output when unchanged")
	}

	c.SetValue(0.5)
	c.Output()
	if c.Builds() != 1 {
		t.Error("Expected setting the same value to keep the cache")
	}

	c.SetValue(0.1)
	if c.Value() != 0.1 {
		t.Errorf("Expected value 0.1, got %g", c.Value())
	}
	second := c.Output()
	if c.Builds() != 2 {
		t.Errorf("Expected a rebuild after SetValue, got %d builds", c.Builds())
	}

	// A lower level on a peaked field encloses more volume
	b1, _ := first.Bounds()
	b2, _ := second.Bounds()
	if b2.Max.X-b2.Min.X <= b1.Max.X-b1.Min.X {
		t.Errorf("Expected the 0.1 surface to be wider than the 0.5 surface")
	}
	for _, s := range second.Scalars {
		if s != 0.1 {
			t.Fatalf("Expected point scalars to carry the level, got %g", s)
		}
	}
}

func TestContourWeldsVertices(t *testing.T) {
	c := NewContourSource(blobGrid(12, 6), 0.5)
	pd := c.Output()
	if len(pd.Points) >= 3*len(pd.Triangles) {
		t.Errorf("Expected shared vertices: %d points for %d triangles", len(pd.Points), len(pd.Triangles))
	}
	if len(pd.Normals) != len(pd.Triangles) {
		t.Errorf("Expected one normal per triangle, got %d for %d", len(pd.Normals), len(pd.Triangles))
	}
}

func TestAddAtomAndCell(t *testing.T) {
	scn := scene.New()
	grid := models.NewScalarGrid(models.Diagonal(2, 3, 4), [3]int{2, 2, 2})

	cell := AddCell(grid, scn)
	if !cell.Property.EdgeVisible || cell.Property.Opacity != 0.05 {
		t.Errorf("Unexpected cell property %+v", cell.Property)
	}
	if cell.Property.Color != (scene.Color{0.7, 0.7, 0.7}) || cell.Property.EdgeColor != (scene.Color{}) {
		t.Errorf("Unexpected cell colors %+v", cell.Property)
	}
	box, _ := cell.Mapper.Update().Bounds()
	if box.Min != (r3.Vec{}) || box.Max != (r3.Vec{X: 2, Y: 3, Z: 4}) {
		t.Errorf("Expected cell [0,2]x[0,3]x[0,4], got %v", box)
	}

	h := AddAtom("H", r3.Vec{X: 1, Y: 1, Z: 1}, scn)
	box, _ = h.Mapper.Update().Bounds()
	if math.Abs(box.Max.Z-1.25) > 1e-12 {
		t.Errorf("Expected hydrogen radius 0.25, got bounds %v", box)
	}
	if scn.Len() != 2 {
		t.Errorf("Expected 2 actors, got %d", scn.Len())
	}
}
