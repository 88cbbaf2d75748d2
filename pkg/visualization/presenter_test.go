package visualization

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"ppview/internal/models"
	"ppview/pkg/scene"
)

// testScene builds a scene with a cell, one oxygen atom and a blob surface
func testScene(t *testing.T) *scene.Scene {
	t.Helper()
	scn := scene.New()
	grid := blobGrid(12, 6)
	AddCell(grid, scn)
	AddAtom("O", r3.Vec{X: 3, Y: 3, Z: 3}, scn)
	if _, err := AddField(grid, scn, 0.3, 0, "blob.pp"); err != nil {
		t.Fatalf("AddField failed: %v", err)
	}
	return scn
}

func TestSnapshotRenderer(t *testing.T) {
	scn := testScene(t)
	path := filepath.Join(t.TempDir(), "scene.png")

	r := NewSnapshotRenderer(path, 160, 120)
	if err := r.Render(scn); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open snapshot: %v", err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 120 {
		t.Errorf("Expected 160x120, got %dx%d", b.Dx(), b.Dy())
	}

	// The corner shows the background, the center shows the red surface
	// over the red atom
	br, bg, bb, _ := img.At(0, 0).RGBA()
	if br>>8 != 230 || bg>>8 != 230 || bb>>8 != 230 {
		t.Errorf("Expected background 230 gray at the corner, got %d %d %d", br>>8, bg>>8, bb>>8)
	}
	cr, cg, cb, _ := img.At(80, 60).RGBA()
	if cr <= cg || cr <= cb {
		t.Errorf("Expected a red center pixel, got %d %d %d", cr>>8, cg>>8, cb>>8)
	}
}

func TestSnapshotEmptyScene(t *testing.T) {
	img := NewSnapshotRenderer("", 8, 8).Draw(scene.New())
	r, g, b, a := img.At(4, 4).RGBA()
	if r>>8 != 230 || g>>8 != 230 || b>>8 != 230 || a>>8 != 255 {
		t.Errorf("Expected an opaque background pixel, got %d %d %d %d", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestWriteOBJ(t *testing.T) {
	scn := scene.New()
	grid := models.NewScalarGrid(models.Diagonal(1, 1, 1), [3]int{1, 1, 1})
	AddCell(grid, scn)
	AddAtom("H", r3.Vec{}, scn)

	var obj, mtl bytes.Buffer
	if err := WriteOBJ(&obj, "scene.mtl", scn); err != nil {
		t.Fatalf("WriteOBJ failed: %v", err)
	}
	if err := WriteMTL(&mtl, scn); err != nil {
		t.Fatalf("WriteMTL failed: %v", err)
	}

	count := func(s, prefix string) int {
		n := 0
		for _, line := range strings.Split(s, "\n") {
			if strings.HasPrefix(line, prefix) {
				n++
			}
		}
		return n
	}

	out := obj.String()
	if !strings.HasPrefix(out, "mtllib scene.mtl\n") {
		t.Errorf("Expected mtllib header, got %q", strings.SplitN(out, "\n", 2)[0])
	}
	if n := count(out, "v "); n != 8+58 {
		t.Errorf("Expected %d vertices, got %d", 8+58, n)
	}
	if n := count(out, "l "); n != 12 {
		t.Errorf("Expected 12 cell edges, got %d", n)
	}
	if n := count(out, "o "); n != 2 {
		t.Errorf("Expected 2 objects, got %d", n)
	}

	// Sphere faces index past the cell's 8 vertices
	if !strings.Contains(out, "\nf 9 ") {
		t.Error("Expected sphere faces to be offset by the cell vertices")
	}

	m := mtl.String()
	if !strings.Contains(m, "Kd 0.7000 0.7000 0.7000\nd 0.0500") {
		t.Errorf("Expected the cell material, got:\n%s", m)
	}
	if !strings.Contains(m, "Kd 0.9000 0.9000 0.9000\nd 1.0000") {
		t.Errorf("Expected the hydrogen material, got:\n%s", m)
	}
}

func TestOBJExporterWritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	e := &OBJExporter{Path: filepath.Join(dir, "scene.obj")}
	if err := e.Render(testScene(t)); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	for _, name := range []string{"scene.obj", "scene.mtl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s: %v", name, err)
		}
	}
}

func TestSTLExporter(t *testing.T) {
	scn := testScene(t)
	path := filepath.Join(t.TempDir(), "scene.stl")
	if err := (&STLExporter{Path: path}).Render(scn); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat STL: %v", err)
	}
	n := len(SceneTriangles(scn))
	if want := int64(84 + 50*n); info.Size() != want {
		t.Errorf("Expected %d bytes for %d triangles, got %d", want, n, info.Size())
	}
}

type failingPresenter struct{ err error }

func (f failingPresenter) Render(*scene.Scene) error { return f.err }

type countingPresenter struct{ n int }

func (c *countingPresenter) Render(*scene.Scene) error {
	c.n++
	return nil
}

func TestMultiPresenter(t *testing.T) {
	boom := errors.New("boom")
	counter := &countingPresenter{}
	m := MultiPresenter{failingPresenter{boom}, counter}

	err := m.Render(scene.New())
	if !errors.Is(err, boom) {
		t.Errorf("Expected joined error to contain boom, got %v", err)
	}
	if counter.n != 1 {
		t.Errorf("Expected later presenters to still run, got %d calls", counter.n)
	}
}
