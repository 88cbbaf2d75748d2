// Package visualization turns parsed post-processing data into scene actors
// and presents scenes as images and mesh files.
//
// The field-to-surface pipeline extracts a marching-cubes isosurface from a
// scalar grid, colors it from a fixed cyclic palette and adds it to a scene.
// Atoms become spheres and the unit cell becomes a translucent wireframe box.
package visualization

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"ppview/internal/models"
	"ppview/pkg/scene"
	"ppview/pkg/stl"
)

// SurfaceOpacity is the fixed opacity of every isosurface
const SurfaceOpacity = 0.4

// surfacePalette is cycled by load order
var surfacePalette = [...]scene.Color{
	{1, 0, 0}, // red
	{0, 1, 0}, // green
	{0, 0, 1}, // blue
	{1, 1, 0}, // yellow
	{1, 0, 1}, // magenta
	{0, 1, 1}, // cyan
}

// SurfaceColor returns the palette entry for index i modulo six. Negative
// indices wrap the same way.
func SurfaceColor(i int) scene.Color {
	n := len(surfacePalette)
	return surfacePalette[((i%n)+n)%n]
}

// AtomColor returns the sphere color for a species label
func AtomColor(label string) scene.Color {
	switch label {
	case "O":
		return scene.Color{1, 0, 0}
	case "H":
		return scene.Color{0.9, 0.9, 0.9}
	}
	return scene.Color{0.5, 0.5, 0.5}
}

// AtomRadius returns the sphere radius for a species label
func AtomRadius(label string) float64 {
	switch label {
	case "H":
		return 0.25
	}
	return 0.5
}

// Subsystem is the rendered state of one loaded file
type Subsystem struct {
	// Path is the file the subsystem was loaded from
	Path string

	// Name is the last element of Path
	Name string

	// ColorIndex selected the surface color
	ColorIndex int

	// Contour extracts the surface and can be re-thresholded in place
	Contour *ContourSource

	Mapper *scene.Mapper
	Actor  *scene.Actor

	// Atoms are the sphere actors added for this file
	Atoms []*scene.Actor
}

// String returns the display name
func (s *Subsystem) String() string {
	return s.Name
}

// AddField builds the isosurface of grid at iso, adds it to scn and resets
// the camera. Only the lattice diagonal is used for voxel spacing.
func AddField(grid *models.ScalarGrid, scn *scene.Scene, iso float64, colorIndex int, path string) (*Subsystem, error) {
	if err := grid.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field grid: %w", err)
	}

	contour := NewContourSource(grid, iso)

	mapper := scene.NewMapper(contour)
	mapper.Update()
	mapper.ScalarVisibility = false

	actor := scene.NewActor(filepath.Base(path), mapper)
	actor.Property.Color = SurfaceColor(colorIndex)
	actor.Property.Opacity = SurfaceOpacity

	scn.AddActor(actor)
	scn.ResetCamera()

	return &Subsystem{
		Path:       path,
		Name:       filepath.Base(path),
		ColorIndex: colorIndex,
		Contour:    contour,
		Mapper:     mapper,
		Actor:      actor,
	}, nil
}

// AddAtom adds a sphere for one atom and returns its actor
func AddAtom(label string, pos r3.Vec, scn *scene.Scene) *scene.Actor {
	ball := scene.NewSphereSource(pos, AtomRadius(label))

	actor := scene.NewActor(label, scene.NewMapper(ball))
	actor.Property.Color = AtomColor(label)

	scn.AddActor(actor)
	return actor
}

// AddCell adds the translucent wireframe box [0,a]x[0,b]x[0,c] spanned by the
// lattice diagonal and returns its actor
func AddCell(grid *models.ScalarGrid, scn *scene.Scene) *scene.Actor {
	cell := scene.NewCubeSource(r3.Box{Max: grid.Diagonal()})

	actor := scene.NewActor("cell", scene.NewMapper(cell))
	actor.Property = scene.Property{
		Color:       scene.Color{0.7, 0.7, 0.7},
		Opacity:     0.05,
		EdgeVisible: true,
		EdgeColor:   scene.Color{0, 0, 0},
	}

	scn.AddActor(actor)
	return actor
}

// ContourSource extracts a single isosurface from a grid. Changing the value
// marks the source modified; the surface is recomputed on the next Output.
type ContourSource struct {
	mc       *stl.MarchingCubes
	value    float64
	modified bool
	cache    *scene.PolyData
	builds   int
}

// NewContourSource creates a contour of grid at value with voxel spacing
// taken from the lattice diagonal and the origin at zero
func NewContourSource(grid *models.ScalarGrid, value float64) *ContourSource {
	spacing := grid.Spacing()
	mc := stl.NewMarchingCubes(grid.Data, grid.Shape[0], grid.Shape[1], grid.Shape[2], value)
	mc.SetScale(float32(spacing.X), float32(spacing.Y), float32(spacing.Z))

	return &ContourSource{
		mc:       mc,
		value:    value,
		modified: true,
	}
}

// SetValue changes the contour level
func (c *ContourSource) SetValue(v float64) {
	if v == c.value && c.cache != nil {
		return
	}
	c.value = v
	c.mc.SetIsoLevel(v)
	c.modified = true
}

// Value returns the contour level
func (c *ContourSource) Value() float64 {
	return c.value
}

// Builds counts how many times the surface has been extracted
func (c *ContourSource) Builds() int {
	return c.builds
}

// Triangles returns the raw facets at the current level
func (c *ContourSource) Triangles() []stl.Triangle {
	return c.mc.GenerateTriangles()
}

// Output returns the surface mesh with shared vertices merged
func (c *ContourSource) Output() *scene.PolyData {
	if !c.modified && c.cache != nil {
		return c.cache
	}

	triangles := c.mc.GenerateTriangles()
	pd := &scene.PolyData{
		Triangles: make([][3]int, 0, len(triangles)),
		Normals:   make([]r3.Vec, 0, len(triangles)),
	}

	index := make(map[[3]float32]int)
	vertex := func(v [3]float32) int {
		if i, ok := index[v]; ok {
			return i
		}
		i := len(pd.Points)
		index[v] = i
		pd.Points = append(pd.Points, r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])})
		pd.Scalars = append(pd.Scalars, c.value)
		return i
	}

	for _, t := range triangles {
		pd.Triangles = append(pd.Triangles, [3]int{vertex(t.Vertex1), vertex(t.Vertex2), vertex(t.Vertex3)})
		pd.Normals = append(pd.Normals, r3.Vec{X: float64(t.Normal[0]), Y: float64(t.Normal[1]), Z: float64(t.Normal[2])})
	}

	c.cache = pd
	c.modified = false
	c.builds++
	return pd
}
