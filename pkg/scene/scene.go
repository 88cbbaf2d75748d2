// Package scene holds the renderable state of a viewer: polygonal geometry,
// the sources that produce it, actors with display properties, and a camera.
//
// Geometry is pulled lazily. An actor's mapper asks its source for output only
// when a presenter renders the scene, so a source whose parameters change
// recomputes on the next frame rather than immediately.
package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Color is an RGB triple with components in [0, 1]
type Color [3]float64

// DefaultBackground is the light gray the viewer clears to
var DefaultBackground = Color{0.9, 0.9, 0.9}

// PolyData is a polygonal mesh with optional line segments
type PolyData struct {
	// Points are the mesh vertices
	Points []r3.Vec

	// Triangles index into Points
	Triangles [][3]int

	// Normals holds one unit normal per triangle, or is empty
	Normals []r3.Vec

	// Lines index into Points and are drawn as edges
	Lines [][2]int

	// Scalars holds one value per point, or is empty
	Scalars []float64
}

// Bounds returns the axis-aligned box around all points. ok is false when
// there are no points.
func (p *PolyData) Bounds() (box r3.Box, ok bool) {
	if p == nil || len(p.Points) == 0 {
		return r3.Box{}, false
	}
	box.Min = p.Points[0]
	box.Max = p.Points[0]
	for _, v := range p.Points[1:] {
		box.Min = r3.Vec{X: math.Min(box.Min.X, v.X), Y: math.Min(box.Min.Y, v.Y), Z: math.Min(box.Min.Z, v.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, v.X), Y: math.Max(box.Max.Y, v.Y), Z: math.Max(box.Max.Z, v.Z)}
	}
	return box, true
}

// Source produces geometry. Output may recompute when the source has been
// modified since the previous call.
type Source interface {
	Output() *PolyData
}

// Mapper connects a source to an actor
type Mapper struct {
	source Source

	// ScalarVisibility colors the mesh by its point scalars instead of the
	// actor color when the mesh has scalars
	ScalarVisibility bool
}

// NewMapper creates a mapper over src with scalar coloring enabled, as the
// render toolkit does by default
func NewMapper(src Source) *Mapper {
	return &Mapper{source: src, ScalarVisibility: true}
}

// Source returns the mapper's input
func (m *Mapper) Source() Source {
	return m.source
}

// Update pulls the current geometry from the source
func (m *Mapper) Update() *PolyData {
	if m == nil || m.source == nil {
		return nil
	}
	return m.source.Output()
}

// Property holds the display attributes of an actor
type Property struct {
	Color       Color
	Opacity     float64
	EdgeVisible bool
	EdgeColor   Color
}

// Actor is a mapper placed in a scene with display properties
type Actor struct {
	// Name identifies the actor in exports
	Name string

	Mapper   *Mapper
	Property Property
}

// NewActor creates an opaque white actor
func NewActor(name string, m *Mapper) *Actor {
	return &Actor{
		Name:   name,
		Mapper: m,
		Property: Property{
			Color:   Color{1, 1, 1},
			Opacity: 1,
		},
	}
}

// Scene is an ordered set of actors and the camera that views them
type Scene struct {
	actors []*Actor

	Background Color
	Camera     Camera
}

// New creates an empty scene with the default background and camera
func New() *Scene {
	return &Scene{
		Background: DefaultBackground,
		Camera:     NewCamera(),
	}
}

// AddActor appends a to the scene. Adding an actor that is already present
// does nothing.
func (s *Scene) AddActor(a *Actor) {
	if a == nil || s.HasActor(a) {
		return
	}
	s.actors = append(s.actors, a)
}

// RemoveActor takes a out of the scene and reports whether it was present
func (s *Scene) RemoveActor(a *Actor) bool {
	for i, cur := range s.actors {
		if cur == a {
			s.actors = append(s.actors[:i], s.actors[i+1:]...)
			return true
		}
	}
	return false
}

// HasActor reports whether a is in the scene
func (s *Scene) HasActor(a *Actor) bool {
	for _, cur := range s.actors {
		if cur == a {
			return true
		}
	}
	return false
}

// Actors returns the actors in insertion order
func (s *Scene) Actors() []*Actor {
	out := make([]*Actor, len(s.actors))
	copy(out, s.actors)
	return out
}

// Len is the number of actors in the scene
func (s *Scene) Len() int {
	return len(s.actors)
}

// RemoveAll empties the scene. The camera is left where it is.
func (s *Scene) RemoveAll() {
	s.actors = nil
}

// Bounds returns the box around every actor's current geometry
func (s *Scene) Bounds() (r3.Box, bool) {
	var (
		box   r3.Box
		found bool
	)
	for _, a := range s.actors {
		b, ok := a.Mapper.Update().Bounds()
		if !ok {
			continue
		}
		if !found {
			box, found = b, true
			continue
		}
		box.Min = r3.Vec{X: math.Min(box.Min.X, b.Min.X), Y: math.Min(box.Min.Y, b.Min.Y), Z: math.Min(box.Min.Z, b.Min.Z)}
		box.Max = r3.Vec{X: math.Max(box.Max.X, b.Max.X), Y: math.Max(box.Max.Y, b.Max.Y), Z: math.Max(box.Max.Z, b.Max.Z)}
	}
	return box, found
}

// ResetCamera frames every actor in the scene. An empty scene leaves the
// camera unchanged.
func (s *Scene) ResetCamera() {
	if box, ok := s.Bounds(); ok {
		s.Camera.Reset(box)
	}
}
