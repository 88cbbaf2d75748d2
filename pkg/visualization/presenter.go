package visualization

import (
	"errors"
	"fmt"

	"ppview/pkg/scene"
	"ppview/pkg/stl"
)

// Presenter draws a scene somewhere. It stands in for the render window.
type Presenter interface {
	Render(s *scene.Scene) error
}

// MultiPresenter renders to every presenter in turn and joins their errors
type MultiPresenter []Presenter

// Render implements Presenter
func (m MultiPresenter) Render(s *scene.Scene) error {
	var errs []error
	for _, p := range m {
		if err := p.Render(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// STLExporter writes the triangles of every actor to a binary STL file
type STLExporter struct {
	Path string
}

// Render implements Presenter
func (e *STLExporter) Render(s *scene.Scene) error {
	if err := stl.SaveToSTL(e.Path, SceneTriangles(s)); err != nil {
		return fmt.Errorf("export %s: %w", e.Path, err)
	}
	return nil
}

// SceneTriangles flattens the current geometry of every actor into STL facets
func SceneTriangles(s *scene.Scene) []stl.Triangle {
	var out []stl.Triangle
	for _, a := range s.Actors() {
		pd := a.Mapper.Update()
		if pd == nil {
			continue
		}
		for i, t := range pd.Triangles {
			tri := stl.Triangle{
				Vertex1: vec32(pd.Points[t[0]]),
				Vertex2: vec32(pd.Points[t[1]]),
				Vertex3: vec32(pd.Points[t[2]]),
			}
			if i < len(pd.Normals) {
				tri.Normal = vec32(pd.Normals[i])
			}
			out = append(out, tri)
		}
	}
	return out
}
