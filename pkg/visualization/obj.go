package visualization

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ppview/pkg/scene"
)

// OBJExporter writes the scene as a Wavefront OBJ file with a companion MTL
// file carrying each actor's color and opacity
type OBJExporter struct {
	// Path is the .obj file; the material library is written next to it
	// with the extension replaced by .mtl
	Path string
}

// Render implements Presenter
func (e *OBJExporter) Render(s *scene.Scene) error {
	mtlPath := strings.TrimSuffix(e.Path, filepath.Ext(e.Path)) + ".mtl"

	if err := writeFile(mtlPath, func(w io.Writer) error { return WriteMTL(w, s) }); err != nil {
		return err
	}
	return writeFile(e.Path, func(w io.Writer) error { return WriteOBJ(w, filepath.Base(mtlPath), s) })
}

func writeFile(path string, fn func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriter(file)
	if err := fn(bw); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return file.Close()
}

// materialName is the MTL name of the i-th actor
func materialName(i int) string {
	return fmt.Sprintf("actor%d", i)
}

// WriteMTL writes one material per actor
func WriteMTL(w io.Writer, s *scene.Scene) error {
	for i, a := range s.Actors() {
		c := a.Property.Color
		if _, err := fmt.Fprintf(w, "newmtl %s\nKa 0 0 0\nKd %.4f %.4f %.4f\nd %.4f\n\n",
			materialName(i), c[0], c[1], c[2], a.Property.Opacity); err != nil {
			return err
		}
	}
	return nil
}

// WriteOBJ writes every actor as a named object. Vertex indices are global
// and one-based as the format requires; edge lines are written as l records.
func WriteOBJ(w io.Writer, mtlLib string, s *scene.Scene) error {
	if _, err := fmt.Fprintf(w, "mtllib %s\n", mtlLib); err != nil {
		return err
	}

	offset := 1
	for i, a := range s.Actors() {
		pd := a.Mapper.Update()
		if pd == nil {
			continue
		}

		name := a.Name
		if name == "" {
			name = materialName(i)
		}
		if _, err := fmt.Fprintf(w, "o %s_%d\nusemtl %s\n", strings.ReplaceAll(name, " ", "_"), i, materialName(i)); err != nil {
			return err
		}

		for _, p := range pd.Points {
			if _, err := fmt.Fprintf(w, "v %.6f %.6f %.6f\n", p.X, p.Y, p.Z); err != nil {
				return err
			}
		}
		for _, t := range pd.Triangles {
			if _, err := fmt.Fprintf(w, "f %d %d %d\n", t[0]+offset, t[1]+offset, t[2]+offset); err != nil {
				return err
			}
		}
		if a.Property.EdgeVisible {
			for _, l := range pd.Lines {
				if _, err := fmt.Fprintf(w, "l %d %d\n", l[0]+offset, l[1]+offset); err != nil {
					return err
				}
			}
		}
		offset += len(pd.Points)
	}
	return nil
}
