package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"sort"

	"golang.org/x/image/vector"
	"gonum.org/v1/gonum/spatial/r3"

	"ppview/pkg/scene"
)

// SnapshotRenderer rasterizes a scene from its camera and writes a PNG.
//
// Triangles are flat shaded with a headlight and drawn back to front, so
// translucent surfaces blend over whatever lies behind them.
type SnapshotRenderer struct {
	// Path is the PNG written on every Render
	Path string

	// Width and Height are the image size in pixels
	Width  int
	Height int

	// LineWidth is the edge thickness in pixels
	LineWidth float32
}

// NewSnapshotRenderer creates a renderer writing width x height PNGs to path
func NewSnapshotRenderer(path string, width, height int) *SnapshotRenderer {
	return &SnapshotRenderer{
		Path:      path,
		Width:     width,
		Height:    height,
		LineWidth: 1,
	}
}

// Render implements Presenter
func (r *SnapshotRenderer) Render(s *scene.Scene) error {
	img := r.Draw(s)

	file, err := os.Create(r.Path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return file.Close()
}

// primitive is a projected triangle or edge awaiting drawing
type primitive struct {
	pts   [][2]float32
	depth float64
	fill  color.NRGBA
}

// Draw rasterizes the scene into a new image
func (r *SnapshotRenderer) Draw(s *scene.Scene) *image.RGBA {
	w, h := max(r.Width, 1), max(r.Height, 1)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(toNRGBA(s.Background, 1)), image.Point{}, draw.Src)

	cam := s.Camera
	_, _, forward := cam.Basis()
	aspect := float64(w) / float64(h)

	toScreen := func(p r3.Vec) ([2]float32, float64, bool) {
		x, y, depth, ok := cam.Project(p, aspect)
		if !ok {
			return [2]float32{}, 0, false
		}
		return [2]float32{
			float32((x*0.5 + 0.5) * float64(w)),
			float32((0.5 - y*0.5) * float64(h)),
		}, depth, true
	}

	var prims []primitive
	for _, a := range s.Actors() {
		pd := a.Mapper.Update()
		if pd == nil {
			continue
		}
		prop := a.Property

		lo, hi := scalarRange(pd.Scalars)
		byScalar := a.Mapper.ScalarVisibility && len(pd.Scalars) == len(pd.Points) && len(pd.Scalars) > 0

		for i, t := range pd.Triangles {
			var (
				pts   = make([][2]float32, 3)
				depth float64
				ok    = true
			)
			for v := 0; v < 3; v++ {
				sp, d, vis := toScreen(pd.Points[t[v]])
				if !vis {
					ok = false
					break
				}
				pts[v] = sp
				depth += d / 3
			}
			if !ok {
				continue
			}

			n := triangleNormal(pd, i)
			shade := 0.25 + 0.75*math.Abs(r3.Dot(n, forward))

			base := prop.Color
			if byScalar {
				base = rampColor((pd.Scalars[t[0]]+pd.Scalars[t[1]]+pd.Scalars[t[2]])/3, lo, hi)
			}
			c := scene.Color{base[0] * shade, base[1] * shade, base[2] * shade}
			prims = append(prims, primitive{pts: pts, depth: depth, fill: toNRGBA(c, prop.Opacity)})
		}

		if !prop.EdgeVisible {
			continue
		}
		for _, l := range pd.Lines {
			p0, d0, ok0 := toScreen(pd.Points[l[0]])
			p1, d1, ok1 := toScreen(pd.Points[l[1]])
			if !ok0 || !ok1 {
				continue
			}
			prims = append(prims, primitive{
				pts:   lineQuad(p0, p1, r.LineWidth),
				depth: (d0+d1)/2 - 1e-6,
				fill:  toNRGBA(prop.EdgeColor, 1),
			})
		}
	}

	// Painter's order: farthest first
	sort.SliceStable(prims, func(i, j int) bool { return prims[i].depth > prims[j].depth })

	z := vector.NewRasterizer(w, h)
	for _, p := range prims {
		z.Reset(w, h)
		z.DrawOp = draw.Over
		z.MoveTo(p.pts[0][0], p.pts[0][1])
		for _, q := range p.pts[1:] {
			z.LineTo(q[0], q[1])
		}
		z.ClosePath()
		z.Draw(img, img.Bounds(), image.NewUniform(p.fill), image.Point{})
	}

	return img
}

// triangleNormal returns the stored normal of triangle i or computes it
func triangleNormal(pd *scene.PolyData, i int) r3.Vec {
	if i < len(pd.Normals) && r3.Norm(pd.Normals[i]) > 0 {
		return pd.Normals[i]
	}
	t := pd.Triangles[i]
	n := r3.Cross(r3.Sub(pd.Points[t[1]], pd.Points[t[0]]), r3.Sub(pd.Points[t[2]], pd.Points[t[0]]))
	if r3.Norm(n) == 0 {
		return r3.Vec{}
	}
	return r3.Unit(n)
}

// lineQuad widens a segment into a rectangle of the given width
func lineQuad(a, b [2]float32, width float32) [][2]float32 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := float32(math.Hypot(float64(dx), float64(dy)))
	if l == 0 {
		dx, dy, l = 1, 0, 1
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	return [][2]float32{
		{a[0] + nx, a[1] + ny},
		{b[0] + nx, b[1] + ny},
		{b[0] - nx, b[1] - ny},
		{a[0] - nx, a[1] - ny},
	}
}

func scalarRange(v []float64) (lo, hi float64) {
	if len(v) == 0 {
		return 0, 0
	}
	lo, hi = v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// rampColor maps v in [lo, hi] onto a blue-green-red ramp; a flat range
// maps to the middle
func rampColor(v, lo, hi float64) scene.Color {
	t := 0.5
	if hi > lo {
		t = (v - lo) / (hi - lo)
	}
	t = math.Max(0, math.Min(1, t))
	if t < 0.5 {
		return scene.Color{0, 2 * t, 1 - 2*t}
	}
	return scene.Color{2*t - 1, 2 - 2*t, 0}
}

func toNRGBA(c scene.Color, opacity float64) color.NRGBA {
	clamp := func(v float64) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return color.NRGBA{R: clamp(c[0]), G: clamp(c[1]), B: clamp(c[2]), A: clamp(opacity)}
}

func vec32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
