package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"ppview/internal/models"
)

// Viewer cuts planar slices out of a scalar field for inspection
type Viewer struct {
	// grid holds the field samples
	grid *models.ScalarGrid

	// lo and hi bound the field; slices are normalized against them so
	// intensities are comparable across planes
	lo float64
	hi float64

	// logScale maps values through log10 before normalizing
	logScale bool
}

// NewViewer creates a slice viewer over grid
func NewViewer(grid *models.ScalarGrid) *Viewer {
	v := &Viewer{grid: grid}
	if len(grid.Data) > 0 {
		v.lo = floats.Min(grid.Data)
		v.hi = floats.Max(grid.Data)
	}
	return v
}

// SetLogScale switches between linear and log10 intensity mapping. Densities
// span many decades, so log mapping usually shows more structure.
func (v *Viewer) SetLogScale(on bool) {
	v.logScale = on
}

// intensity maps a sample to [0, 65535]
func (v *Viewer) intensity(x float64) uint16 {
	lo, hi := v.lo, v.hi
	if v.logScale {
		floor := math.Max(hi*1e-6, math.SmallestNonzeroFloat64)
		x, lo, hi = math.Log10(math.Max(x, floor)), math.Log10(math.Max(lo, floor)), math.Log10(math.Max(hi, floor))
	}
	if hi <= lo {
		return 0
	}
	t := (x - lo) / (hi - lo)
	return uint16(math.Max(0, math.Min(65535, t*65535)))
}

// ExtractSlice extracts the plane at index position orthogonal to axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	nx, ny, nz := v.grid.Shape[0], v.grid.Shape[1], v.grid.Shape[2]
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane: columns are z, rows are y
		if position >= nx {
			return nil, fmt.Errorf("position %d exceeds x samples %d", position, nx)
		}
		img = image.NewGray16(image.Rect(0, 0, nz, ny))
		for y := 0; y < ny; y++ {
			for z := 0; z < nz; z++ {
				img.SetGray16(z, y, color.Gray16{Y: v.intensity(v.grid.At(position, y, z))})
			}
		}

	case "y", "Y":
		// XZ plane: columns are x, rows are z
		if position >= ny {
			return nil, fmt.Errorf("position %d exceeds y samples %d", position, ny)
		}
		img = image.NewGray16(image.Rect(0, 0, nx, nz))
		for z := 0; z < nz; z++ {
			for x := 0; x < nx; x++ {
				img.SetGray16(x, z, color.Gray16{Y: v.intensity(v.grid.At(x, position, z))})
			}
		}

	case "z", "Z":
		// XY plane: columns are x, rows are y
		if position >= nz {
			return nil, fmt.Errorf("position %d exceeds z samples %d", position, nz)
		}
		img = image.NewGray16(image.Rect(0, 0, nx, ny))
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				img.SetGray16(x, y, color.Gray16{Y: v.intensity(v.grid.At(x, y, position))})
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice writes img as PNG, or as JPEG when filename ends in .jpg/.jpeg
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence extracts and saves every plane along axis into outputDir
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.grid.Shape[0]
	case "y", "Y":
		maxPos = v.grid.Shape[1]
	case "z", "Z":
		maxPos = v.grid.Shape[2]
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", strings.ToLower(axis), pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
