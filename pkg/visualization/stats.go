package visualization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ppview/internal/models"
)

// ThresholdCount is the number of samples at or above one slider threshold
type ThresholdCount struct {
	Exponent int
	Value    float64
	Count    int
}

// FieldSummary describes the distribution of a scalar field
type FieldSummary struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64

	// Thresholds covers the slider stops 10^-5 ... 10^-1
	Thresholds []ThresholdCount
}

// Summarize computes the distribution of grid's samples
func Summarize(grid *models.ScalarGrid) (FieldSummary, error) {
	if err := grid.Validate(); err != nil {
		return FieldSummary{}, err
	}

	var s FieldSummary
	s.Min = floats.Min(grid.Data)
	s.Max = floats.Max(grid.Data)
	s.Mean, s.StdDev = stat.MeanStdDev(grid.Data, nil)
	if len(grid.Data) == 1 {
		s.StdDev = 0
	}

	for n := -5; n <= -1; n++ {
		iso := math.Pow(10, float64(n))
		count := 0
		for _, v := range grid.Data {
			if v >= iso {
				count++
			}
		}
		s.Thresholds = append(s.Thresholds, ThresholdCount{Exponent: n, Value: iso, Count: count})
	}
	return s, nil
}

// PlanarAverage returns the mean of each plane orthogonal to axis (0, 1 or 2),
// one value per sample along that axis
func PlanarAverage(grid *models.ScalarGrid, axis int) ([]float64, error) {
	if axis < 0 || axis > 2 {
		return nil, fmt.Errorf("invalid axis %d (must be 0, 1, or 2)", axis)
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	n := grid.Shape[axis]
	sums := make([]float64, n)
	for k := 0; k < grid.Shape[2]; k++ {
		for j := 0; j < grid.Shape[1]; j++ {
			for i := 0; i < grid.Shape[0]; i++ {
				idx := [3]int{i, j, k}[axis]
				sums[idx] += grid.At(i, j, k)
			}
		}
	}

	perPlane := float64(grid.Len() / n)
	floats.Scale(1/perPlane, sums)
	return sums, nil
}
