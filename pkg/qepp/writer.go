package qepp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"ppview/internal/models"
)

// valuesPerLine matches the layout pp.x uses for the field block
const valuesPerLine = 5

// Write encodes sys in post-processing format. The lattice is written
// explicitly (ibrav 0) with celldm(1) = 1, so every length stays in bohr and
// Decode recovers the same cell. Species are numbered in order of first
// appearance; valence charges are not tracked and are written as zero.
func Write(w io.Writer, sys *models.System) error {
	if sys.Field == nil {
		return fmt.Errorf("system has no field")
	}
	if err := sys.Field.Validate(); err != nil {
		return fmt.Errorf("invalid field: %w", err)
	}
	cell := sys.Cell
	if cell == nil {
		cell = sys.Field.Lattice
	}

	bw := bufio.NewWriter(w)
	shape := sys.Field.Shape

	species := make(map[string]int)
	var labels []string
	for _, a := range sys.Atoms {
		if _, ok := species[a.Label]; !ok {
			labels = append(labels, a.Label)
			species[a.Label] = len(labels)
		}
	}

	title := sys.Title
	if title == "" {
		title = "ppview"
	}
	fmt.Fprintln(bw, title)
	fmt.Fprintf(bw, "%8d%8d%8d%8d%8d%8d%8d%8d\n",
		shape[0], shape[1], shape[2], shape[0], shape[1], shape[2], len(sys.Atoms), len(labels))
	fmt.Fprintf(bw, "%6d%15.8f%15.8f%15.8f%15.8f%15.8f%15.8f\n", 0, 1.0, 0.0, 0.0, 0.0, 0.0, 0.0)
	for i := 0; i < 3; i++ {
		fmt.Fprintf(bw, "%s %s %s\n", formatValue(cell.At(i, 0)), formatValue(cell.At(i, 1)), formatValue(cell.At(i, 2)))
	}
	fmt.Fprintf(bw, "%15.8f%15.8f%15.8f%6d\n", 0.0, 4.0, 0.0, sys.PlotNum)
	for i, l := range labels {
		fmt.Fprintf(bw, "%4d %-4s %9.2f\n", i+1, l, 0.0)
	}
	for i, a := range sys.Atoms {
		fmt.Fprintf(bw, "%4d %s %s %s %4d\n", i+1,
			formatValue(a.Position.X), formatValue(a.Position.Y), formatValue(a.Position.Z),
			species[a.Label])
	}

	for i, v := range sys.Field.Data {
		if i > 0 {
			if i%valuesPerLine == 0 {
				bw.WriteByte('\n')
			} else {
				bw.WriteByte(' ')
			}
		}
		bw.WriteString(formatValue(v))
	}
	bw.WriteByte('\n')

	return bw.Flush()
}

// WriteFile writes sys to path
func WriteFile(path string, sys *models.System) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(file, sys); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// formatValue writes the shortest exponent form that reads back exactly
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'E', -1, 64)
}
