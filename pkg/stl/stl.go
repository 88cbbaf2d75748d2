package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// headerSize is the fixed size of the binary STL header
const headerSize = 80

// SaveToSTL writes triangles to filename as binary STL
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}

	if err := WriteSTL(file, triangles, "ppview isosurface"); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteSTL encodes triangles as binary STL. The header is truncated to 80
// bytes and padded with zeros.
func WriteSTL(w io.Writer, triangles []Triangle, header string) error {
	bw := bufio.NewWriter(w)

	var hdr [headerSize]byte
	copy(hdr[:], header)
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write STL header: %w", err)
	}

	if uint64(len(triangles)) > math.MaxUint32 {
		return fmt.Errorf("too many triangles for STL: %d", len(triangles))
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("failed to write triangle count: %w", err)
	}

	// Each facet is 12 float32 values followed by a zero attribute word
	var rec [50]byte
	for _, t := range triangles {
		off := 0
		for _, v := range [4][3]float32{t.Normal, t.Vertex1, t.Vertex2, t.Vertex3} {
			for _, c := range v {
				binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(c))
				off += 4
			}
		}
		rec[48], rec[49] = 0, 0
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("failed to write triangle: %w", err)
		}
	}

	return bw.Flush()
}
