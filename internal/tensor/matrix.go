// Package tensor holds the dense row-major matrices exchanged between the
// spectral front end, the sequence model and the decoder.
package tensor

import (
	"errors"
	"fmt"
)

// ErrShape reports a data length or index that does not fit the matrix shape.
var ErrShape = errors.New("tensor: shape mismatch")

// Matrix is a row-major float32 matrix. The log-mel spectrogram is stored as
// [n_mel, n_frames]; hidden states as [positions, width].
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// New allocates a zeroed rows x cols matrix.
func New(rows, cols int) Matrix {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	return Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// FromData wraps data without copying it.
func FromData(rows, cols int, data []float32) (Matrix, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return Matrix{}, fmt.Errorf("%w: %d values for %dx%d", ErrShape, len(data), rows, cols)
	}
	return Matrix{Rows: rows, Cols: cols, Data: data}, nil
}

// Empty reports whether the matrix holds no values.
func (m Matrix) Empty() bool {
	return m.Rows == 0 || m.Cols == 0
}

// At returns the value at (row, col).
func (m Matrix) At(row, col int) float32 {
	return m.Data[row*m.Cols+col]
}

// Set stores v at (row, col).
func (m Matrix) Set(row, col int, v float32) {
	m.Data[row*m.Cols+col] = v
}

// Row returns a view of a single row.
func (m Matrix) Row(row int) []float32 {
	return m.Data[row*m.Cols : (row+1)*m.Cols]
}

// Narrow copies the column range [start, start+length) into a new matrix.
func (m Matrix) Narrow(start, length int) (Matrix, error) {
	if start < 0 || length < 0 || start+length > m.Cols {
		return Matrix{}, fmt.Errorf("%w: columns [%d, %d) out of %d", ErrShape, start, start+length, m.Cols)
	}
	out := New(m.Rows, length)
	for r := 0; r < m.Rows; r++ {
		copy(out.Data[r*length:(r+1)*length], m.Data[r*m.Cols+start:r*m.Cols+start+length])
	}
	return out, nil
}
