// Package frame is the in-memory header + rows table passed between
// pipeline stages.
package frame

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
)

type Frame struct {
	Header []string
	Rows   [][]string
}

func New(header ...string) *Frame {
	return &Frame{Header: slices.Clone(header)}
}

// Len returns the number of data rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

func (f *Frame) Width() int {
	return len(f.Header)
}

// Index returns the position of column name, or -1.
func (f *Frame) Index(name string) int {
	return slices.Index(f.Header, name)
}

// Append adds a row, padding or truncating it to the header width.
func (f *Frame) Append(row []string) {
	f.Rows = append(f.Rows, fit(row, len(f.Header)))
}

// Value returns row[col], or "" when col is out of range.
func (f *Frame) Value(row, col int) string {
	if col < 0 || col >= len(f.Rows[row]) {
		return ""
	}
	return f.Rows[row][col]
}

// Column returns every value of column col in row order.
func (f *Frame) Column(col int) []string {
	out := make([]string, len(f.Rows))
	for i := range f.Rows {
		out[i] = f.Value(i, col)
	}
	return out
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

// WriteCSV writes the frame, with its header row when withHeader is set.
func (f *Frame) WriteCSV(w io.Writer, withHeader bool) error {
	cw := csv.NewWriter(w)
	if withHeader {
		if err := cw.Write(f.Header); err != nil {
			return err
		}
	}
	if err := cw.WriteAll(f.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile writes the frame with its header to path.
func (f *Frame) WriteFile(path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()

	return f.WriteCSV(file, true)
}
