package reconcile

import "github.com/WilliamDuke02/databaseProject/pkg/frame"

// Dedup keeps the first row for each value of column and drops the rest,
// preserving order. It returns a new frame and the number of dropped rows.
func Dedup(f *frame.Frame, column int) (*frame.Frame, int) {
	out := frame.New(f.Header...)
	seen := make(map[string]struct{}, f.Len())
	dropped := 0
	for i, row := range f.Rows {
		v := f.Value(i, column)
		if _, ok := seen[v]; ok {
			dropped++
			continue
		}
		seen[v] = struct{}{}
		out.Rows = append(out.Rows, row)
	}
	return out, dropped
}
