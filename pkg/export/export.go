// Package export writes table snapshots as headerless CSV files.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectologger"

	"github.com/WilliamDuke02/databaseProject/pkg/frame"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

// Snapshotter is satisfied by *recordstore.Store.
type Snapshotter interface {
	Export(ctx context.Context, table models.Table, filters []models.Filter) (*frame.Frame, error)
}

// FileName is the export file written for table.
func FileName(table models.Table) string {
	return table.String() + "_export.csv"
}

// WriteCSV writes the rows of f without a header.
func WriteCSV(w io.Writer, f *frame.Frame) error {
	return f.WriteCSV(w, false)
}

// ToFile snapshots table through store and writes it to dir. It returns the
// path written and the number of rows.
func ToFile(ctx context.Context, store Snapshotter, logger ectologger.Logger, table models.Table, filters []models.Filter, dir string) (string, int, error) {
	ctx, span := tracing.StartSpan(ctx, "export.ToFile")
	defer span.End()

	snapshot, err := store.Export(ctx, table, filters)
	if err != nil {
		return "", 0, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create export dir: %w", err)
	}

	path := filepath.Join(dir, FileName(table))
	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	if err := WriteCSV(file, snapshot); err != nil {
		return "", 0, fmt.Errorf("failed to write export file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close export file: %w", err)
	}

	logger.WithContext(ctx).WithFields(map[string]any{
		"table": table.String(),
		"path":  path,
		"rows":  snapshot.Len(),
	}).Info("exported table")

	return path, snapshot.Len(), nil
}
