// Package recordstore is the CRUD surface over the three managed tables.
// Writes to merged_admin cascade to merged_nonadmin inside one transaction,
// and every committed write emits a change event.
package recordstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/WilliamDuke02/databaseProject/internal/repositories/mergedadmin"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/mergednonadmin"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/tableview"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/unmergedvin"
	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/events"
	"github.com/WilliamDuke02/databaseProject/pkg/frame"
	"github.com/WilliamDuke02/databaseProject/pkg/metrics"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const (
	opInsert = "insert"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
	opExport = "export"
)

// Record is a row of any managed table.
type Record interface {
	Values() []any
	Strings() []string
}

type Store struct {
	db       database.DB
	admin    mergedadmin.MergedAdminRepository
	nonadmin mergednonadmin.MergedNonAdminRepository
	unmerged unmergedvin.UnmergedVINRepository
	emitter  *events.Emitter
	logger   ectologger.Logger

	// keyMu serializes surrogate key allocation within the process.
	keyMu sync.Mutex
}

type Option func(*Store)

func WithEmitter(emitter *events.Emitter) Option {
	return func(s *Store) {
		s.emitter = emitter
	}
}

func NewStore(db database.DB, logger ectologger.Logger, opts ...Option) *Store {
	s := &Store{
		db:       db,
		admin:    mergedadmin.NewRepository(db, logger),
		nonadmin: mergednonadmin.NewRepository(db, logger),
		unmerged: unmergedvin.NewRepository(db, logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.emitter == nil {
		s.emitter = events.NewEmitter(nil, logger)
	}
	return s
}

// Insert dispatches on table. values maps column names to raw input.
func (s *Store) Insert(ctx context.Context, table models.Table, values models.Values) (Record, error) {
	switch table {
	case models.TableMergedAdmin:
		return record(s.InsertAdmin(ctx, values))
	case models.TableMergedNonAdmin:
		return record(s.InsertNonAdmin(ctx, values))
	case models.TableUnmergedVINs:
		return record(s.InsertUnmerged(ctx, values))
	}
	return nil, unknownTable(table)
}

// Get reads one row. id is the VIN, or the surrogate key for merged_nonadmin.
func (s *Store) Get(ctx context.Context, table models.Table, id string) (Record, error) {
	switch table {
	case models.TableMergedAdmin:
		return record(s.GetAdmin(ctx, id))
	case models.TableMergedNonAdmin:
		key, err := models.ParseSurrogateKey(id)
		if err != nil {
			return nil, err
		}
		return record(s.GetNonAdmin(ctx, key))
	case models.TableUnmergedVINs:
		return record(s.GetUnmerged(ctx, id))
	}
	return nil, unknownTable(table)
}

func (s *Store) Update(ctx context.Context, table models.Table, id string, values models.Values) (Record, error) {
	switch table {
	case models.TableMergedAdmin:
		return record(s.UpdateAdmin(ctx, id, values))
	case models.TableMergedNonAdmin:
		key, err := models.ParseSurrogateKey(id)
		if err != nil {
			return nil, err
		}
		return record(s.UpdateNonAdmin(ctx, key, values))
	case models.TableUnmergedVINs:
		return record(s.UpdateUnmerged(ctx, id, values))
	}
	return nil, unknownTable(table)
}

func (s *Store) Delete(ctx context.Context, table models.Table, id string) error {
	switch table {
	case models.TableMergedAdmin:
		return s.DeleteAdmin(ctx, id)
	case models.TableMergedNonAdmin:
		key, err := models.ParseSurrogateKey(id)
		if err != nil {
			return err
		}
		return s.DeleteNonAdmin(ctx, key)
	case models.TableUnmergedVINs:
		return s.DeleteUnmerged(ctx, id)
	}
	return unknownTable(table)
}

// Export returns a snapshot of table restricted by filters. The frame header
// is the table's column list.
func (s *Store) Export(ctx context.Context, table models.Table, filters []models.Filter) (out *frame.Frame, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.Export")
	defer span.End()
	defer func() { metrics.RecordOperation(table.String(), opExport, err) }()

	if err := models.ValidateFilters(table, filters); err != nil {
		return nil, err
	}

	var recs []Record
	switch table {
	case models.TableMergedAdmin:
		rows, err := s.admin.List(ctx, filters)
		if err != nil {
			return nil, err
		}
		recs = asRecords(rows)
	case models.TableMergedNonAdmin:
		rows, err := s.nonadmin.List(ctx, filters)
		if err != nil {
			return nil, err
		}
		recs = asRecords(rows)
	case models.TableUnmergedVINs:
		rows, err := s.unmerged.List(ctx, filters)
		if err != nil {
			return nil, err
		}
		recs = asRecords(rows)
	default:
		return nil, unknownTable(table)
	}

	out = frame.New(table.Columns()...)
	for _, rec := range recs {
		out.Append(rec.Strings())
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"table":   table.String(),
		"filters": len(filters),
		"rows":    out.Len(),
	}).Debug("exported table snapshot")

	return out, nil
}

// DistinctValues lists the distinct values of every column of table.
func (s *Store) DistinctValues(ctx context.Context, table models.Table) ([]models.ColumnValues, error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.DistinctValues")
	defer span.End()

	if _, err := models.ParseTable(table.String()); err != nil {
		return nil, err
	}

	out := make([]models.ColumnValues, 0, len(table.Columns()))
	for _, col := range table.Columns() {
		values, err := tableview.Distinct(ctx, s.db, table, col)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("column", col).Error("failed to read distinct values")
			return nil, err
		}
		out = append(out, models.ColumnValues{Column: col, Values: values})
	}
	return out, nil
}

// CountBy counts rows of table per distinct groupColumn value. An empty
// filterColumn, or a filterValue of models.AnyValue, counts every row.
func (s *Store) CountBy(ctx context.Context, table models.Table, groupColumn, filterColumn, filterValue string) ([]models.CategoryCount, error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.CountBy")
	defer span.End()

	if _, err := models.ParseTable(table.String()); err != nil {
		return nil, err
	}

	counts, err := tableview.CountBy(ctx, s.db, table, groupColumn, models.Filter{Column: filterColumn, Value: filterValue})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// record keeps a nil pointer from becoming a non-nil Record.
func record[T Record](rec T, err error) (Record, error) {
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func asRecords[T Record](rows []T) []Record {
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

// nextKey returns one past the largest surrogate key of both merged tables.
// Callers hold keyMu and run inside the transaction that inserts the key.
func (s *Store) nextKey(ctx context.Context) (int64, error) {
	maxAdmin, err := s.admin.MaxSurrogateKey(ctx)
	if err != nil {
		return 0, err
	}
	maxNonAdmin, err := s.nonadmin.MaxSurrogateKey(ctx)
	if err != nil {
		return 0, err
	}
	return max(maxAdmin, maxNonAdmin) + 1, nil
}

func (s *Store) begin(ctx context.Context) (context.Context, database.Tx, error) {
	return s.db.GetTx(ctx, &sql.TxOptions{})
}

func (s *Store) commit(ctx context.Context, tx database.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// writeError maps constraint violations to 409 and leaves anything else as is.
func writeError(err error, table models.Table) error {
	if database.IsUniqueViolation(err) {
		return httperror.NewHTTPErrorf(http.StatusConflict, "row already exists in %s", table)
	}
	return err
}

func notFound(table models.Table, id any) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, "%s row %v not found", table, id)
}

func unknownTable(table models.Table) error {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown table %q", table)
}
