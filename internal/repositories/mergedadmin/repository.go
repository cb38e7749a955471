package mergedadmin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectolinq"

	"github.com/WilliamDuke02/databaseProject/internal/repositories/tableview"
	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const table = models.TableMergedAdmin

// MergedAdminRepository defines the operations on merged_admin
type MergedAdminRepository interface {
	Insert(ctx context.Context, rec models.AdminRecord) error
	InsertBatch(ctx context.Context, recs []models.AdminRecord) (int, error)
	GetByVIN(ctx context.Context, vin string) (*models.AdminRecord, error)
	List(ctx context.Context, filters []models.Filter) ([]models.AdminRecord, error)
	Update(ctx context.Context, rec models.AdminRecord) (bool, error)
	DeleteByVIN(ctx context.Context, vin string) (bool, error)
	MaxSurrogateKey(ctx context.Context) (int64, error)
}

// Repository implements MergedAdminRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Insert(ctx context.Context, rec models.AdminRecord) error {
	ctx, span := tracing.StartSpan(ctx, "MergedAdminRepository.Insert")
	defer span.End()

	_, err := r.InsertBatch(ctx, []models.AdminRecord{rec})
	return err
}

// InsertBatch writes recs with multi-row inserts on the context transaction, if any.
func (r *Repository) InsertBatch(ctx context.Context, recs []models.AdminRecord) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedAdminRepository.InsertBatch")
	defer span.End()

	rows := ectolinq.Map(recs, func(rec models.AdminRecord) []any { return rec.Values() })

	n, err := database.InsertBatches(ctx, database.QueryerFromContext(ctx, r.db), r.db.Flavor(), table.String(), table.Columns(), rows, database.DefaultBatchSize)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("rows", len(recs)).Error("failed to insert merged_admin rows")
		return n, fmt.Errorf("failed to insert merged_admin rows: %w", err)
	}

	r.logger.WithContext(ctx).WithField("rows", n).Debug("inserted merged_admin rows")
	return n, nil
}

// GetByVIN returns nil, nil when no row has vin.
func (r *Repository) GetByVIN(ctx context.Context, vin string) (*models.AdminRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedAdminRepository.GetByVIN")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(table.Columns()...)
	sb.From(table.String())
	sb.Where(sb.Equal(models.ColumnVIN, vin))

	query, args := sb.Build()

	var rec models.AdminRecord
	err := database.QueryerFromContext(ctx, r.db).GetContext(ctx, &rec, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get merged_admin row by vin")
		return nil, fmt.Errorf("failed to get merged_admin row: %w", err)
	}

	return &rec, nil
}

func (r *Repository) List(ctx context.Context, filters []models.Filter) ([]models.AdminRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedAdminRepository.List")
	defer span.End()

	query, args, err := tableview.Select(r.db, table, filters)
	if err != nil {
		return nil, err
	}

	recs := []models.AdminRecord{}
	if err := database.QueryerFromContext(ctx, r.db).SelectContext(ctx, &recs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list merged_admin rows")
		return nil, fmt.Errorf("failed to list merged_admin rows: %w", err)
	}

	return recs, nil
}

// Update rewrites every attribute of the row identified by rec.VIN and
// reports whether a row matched.
func (r *Repository) Update(ctx context.Context, rec models.AdminRecord) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedAdminRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder(r.db)
	ub.Update(table.String())
	assignments := []string{ub.Assign(models.ColumnZip, rec.Zip)}
	for _, col := range models.VehicleColumns() {
		assignments = append(assignments, ub.Assign(col, rec.Get(col)))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal(models.ColumnVIN, rec.VIN))

	query, args := ub.Build()

	res, err := database.QueryerFromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to update merged_admin row")
		return false, fmt.Errorf("failed to update merged_admin row: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"vin_nr":        rec.VIN,
		"surrogate_key": rec.SurrogateKey,
	}).Info("updated merged_admin row")

	return affected > 0, nil
}

// DeleteByVIN reports whether a row was removed.
func (r *Repository) DeleteByVIN(ctx context.Context, vin string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedAdminRepository.DeleteByVIN")
	defer span.End()

	dbld := database.NewDeleteBuilder(r.db)
	dbld.DeleteFrom(table.String())
	dbld.Where(dbld.Equal(models.ColumnVIN, vin))

	query, args := dbld.Build()

	res, err := database.QueryerFromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete merged_admin row")
		return false, fmt.Errorf("failed to delete merged_admin row: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

func (r *Repository) MaxSurrogateKey(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedAdminRepository.MaxSurrogateKey")
	defer span.End()

	return database.MaxInt64(ctx, database.QueryerFromContext(ctx, r.db), r.db.Flavor(), table.String(), models.ColumnSurrogateKey)
}
