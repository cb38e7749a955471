package mergednonadmin

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

const table = models.TableMergedNonAdmin

// MergedNonAdminRepository defines the operations on merged_nonadmin
type MergedNonAdminRepository interface {
	Insert(ctx context.Context, rec models.NonAdminRecord) error
	InsertBatch(ctx context.Context, recs []models.NonAdminRecord) (int, error)
	GetByKey(ctx context.Context, key int64) (*models.NonAdminRecord, error)
	List(ctx context.Context, filters []models.Filter) ([]models.NonAdminRecord, error)
	Update(ctx context.Context, rec models.NonAdminRecord) (bool, error)
	DeleteByKey(ctx context.Context, key int64) (bool, error)
	MaxSurrogateKey(ctx context.Context) (int64, error)
}

// Repository implements MergedNonAdminRepository
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

func (r *Repository) Insert(ctx context.Context, rec models.NonAdminRecord) error {
	ctx, span := tracing.StartSpan(ctx, "MergedNonAdminRepository.Insert")
	defer span.End()

	_, err := r.InsertBatch(ctx, []models.NonAdminRecord{rec})
	return err
}

func (r *Repository) InsertBatch(ctx context.Context, recs []models.NonAdminRecord) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedNonAdminRepository.InsertBatch")
	defer span.End()

	rows := ectolinq.Map(recs, func(rec models.NonAdminRecord) []any { return rec.Values() })

	n, err := database.InsertBatches(ctx, database.QueryerFromContext(ctx, r.db), r.db.Flavor(), table.String(), table.Columns(), rows, database.DefaultBatchSize)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("rows", len(recs)).Error("failed to insert merged_nonadmin rows")
		return n, fmt.Errorf("failed to insert merged_nonadmin rows: %w", err)
	}

	r.logger.WithContext(ctx).WithField("rows", n).Debug("inserted merged_nonadmin rows")
	return n, nil
}

// GetByKey returns nil, nil when no row has key.
func (r *Repository) GetByKey(ctx context.Context, key int64) (*models.NonAdminRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedNonAdminRepository.GetByKey")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(table.Columns()...)
	sb.From(table.String())
	sb.Where(sb.Equal(models.ColumnSurrogateKey, key))

	query, args := sb.Build()

	var rec models.NonAdminRecord
	err := database.QueryerFromContext(ctx, r.db).GetContext(ctx, &rec, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get merged_nonadmin row by key")
		return nil, fmt.Errorf("failed to get merged_nonadmin row: %w", err)
	}

	return &rec, nil
}

func (r *Repository) List(ctx context.Context, filters []models.Filter) ([]models.NonAdminRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedNonAdminRepository.List")
	defer span.End()

	query, args, err := tableview.Select(r.db, table, filters)
	if err != nil {
		return nil, err
	}

	recs := []models.NonAdminRecord{}
	if err := database.QueryerFromContext(ctx, r.db).SelectContext(ctx, &recs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list merged_nonadmin rows")
		return nil, fmt.Errorf("failed to list merged_nonadmin rows: %w", err)
	}

	return recs, nil
}

// Update rewrites every attribute of the row keyed by rec.SurrogateKey.
func (r *Repository) Update(ctx context.Context, rec models.NonAdminRecord) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedNonAdminRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder(r.db)
	ub.Update(table.String())
	assignments := []string{ub.Assign(models.ColumnZip, rec.Zip)}
	for _, col := range models.VehicleColumns() {
		assignments = append(assignments, ub.Assign(col, rec.Get(col)))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal(models.ColumnSurrogateKey, rec.SurrogateKey))

	query, args := ub.Build()

	res, err := database.QueryerFromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to update merged_nonadmin row")
		return false, fmt.Errorf("failed to update merged_nonadmin row: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	r.logger.WithContext(ctx).WithField("surrogate_key", rec.SurrogateKey).Info("updated merged_nonadmin row")

	return affected > 0, nil
}

func (r *Repository) DeleteByKey(ctx context.Context, key int64) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedNonAdminRepository.DeleteByKey")
	defer span.End()

	dbld := database.NewDeleteBuilder(r.db)
	dbld.DeleteFrom(table.String())
	dbld.Where(dbld.Equal(models.ColumnSurrogateKey, key))

	query, args := dbld.Build()

	res, err := database.QueryerFromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete merged_nonadmin row")
		return false, fmt.Errorf("failed to delete merged_nonadmin row: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}

func (r *Repository) MaxSurrogateKey(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "MergedNonAdminRepository.MaxSurrogateKey")
	defer span.End()

	return database.MaxInt64(ctx, database.QueryerFromContext(ctx, r.db), r.db.Flavor(), table.String(), models.ColumnSurrogateKey)
}
