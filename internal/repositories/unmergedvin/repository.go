package unmergedvin

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectolinq"

	"github.com/WilliamDuke02/databaseProject/internal/repositories/tableview"
	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const table = models.TableUnmergedVINs

// UnmergedVINRepository defines the operations on unmerged_vins. The VIN is
// not unique here: the source export may repeat it.
type UnmergedVINRepository interface {
	Insert(ctx context.Context, rec models.UnmergedRecord) error
	InsertBatch(ctx context.Context, recs []models.UnmergedRecord) (int, error)
	GetByVIN(ctx context.Context, vin string) (*models.UnmergedRecord, error)
	List(ctx context.Context, filters []models.Filter) ([]models.UnmergedRecord, error)
	Update(ctx context.Context, rec models.UnmergedRecord) (int64, error)
	DeleteByVIN(ctx context.Context, vin string) (int64, error)
	MaxSurrogateKey(ctx context.Context) (int64, error)
}

// Repository implements UnmergedVINRepository
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

func (r *Repository) Insert(ctx context.Context, rec models.UnmergedRecord) error {
	ctx, span := tracing.StartSpan(ctx, "UnmergedVINRepository.Insert")
	defer span.End()

	_, err := r.InsertBatch(ctx, []models.UnmergedRecord{rec})
	return err
}

func (r *Repository) InsertBatch(ctx context.Context, recs []models.UnmergedRecord) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "UnmergedVINRepository.InsertBatch")
	defer span.End()

	rows := ectolinq.Map(recs, func(rec models.UnmergedRecord) []any { return rec.Values() })

	n, err := database.InsertBatches(ctx, database.QueryerFromContext(ctx, r.db), r.db.Flavor(), table.String(), table.Columns(), rows, database.DefaultBatchSize)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("rows", len(recs)).Error("failed to insert unmerged_vins rows")
		return n, fmt.Errorf("failed to insert unmerged_vins rows: %w", err)
	}

	r.logger.WithContext(ctx).WithField("rows", n).Debug("inserted unmerged_vins rows")
	return n, nil
}

// GetByVIN returns the first row for vin, or nil, nil.
func (r *Repository) GetByVIN(ctx context.Context, vin string) (*models.UnmergedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "UnmergedVINRepository.GetByVIN")
	defer span.End()

	recs, err := r.List(ctx, []models.Filter{{Column: models.ColumnVIN, Value: vin}})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

func (r *Repository) List(ctx context.Context, filters []models.Filter) ([]models.UnmergedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "UnmergedVINRepository.List")
	defer span.End()

	query, args, err := tableview.Select(r.db, table, filters)
	if err != nil {
		return nil, err
	}

	recs := []models.UnmergedRecord{}
	if err := database.QueryerFromContext(ctx, r.db).SelectContext(ctx, &recs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list unmerged_vins rows")
		return nil, fmt.Errorf("failed to list unmerged_vins rows: %w", err)
	}

	return recs, nil
}

// Update rewrites the non-identifier columns of every row with rec.VIN and
// returns how many rows changed.
func (r *Repository) Update(ctx context.Context, rec models.UnmergedRecord) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "UnmergedVINRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder(r.db)
	ub.Update(table.String())
	ub.Set(
		ub.Assign("make_of_car", rec.MakeOfCar),
		ub.Assign("model_short", rec.ModelShort),
		ub.Assign("model_year", rec.ModelYear),
		ub.Assign("key1", rec.Key1),
		ub.Assign("key2", rec.Key2),
		ub.Assign(models.ColumnSurrogateKey, rec.SurrogateKey),
	)
	ub.Where(ub.Equal(models.ColumnVIN, rec.VIN))

	query, args := ub.Build()

	res, err := database.QueryerFromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to update unmerged_vins row")
		return 0, fmt.Errorf("failed to update unmerged_vins row: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"vin_nr": rec.VIN,
		"rows":   affected,
	}).Info("updated unmerged_vins row")

	return affected, nil
}

func (r *Repository) DeleteByVIN(ctx context.Context, vin string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "UnmergedVINRepository.DeleteByVIN")
	defer span.End()

	dbld := database.NewDeleteBuilder(r.db)
	dbld.DeleteFrom(table.String())
	dbld.Where(dbld.Equal(models.ColumnVIN, vin))

	query, args := dbld.Build()

	res, err := database.QueryerFromContext(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete unmerged_vins row")
		return 0, fmt.Errorf("failed to delete unmerged_vins row: %w", err)
	}

	return res.RowsAffected()
}

func (r *Repository) MaxSurrogateKey(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "UnmergedVINRepository.MaxSurrogateKey")
	defer span.End()

	return database.MaxInt64(ctx, database.QueryerFromContext(ctx, r.db), r.db.Flavor(), table.String(), models.ColumnSurrogateKey)
}
