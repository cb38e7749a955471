package recordstore

import (
	"context"

	"github.com/WilliamDuke02/databaseProject/pkg/metrics"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const unmergedTable = models.TableUnmergedVINs

// InsertUnmerged stores the supplied fields as given; no key is allocated.
func (s *Store) InsertUnmerged(ctx context.Context, values models.Values) (rec *models.UnmergedRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.InsertUnmerged")
	defer span.End()
	defer func() { metrics.RecordOperation(unmergedTable.String(), opInsert, err) }()

	r, err := models.UnmergedRecordFromValues(values)
	if err != nil {
		return nil, err
	}
	if err := s.unmerged.Insert(ctx, r); err != nil {
		return nil, writeError(err, unmergedTable)
	}

	s.emitter.EmitRecordCreated(ctx, unmergedTable.String(), r.VIN, r.SurrogateKey, r)
	return &r, nil
}

// GetUnmerged returns the first row with vin.
func (s *Store) GetUnmerged(ctx context.Context, vin string) (rec *models.UnmergedRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.GetUnmerged")
	defer span.End()
	defer func() { metrics.RecordOperation(unmergedTable.String(), opGet, err) }()

	rec, err = s.unmerged.GetByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(unmergedTable, vin)
	}
	return rec, nil
}

// UpdateUnmerged replaces every non-identifier column of the rows with vin.
// values must hold exactly models.UnmergedUpdateColumns; anything else is
// rejected before the database is touched.
func (s *Store) UpdateUnmerged(ctx context.Context, vin string, values models.Values) (rec *models.UnmergedRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.UpdateUnmerged")
	defer span.End()
	defer func() { metrics.RecordOperation(unmergedTable.String(), opUpdate, err) }()

	rec = &models.UnmergedRecord{VIN: vin}
	if err := rec.ApplyUpdate(values); err != nil {
		return nil, err
	}

	affected, err := s.unmerged.Update(ctx, *rec)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, notFound(unmergedTable, vin)
	}

	s.emitter.EmitRecordUpdated(ctx, unmergedTable.String(), vin, rec.SurrogateKey, rec)
	return rec, nil
}

// DeleteUnmerged removes every row with vin.
func (s *Store) DeleteUnmerged(ctx context.Context, vin string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.DeleteUnmerged")
	defer span.End()
	defer func() { metrics.RecordOperation(unmergedTable.String(), opDelete, err) }()

	affected, err := s.unmerged.DeleteByVIN(ctx, vin)
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound(unmergedTable, vin)
	}

	s.emitter.EmitRecordDeleted(ctx, unmergedTable.String(), vin, 0)
	return nil
}
