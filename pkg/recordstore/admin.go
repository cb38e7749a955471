package recordstore

import (
	"context"

	"github.com/WilliamDuke02/databaseProject/pkg/metrics"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const adminTable = models.TableMergedAdmin

// InsertAdmin stores a merged_admin row and its merged_nonadmin projection
// under a freshly allocated surrogate key.
func (s *Store) InsertAdmin(ctx context.Context, values models.Values) (rec *models.AdminRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.InsertAdmin")
	defer span.End()
	defer func() { metrics.RecordOperation(adminTable.String(), opInsert, err) }()

	r, err := models.AdminRecordFromValues(values)
	if err != nil {
		return nil, err
	}

	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	ctxTx, tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	if r.SurrogateKey, err = s.nextKey(ctxTx); err != nil {
		return nil, err
	}
	if err := s.admin.Insert(ctxTx, r); err != nil {
		return nil, writeError(err, adminTable)
	}
	if err := s.nonadmin.Insert(ctxTx, r.NonAdmin()); err != nil {
		return nil, writeError(err, models.TableMergedNonAdmin)
	}
	if err := s.commit(ctxTx, tx); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"vin_nr":        r.VIN,
		"surrogate_key": r.SurrogateKey,
	}).Info("inserted merged_admin row")
	s.emitter.EmitRecordCreated(ctx, adminTable.String(), r.VIN, r.SurrogateKey, r)

	return &r, nil
}

func (s *Store) GetAdmin(ctx context.Context, vin string) (rec *models.AdminRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.GetAdmin")
	defer span.End()
	defer func() { metrics.RecordOperation(adminTable.String(), opGet, err) }()

	rec, err = s.admin.GetByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(adminTable, vin)
	}
	return rec, nil
}

// UpdateAdmin applies values to the row with vin, then mirrors the change
// onto the merged_nonadmin row sharing its surrogate key.
func (s *Store) UpdateAdmin(ctx context.Context, vin string, values models.Values) (rec *models.AdminRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.UpdateAdmin")
	defer span.End()
	defer func() { metrics.RecordOperation(adminTable.String(), opUpdate, err) }()

	ctxTx, tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	rec, err = s.admin.GetByVIN(ctxTx, vin)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(adminTable, vin)
	}
	if err := rec.ApplyUpdate(values); err != nil {
		return nil, err
	}

	if _, err := s.admin.Update(ctxTx, *rec); err != nil {
		return nil, err
	}
	found, err := s.nonadmin.Update(ctxTx, rec.NonAdmin())
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.WithContext(ctx).WithField("surrogate_key", rec.SurrogateKey).Warn("merged_admin row has no merged_nonadmin counterpart")
	}
	if err := s.commit(ctxTx, tx); err != nil {
		return nil, err
	}

	s.emitter.EmitRecordUpdated(ctx, adminTable.String(), rec.VIN, rec.SurrogateKey, rec)
	return rec, nil
}

// DeleteAdmin removes the row with vin and its merged_nonadmin counterpart.
func (s *Store) DeleteAdmin(ctx context.Context, vin string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.DeleteAdmin")
	defer span.End()
	defer func() { metrics.RecordOperation(adminTable.String(), opDelete, err) }()

	ctxTx, tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctxTx)

	rec, err := s.admin.GetByVIN(ctxTx, vin)
	if err != nil {
		return err
	}
	if rec == nil {
		return notFound(adminTable, vin)
	}

	if _, err := s.admin.DeleteByVIN(ctxTx, vin); err != nil {
		return err
	}
	if _, err := s.nonadmin.DeleteByKey(ctxTx, rec.SurrogateKey); err != nil {
		return err
	}
	if err := s.commit(ctxTx, tx); err != nil {
		return err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"vin_nr":        vin,
		"surrogate_key": rec.SurrogateKey,
	}).Info("deleted merged_admin row")
	s.emitter.EmitRecordDeleted(ctx, adminTable.String(), vin, rec.SurrogateKey)

	return nil
}
