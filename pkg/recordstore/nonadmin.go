package recordstore

import (
	"context"
	"strconv"

	"github.com/WilliamDuke02/databaseProject/pkg/metrics"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const nonAdminTable = models.TableMergedNonAdmin

// InsertNonAdmin stores a guest-view row with no admin counterpart.
func (s *Store) InsertNonAdmin(ctx context.Context, values models.Values) (rec *models.NonAdminRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.InsertNonAdmin")
	defer span.End()
	defer func() { metrics.RecordOperation(nonAdminTable.String(), opInsert, err) }()

	r, err := models.NonAdminRecordFromValues(values)
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
	if err := s.nonadmin.Insert(ctxTx, r); err != nil {
		return nil, writeError(err, nonAdminTable)
	}
	if err := s.commit(ctxTx, tx); err != nil {
		return nil, err
	}

	s.emitter.EmitRecordCreated(ctx, nonAdminTable.String(), keyID(r.SurrogateKey), r.SurrogateKey, r)
	return &r, nil
}

func (s *Store) GetNonAdmin(ctx context.Context, key int64) (rec *models.NonAdminRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.GetNonAdmin")
	defer span.End()
	defer func() { metrics.RecordOperation(nonAdminTable.String(), opGet, err) }()

	rec, err = s.nonadmin.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(nonAdminTable, key)
	}
	return rec, nil
}

func (s *Store) UpdateNonAdmin(ctx context.Context, key int64, values models.Values) (rec *models.NonAdminRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.UpdateNonAdmin")
	defer span.End()
	defer func() { metrics.RecordOperation(nonAdminTable.String(), opUpdate, err) }()

	ctxTx, tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	rec, err = s.nonadmin.GetByKey(ctxTx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(nonAdminTable, key)
	}
	if err := rec.ApplyUpdate(values); err != nil {
		return nil, err
	}
	if _, err := s.nonadmin.Update(ctxTx, *rec); err != nil {
		return nil, err
	}
	if err := s.commit(ctxTx, tx); err != nil {
		return nil, err
	}

	s.emitter.EmitRecordUpdated(ctx, nonAdminTable.String(), keyID(key), key, rec)
	return rec, nil
}

func (s *Store) DeleteNonAdmin(ctx context.Context, key int64) (err error) {
	ctx, span := tracing.StartSpan(ctx, "recordstore.Store.DeleteNonAdmin")
	defer span.End()
	defer func() { metrics.RecordOperation(nonAdminTable.String(), opDelete, err) }()

	deleted, err := s.nonadmin.DeleteByKey(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound(nonAdminTable, key)
	}

	s.emitter.EmitRecordDeleted(ctx, nonAdminTable.String(), keyID(key), key)
	return nil
}

func keyID(key int64) string {
	return strconv.FormatInt(key, 10)
}
