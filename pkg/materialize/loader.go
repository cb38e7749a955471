// Package materialize loads reconciled frames into merged_admin,
// merged_nonadmin and unmerged_vins.
package materialize

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/WilliamDuke02/databaseProject/internal/repositories/mergedadmin"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/mergednonadmin"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/unmergedvin"
	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/frame"
	"github.com/WilliamDuke02/databaseProject/pkg/keys"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/reconcile"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

const (
	// MaxZip bounds the synthetic zip assigned to loaded rows (1..MaxZip).
	MaxZip = 10

	suffixDecoder = "_y"
	suffixRecord  = "_x"
)

// LoadResult reports what a Load wrote.
type LoadResult struct {
	AdminRows    int   `json:"admin_rows"`
	NonAdminRows int   `json:"nonadmin_rows"`
	UnmergedRows int   `json:"unmerged_rows"`
	FirstKey     int64 `json:"first_key"`
	LastKey      int64 `json:"last_key"`
}

type Loader struct {
	db       database.DB
	admin    mergedadmin.MergedAdminRepository
	nonadmin mergednonadmin.MergedNonAdminRepository
	unmerged unmergedvin.UnmergedVINRepository
	logger   ectologger.Logger
	rand     *rand.Rand
}

type Option func(*Loader)

// WithRand replaces the zip source, mostly so tests can seed it.
func WithRand(r *rand.Rand) Option {
	return func(l *Loader) {
		l.rand = r
	}
}

func NewLoader(db database.DB, logger ectologger.Logger, opts ...Option) *Loader {
	l := &Loader{
		db:       db,
		admin:    mergedadmin.NewRepository(db, logger),
		nonadmin: mergednonadmin.NewRepository(db, logger),
		unmerged: unmergedvin.NewRepository(db, logger),
		logger:   logger,
		rand:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load writes merged rows to merged_admin and their projection to
// merged_nonadmin, then unmerged rows to unmerged_vins, all in one
// transaction. Either frame may be nil.
func (l *Loader) Load(ctx context.Context, merged, unmerged *frame.Frame) (*LoadResult, error) {
	ctx, span := tracing.StartSpan(ctx, "materialize.Loader.Load")
	defer span.End()

	ctxTx, tx, err := l.db.GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctxTx)

	result := &LoadResult{}

	maxAdmin, err := l.admin.MaxSurrogateKey(ctxTx)
	if err != nil {
		return nil, err
	}
	maxNonAdmin, err := l.nonadmin.MaxSurrogateKey(ctxTx)
	if err != nil {
		return nil, err
	}
	seq := keys.SequenceAfter(max(maxAdmin, maxNonAdmin))
	result.FirstKey = seq.Peek()

	admins := l.adminRecords(merged, seq)
	if len(admins) > 0 {
		if result.AdminRows, err = l.admin.InsertBatch(ctxTx, admins); err != nil {
			return nil, err
		}

		nonadmins := make([]models.NonAdminRecord, len(admins))
		for i, rec := range admins {
			nonadmins[i] = rec.NonAdmin()
		}
		if result.NonAdminRows, err = l.nonadmin.InsertBatch(ctxTx, nonadmins); err != nil {
			return nil, err
		}
	}
	result.LastKey = seq.Peek() - 1

	maxUnmerged, err := l.unmerged.MaxSurrogateKey(ctxTx)
	if err != nil {
		return nil, err
	}
	if recs := unmergedRecords(unmerged, keys.SequenceAfter(maxUnmerged)); len(recs) > 0 {
		if result.UnmergedRows, err = l.unmerged.InsertBatch(ctxTx, recs); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, fmt.Errorf("failed to commit load: %w", err)
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"admin_rows":    result.AdminRows,
		"nonadmin_rows": result.NonAdminRows,
		"unmerged_rows": result.UnmergedRows,
		"first_key":     result.FirstKey,
		"last_key":      result.LastKey,
	}).Info("loaded reconciled data")

	return result, nil
}

func (l *Loader) adminRecords(merged *frame.Frame, seq *keys.Sequence) []models.AdminRecord {
	if merged.Len() == 0 {
		return nil
	}

	index := columnIndex(merged.Header)
	attrs := make(map[string]int, len(models.VehicleColumns()))
	for _, col := range models.VehicleColumns() {
		if i, ok := lookup(index, col); ok {
			attrs[col] = i
		}
	}

	recs := make([]models.AdminRecord, 0, merged.Len())
	for row := range merged.Rows {
		rec := models.AdminRecord{
			VIN:          strings.TrimSpace(merged.Value(row, 0)),
			Zip:          l.rand.IntN(MaxZip) + 1,
			SurrogateKey: seq.Next(),
		}
		for col, i := range attrs {
			rec.Set(col, merged.Value(row, i))
		}
		recs = append(recs, rec)
	}
	return recs
}

// unmergedRecords maps source columns by name, falling back to positions
// 1..3 for make, model and year. The derived keys are the last two columns.
func unmergedRecords(unmerged *frame.Frame, seq *keys.Sequence) []models.UnmergedRecord {
	if unmerged.Len() == 0 {
		return nil
	}

	index := columnIndex(unmerged.Header)
	width := unmerged.Width()
	positional := map[string]int{"make_of_car": 1, "model_short": 2, "model_year": 3}
	fields := make(map[string]int, len(positional))
	for col, pos := range positional {
		if i, ok := lookup(index, col); ok && i < width-2 {
			fields[col] = i
		} else if pos < width-2 {
			fields[col] = pos
		} else {
			fields[col] = -1
		}
	}

	key1, key2 := width-2, width-1
	if i := unmerged.Index(reconcile.Key1Column); i >= 0 {
		key1 = i
	}
	if i := unmerged.Index(reconcile.Key2Column); i >= 0 {
		key2 = i
	}

	recs := make([]models.UnmergedRecord, 0, unmerged.Len())
	for row := range unmerged.Rows {
		recs = append(recs, models.UnmergedRecord{
			VIN:          strings.TrimSpace(unmerged.Value(row, 0)),
			MakeOfCar:    unmerged.Value(row, fields["make_of_car"]),
			ModelShort:   unmerged.Value(row, fields["model_short"]),
			ModelYear:    unmerged.Value(row, fields["model_year"]),
			Key1:         unmerged.Value(row, key1),
			Key2:         unmerged.Value(row, key2),
			SurrogateKey: seq.Next(),
		})
	}
	return recs
}

// columnIndex maps normalized header names to positions. When two headers
// normalize to the same name the later one wins, so decoder attributes take
// precedence over source attributes.
func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[models.NormalizeColumn(h)] = i
	}
	return index
}

func lookup(index map[string]int, column string) (int, bool) {
	for _, name := range []string{column, column + suffixDecoder, column + suffixRecord} {
		if i, ok := index[name]; ok {
			return i, true
		}
	}
	return 0, false
}
