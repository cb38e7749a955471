package pipeline

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilliamDuke02/databaseProject/internal/dbtest"
	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/keys"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/recordstore"
)

const sourceCSV = "VIN-NR,Make,MODEL,Model Year\n" +
	"1FTFW1E5XPFA00001,Ford,F150,2023\n" +
	"1FTFW1E5XPFA00002,Ford,F150,2022\n" +
	"ZZZZZZZZZZZZZ0001,Acme,Roadster,1999\n"

// Latin-1 encoded; \xe9 is é.
const decoderCSV = "VIN_Key,Check,Vehicle Name,Make,Model Year,Vehicle Category,Vehicle Class\n" +
	"1FTFW1E5,P,F-150 Lightning,Ford,2023,Truck,Coup\xe9\n" +
	"1FTFW1E5,PX,F-150 Raptor,Ford,2023,Truck,Pickup\n"

type fixture struct {
	db      database.DB
	store   *recordstore.Store
	pipe    *Pipeline
	dir     string
	options Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	source := filepath.Join(dir, "vins.csv")
	decoder := filepath.Join(dir, "VIN_decoder.csv")
	require.NoError(t, os.WriteFile(source, []byte(sourceCSV), 0o644))
	require.NoError(t, os.WriteFile(decoder, []byte(decoderCSV), 0o644))

	logger := dbtest.Logger()
	db := dbtest.NewSQLite(t)

	return &fixture{
		db:    db,
		store: recordstore.NewStore(db, logger),
		pipe:  New(db, dbtest.Migrations(logger), keys.DefaultDeriver, logger),
		dir:   dir,
		options: Options{
			SourcePath:  source,
			DecoderPath: decoder,
		},
	}
}

func (f *fixture) rows(t *testing.T, table models.Table) [][]string {
	t.Helper()
	snapshot, err := f.store.Export(context.Background(), table, nil)
	require.NoError(t, err)
	return snapshot.Rows
}

func TestRun_LoadsReconciledData(t *testing.T) {
	f := newFixture(t)

	report, err := f.pipe.Run(context.Background(), f.options)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, report.Status)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Reconcile.Records)
	assert.Equal(t, 2, report.Reconcile.MatchedRecords)
	assert.Equal(t, 4, report.Reconcile.MergedRows, "each record matches two decoder entries")
	assert.Equal(t, 2, report.Reconcile.Expansions)
	assert.Equal(t, 2, report.Reconcile.Duplicates)
	assert.Equal(t, 1, report.Reconcile.UnmergedRows)
	require.NotNil(t, report.Load)
	assert.Equal(t, 2, report.Load.AdminRows)
	assert.Equal(t, 2, report.Load.NonAdminRows)
	assert.Equal(t, 1, report.Load.UnmergedRows)

	var stages []string
	for _, s := range report.Stages {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []string{"ingest", "reconcile", "write", "migrate", "load"}, stages)

	admin, err := f.store.GetAdmin(context.Background(), "1FTFW1E5XPFA00001")
	require.NoError(t, err)
	assert.Equal(t, "F-150 Lightning", admin.VehicleName, "first decoder match is kept")
	assert.Equal(t, "Coupé", admin.VehicleClass)
	assert.Equal(t, "Truck", admin.VehicleCategory)

	unmerged, err := f.store.GetUnmerged(context.Background(), "ZZZZZZZZZZZZZ0001")
	require.NoError(t, err)
	assert.Equal(t, "Acme", unmerged.MakeOfCar)
	assert.Equal(t, "ZZZZZZZZ", unmerged.Key1)
	assert.Equal(t, "Z", unmerged.Key2)

	_, err = os.Stat(filepath.Join(f.dir, "merged_vins.csv"))
	assert.True(t, os.IsNotExist(err), "intermediates are removed")
	_, err = os.Stat(f.options.SourcePath)
	assert.NoError(t, err, "inputs are kept unless asked")
}

func TestRun_KeepIntermediatesAndRemoveInputs(t *testing.T) {
	f := newFixture(t)
	opts := f.options
	opts.KeepIntermediates = true
	opts.RemoveInputs = true
	opts.WorkDir = filepath.Join(f.dir, "work")

	report, err := f.pipe.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(opts.WorkDir, "merged_vins.csv"), report.MergedFile)
	assert.Equal(t, filepath.Join(opts.WorkDir, "unmerged_vins.csv"), report.UnmergedFile)

	merged, err := os.ReadFile(report.MergedFile)
	require.NoError(t, err)
	assert.Contains(t, string(merged), "VIN-NR,Make_x,MODEL,Model Year_x,VIN_Key,Check,Vehicle Name,Make_y,Model Year_y")

	unmerged, err := os.ReadFile(report.UnmergedFile)
	require.NoError(t, err)
	assert.Equal(t, "VIN-NR,Make,MODEL,Model Year,key1,key2\nZZZZZZZZZZZZZ0001,Acme,Roadster,1999,ZZZZZZZZ,Z\n", string(unmerged))

	for _, path := range []string{opts.SourcePath, opts.DecoderPath} {
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "%s removed", path)
	}
}

func TestRun_MissingSourceIsSkipped(t *testing.T) {
	f := newFixture(t)
	opts := f.options
	opts.SourcePath = filepath.Join(f.dir, "missing.csv")

	report, err := f.pipe.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, report.Status)
	assert.Nil(t, report.Load)
	assert.Empty(t, f.rows(t, models.TableMergedAdmin))
}

func TestRun_MissingDecoderLeavesEverythingUnmerged(t *testing.T) {
	f := newFixture(t)
	opts := f.options
	opts.DecoderPath = filepath.Join(f.dir, "missing.csv")

	report, err := f.pipe.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 0, report.Load.AdminRows)
	assert.Equal(t, 3, report.Load.UnmergedRows)
}

func TestRun_ResetReplacesPreviousLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipe.Run(ctx, f.options)
	require.NoError(t, err)

	opts := f.options
	opts.Reset = true
	report, err := f.pipe.Run(ctx, opts)
	require.NoError(t, err)

	assert.Len(t, f.rows(t, models.TableMergedAdmin), 2)
	assert.Len(t, f.rows(t, models.TableUnmergedVINs), 1)
	assert.Equal(t, int64(1), report.Load.FirstKey, "keys restart on an empty schema")
}

func TestRun_SecondLoadWithoutResetConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipe.Run(ctx, f.options)
	require.NoError(t, err)

	report, err := f.pipe.Run(ctx, f.options)
	require.Error(t, err, "vin_nr is unique in merged_admin")
	assert.Equal(t, StatusFailed, report.Status)
	assert.NotEmpty(t, report.Error)
	assert.Len(t, f.rows(t, models.TableMergedAdmin), 2, "failed load leaves the previous data intact")
}

func TestRun_RejectsConcurrentRuns(t *testing.T) {
	f := newFixture(t)

	f.pipe.running.Lock()
	defer f.pipe.running.Unlock()

	_, err := f.pipe.Run(context.Background(), f.options)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}
