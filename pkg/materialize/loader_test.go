package materialize

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilliamDuke02/databaseProject/internal/dbtest"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/mergedadmin"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/mergednonadmin"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/unmergedvin"
	"github.com/WilliamDuke02/databaseProject/pkg/frame"
	"github.com/WilliamDuke02/databaseProject/pkg/keys"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/reconcile"
)

func mergedFrame() *frame.Frame {
	f := frame.New("VIN-NR", "Make_x", "MODEL", "Model Year_x",
		"VIN_Key", "Check", "Vehicle Name", "Make_y", "Model-full", "Model Year_y", "Vehicle Category")
	f.Append([]string{"1FTFW1E5XPFA00001", "Ford", "F150", "2023",
		"1FTFW1E5", "P", "F-150 Lightning", "FORD", "F-150 Lightning Pro", "2023", "Truck"})
	f.Append([]string{"1FTFW1E5XPFA00002", "Ford", "F150", "2022",
		"1FTFW1E5", "P", "F-150 Lightning", "FORD", "F-150 Lightning XLT", "2022", "Truck"})
	return f
}

func unmergedFrame() *frame.Frame {
	f := frame.New("VIN-NR", "Make", "MODEL", "Model Year", "key1", "key2")
	f.Append([]string{"ZZZZZZZZZZZZZ0001", "Acme", "Roadster", "1999", "ZZZZZZZZ", "Z"})
	f.Append([]string{"SHORT", "Acme", "Mini", "2001", "", ""})
	return f
}

func TestLoader_Load(t *testing.T) {
	db := dbtest.NewSQLite(t)
	logger := dbtest.Logger()
	loader := NewLoader(db, logger, WithRand(rand.New(rand.NewPCG(1, 2))))
	ctx := context.Background()

	result, err := loader.Load(ctx, mergedFrame(), unmergedFrame())
	require.NoError(t, err)
	assert.Equal(t, &LoadResult{AdminRows: 2, NonAdminRows: 2, UnmergedRows: 2, FirstKey: 1, LastKey: 2}, result)

	admins, err := mergedadmin.NewRepository(db, logger).List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, admins, 2)

	first := admins[0]
	assert.Equal(t, "1FTFW1E5XPFA00001", first.VIN)
	assert.Equal(t, "F-150 Lightning", first.VehicleName)
	assert.Equal(t, "FORD", first.Make, "decoder attributes win over source attributes")
	assert.Equal(t, "F-150 Lightning Pro", first.ModelFull)
	assert.Equal(t, "2023", first.ModelYear)
	assert.Equal(t, "1FTFW1E5", first.VINKey)
	assert.Equal(t, "Truck", first.VehicleCategory)
	assert.Empty(t, first.VehicleClass, "missing columns load empty")
	assert.Equal(t, int64(1), first.SurrogateKey)

	for _, rec := range admins {
		assert.GreaterOrEqual(t, rec.Zip, 1)
		assert.LessOrEqual(t, rec.Zip, MaxZip)
	}

	nonadmins, err := mergednonadmin.NewRepository(db, logger).List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, nonadmins, 2)
	for i, rec := range nonadmins {
		assert.Equal(t, admins[i].NonAdmin(), rec, "non-admin rows mirror admin rows under the same key")
	}

	unmerged, err := unmergedvin.NewRepository(db, logger).List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, unmerged, 2)
	assert.Equal(t, models.UnmergedRecord{
		VIN: "SHORT", MakeOfCar: "Acme", ModelShort: "Mini", ModelYear: "2001", SurrogateKey: 2,
	}, unmerged[0])
	assert.Equal(t, models.UnmergedRecord{
		VIN: "ZZZZZZZZZZZZZ0001", MakeOfCar: "Acme", ModelShort: "Roadster", ModelYear: "1999",
		Key1: "ZZZZZZZZ", Key2: "Z", SurrogateKey: 1,
	}, unmerged[1])
}

func TestLoader_KeysContinueAfterExistingRows(t *testing.T) {
	db := dbtest.NewSQLite(t)
	loader := NewLoader(db, dbtest.Logger())
	ctx := context.Background()

	_, err := loader.Load(ctx, mergedFrame(), nil)
	require.NoError(t, err)

	next := frame.New("VIN-NR", "Vehicle Name")
	next.Append([]string{"1FTFW1E5XPFA00003", "Another"})

	result, err := loader.Load(ctx, next, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.FirstKey)
	assert.Equal(t, int64(3), result.LastKey)
	assert.Equal(t, 0, result.UnmergedRows)
}

func TestLoader_FailureRollsBackEverything(t *testing.T) {
	db := dbtest.NewSQLite(t)
	logger := dbtest.Logger()
	loader := NewLoader(db, logger)
	ctx := context.Background()

	dup := mergedFrame()
	dup.Rows[1][0] = dup.Rows[0][0]

	_, err := loader.Load(ctx, dup, unmergedFrame())
	require.Error(t, err)

	admins, err := mergedadmin.NewRepository(db, logger).List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, admins)

	unmerged, err := unmergedvin.NewRepository(db, logger).List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, unmerged)
}

func TestLoader_LoadsReconciledPaddedDuplicatesOnce(t *testing.T) {
	db := dbtest.NewSQLite(t)
	logger := dbtest.Logger()
	ctx := context.Background()

	recs := frame.New("VIN-NR", "Make", "MODEL", "Model Year")
	recs.Append([]string{"1FTFW1E5XPFA00001", "Ford", "F150", "2023"})
	recs.Append([]string{" 1FTFW1E5XPFA00001", "Ford", "F150", "2023"})
	dec := frame.New("VIN_Key", "Check", "Vehicle Name", "Make", "Vehicle Category")
	dec.Append([]string{"1FTFW1E5", "P", "F-150 Lightning", "FORD", "Truck"})

	res, err := reconcile.New(keys.DefaultDeriver, logger).Reconcile(ctx, recs, dec)
	require.NoError(t, err)
	merged, _ := reconcile.Dedup(res.Merged, 0)

	result, err := NewLoader(db, logger).Load(ctx, merged, res.Unmerged)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AdminRows)

	admins, err := mergedadmin.NewRepository(db, logger).List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "1FTFW1E5XPFA00001", admins[0].VIN)
}

func TestLoader_EmptyFrames(t *testing.T) {
	db := dbtest.NewSQLite(t)
	result, err := NewLoader(db, dbtest.Logger()).Load(context.Background(), nil, frame.New("VIN-NR", "key1", "key2"))
	require.NoError(t, err)
	assert.Equal(t, &LoadResult{FirstKey: 1, LastKey: 0}, result)
}

func TestColumnIndex_LookupFallsBackToSuffixes(t *testing.T) {
	index := columnIndex([]string{"VIN-NR", "Make_x", "Model Year_x", "Model Year_y"})

	i, ok := lookup(index, "make")
	assert.True(t, ok)
	assert.Equal(t, 1, i)

	i, ok = lookup(index, "model_year")
	assert.True(t, ok)
	assert.Equal(t, 3, i, "decoder column preferred")

	_, ok = lookup(index, "vehicle_class")
	assert.False(t, ok)
}
