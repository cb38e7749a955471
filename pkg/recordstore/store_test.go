package recordstore

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilliamDuke02/databaseProject/internal/dbtest"
	"github.com/WilliamDuke02/databaseProject/internal/repositories/mergednonadmin"
	"github.com/WilliamDuke02/databaseProject/pkg/events"
	"github.com/WilliamDuke02/databaseProject/pkg/kafka"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
)

type capturePublisher struct {
	records []*kafka.RecordEvent
}

func (c *capturePublisher) PublishRecordEvent(_ context.Context, event *kafka.RecordEvent) error {
	c.records = append(c.records, event)
	return nil
}

func (c *capturePublisher) PublishRunEvent(_ context.Context, _ *kafka.RunEvent) error {
	return nil
}

// failingNonAdmin breaks the second half of a cascade.
type failingNonAdmin struct {
	mergednonadmin.MergedNonAdminRepository
}

func (failingNonAdmin) Insert(context.Context, models.NonAdminRecord) error {
	return errors.New("disk full")
}

func (failingNonAdmin) Update(context.Context, models.NonAdminRecord) (bool, error) {
	return false, errors.New("disk full")
}

func newTestStore(t *testing.T) (*Store, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	logger := dbtest.Logger()
	return NewStore(dbtest.NewSQLite(t), logger, WithEmitter(events.NewEmitter(pub, logger))), pub
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, status, httperror.GetStatusCode(err))
}

func ford(vin string) models.Values {
	return models.Values{
		"vin_nr":           vin,
		"vehicle_name":     "F-150 Lightning",
		"make":             "Ford",
		"model_year":       "2023",
		"vehicle_category": "Truck",
		"zip":              "4",
	}
}

func TestStore_InsertAdminCascades(t *testing.T) {
	store, pub := newTestStore(t)
	ctx := context.Background()

	first, err := store.InsertAdmin(ctx, ford("VIN001"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.SurrogateKey)

	second, err := store.InsertAdmin(ctx, ford("VIN002"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.SurrogateKey, "keys are prior max + 1")

	got, err := store.GetAdmin(ctx, "VIN002")
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, "F-150 Lightning", got.VehicleName)
	assert.Equal(t, 4, got.Zip)

	mirror, err := store.GetNonAdmin(ctx, second.SurrogateKey)
	require.NoError(t, err)
	assert.Equal(t, second.NonAdmin(), *mirror)

	require.Len(t, pub.records, 2)
	assert.Equal(t, events.RecordCreated, pub.records[1].EventType)
	assert.Equal(t, "VIN002", pub.records[1].RecordID)
}

func TestStore_InsertAdminRejectsBadInput(t *testing.T) {
	store, pub := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertAdmin(ctx, models.Values{"make": "Ford"})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = store.InsertAdmin(ctx, models.Values{"vin_nr": "X", "no_such_column": "1"})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = store.InsertAdmin(ctx, models.Values{"vin_nr": "X", "surrogate_key": "5"})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = store.InsertAdmin(ctx, ford("DUP"))
	require.NoError(t, err)
	_, err = store.InsertAdmin(ctx, ford("DUP"))
	assertStatus(t, err, http.StatusConflict)

	assert.Len(t, pub.records, 1, "only committed writes emit")
}

func TestStore_InsertAdminIsAtomic(t *testing.T) {
	store, pub := newTestStore(t)
	store.nonadmin = failingNonAdmin{store.nonadmin}
	ctx := context.Background()

	_, err := store.InsertAdmin(ctx, ford("VIN001"))
	require.Error(t, err)

	_, err = store.GetAdmin(ctx, "VIN001")
	assertStatus(t, err, http.StatusNotFound)
	assert.Empty(t, pub.records)
}

func TestStore_UpdateAdminCascades(t *testing.T) {
	store, pub := newTestStore(t)
	ctx := context.Background()

	inserted, err := store.InsertAdmin(ctx, ford("VIN001"))
	require.NoError(t, err)

	updated, err := store.UpdateAdmin(ctx, "VIN001", models.Values{"vehicle_category": "Pickup", "zip": "9"})
	require.NoError(t, err)
	assert.Equal(t, "Pickup", updated.VehicleCategory)
	assert.Equal(t, "Ford", updated.Make, "untouched columns keep their values")
	assert.Equal(t, inserted.SurrogateKey, updated.SurrogateKey)

	mirror, err := store.GetNonAdmin(ctx, inserted.SurrogateKey)
	require.NoError(t, err)
	assert.Equal(t, "Pickup", mirror.VehicleCategory)
	assert.Equal(t, 9, mirror.Zip)

	_, err = store.UpdateAdmin(ctx, "VIN001", models.Values{"vin_nr": "OTHER"})
	assertStatus(t, err, http.StatusBadRequest)

	_, err = store.UpdateAdmin(ctx, "MISSING", models.Values{"make": "x"})
	assertStatus(t, err, http.StatusNotFound)

	assert.Equal(t, events.RecordUpdated, pub.records[len(pub.records)-1].EventType)
}

func TestStore_UpdateAdminIsAtomic(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertAdmin(ctx, ford("VIN001"))
	require.NoError(t, err)

	store.nonadmin = failingNonAdmin{store.nonadmin}
	_, err = store.UpdateAdmin(ctx, "VIN001", models.Values{"make": "Changed"})
	require.Error(t, err)

	got, err := store.GetAdmin(ctx, "VIN001")
	require.NoError(t, err)
	assert.Equal(t, "Ford", got.Make)
}

func TestStore_DeleteAdminCascades(t *testing.T) {
	store, pub := newTestStore(t)
	ctx := context.Background()

	rec, err := store.InsertAdmin(ctx, ford("VIN001"))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, models.TableMergedAdmin, "VIN001"))

	_, err = store.GetAdmin(ctx, "VIN001")
	assertStatus(t, err, http.StatusNotFound)
	_, err = store.GetNonAdmin(ctx, rec.SurrogateKey)
	assertStatus(t, err, http.StatusNotFound)

	err = store.Delete(ctx, models.TableMergedAdmin, "VIN001")
	assertStatus(t, err, http.StatusNotFound)

	assert.Equal(t, events.RecordDeleted, pub.records[len(pub.records)-1].EventType)
}

func TestStore_NonAdmin(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	admin, err := store.InsertAdmin(ctx, ford("VIN001"))
	require.NoError(t, err)

	guest, err := store.Insert(ctx, models.TableMergedNonAdmin, models.Values{"make": "Guest", "zip": "2"})
	require.NoError(t, err)
	guestRec := guest.(*models.NonAdminRecord)
	assert.Equal(t, admin.SurrogateKey+1, guestRec.SurrogateKey, "guest rows share the key space")

	updated, err := store.Update(ctx, models.TableMergedNonAdmin, "2", models.Values{"make": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.(*models.NonAdminRecord).Make)

	_, err = store.Get(ctx, models.TableMergedNonAdmin, "not-a-number")
	assertStatus(t, err, http.StatusBadRequest)

	require.NoError(t, store.Delete(ctx, models.TableMergedNonAdmin, "2"))
	err = store.Delete(ctx, models.TableMergedNonAdmin, "2")
	assertStatus(t, err, http.StatusNotFound)

	_, err = store.GetAdmin(ctx, "VIN001")
	assert.NoError(t, err, "deleting a guest row never touches merged_admin")
}

func TestStore_Unmerged(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, models.TableUnmergedVINs, models.Values{
		"vin_nr": "ZZZ0001", "make_of_car": "Acme", "model_short": "R", "model_year": "1999",
	})
	require.NoError(t, err)

	t.Run("update needs exactly six values", func(t *testing.T) {
		_, err := store.Update(ctx, models.TableUnmergedVINs, "ZZZ0001", models.Values{"make_of_car": "Other"})
		assertStatus(t, err, http.StatusBadRequest)

		got, err := store.GetUnmerged(ctx, "ZZZ0001")
		require.NoError(t, err)
		assert.Equal(t, "Acme", got.MakeOfCar, "rejected update writes nothing")
	})

	t.Run("full update", func(t *testing.T) {
		values, err := models.UnmergedValuesFromList([]string{"Other", "S", "2001", "ZZZ00011", "Z", "7"})
		require.NoError(t, err)

		rec, err := store.Update(ctx, models.TableUnmergedVINs, "ZZZ0001", values)
		require.NoError(t, err)
		assert.Equal(t, int64(7), rec.(*models.UnmergedRecord).SurrogateKey)

		got, err := store.GetUnmerged(ctx, "ZZZ0001")
		require.NoError(t, err)
		assert.Equal(t, models.UnmergedRecord{
			VIN: "ZZZ0001", MakeOfCar: "Other", ModelShort: "S", ModelYear: "2001",
			Key1: "ZZZ00011", Key2: "Z", SurrogateKey: 7,
		}, *got)
	})

	t.Run("update missing vin", func(t *testing.T) {
		values, err := models.UnmergedValuesFromList([]string{"a", "b", "c", "d", "e", "1"})
		require.NoError(t, err)
		_, err = store.UpdateUnmerged(ctx, "NOPE", values)
		assertStatus(t, err, http.StatusNotFound)
	})

	require.NoError(t, store.Delete(ctx, models.TableUnmergedVINs, "ZZZ0001"))
	assertStatus(t, store.Delete(ctx, models.TableUnmergedVINs, "ZZZ0001"), http.StatusNotFound)
}

func TestStore_GetMissingReturnsNilRecord(t *testing.T) {
	store, _ := newTestStore(t)

	rec, err := store.Get(context.Background(), models.TableMergedAdmin, "MISSING")
	assertStatus(t, err, http.StatusNotFound)
	assert.Nil(t, rec)
}

func TestStore_UnknownTable(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, models.Table("users"), models.Values{})
	assertStatus(t, err, http.StatusBadRequest)
	assertStatus(t, store.Delete(ctx, models.Table("users"), "1"), http.StatusBadRequest)
	_, err = store.Export(ctx, models.Table("users"), nil)
	assertStatus(t, err, http.StatusBadRequest)
}

func TestStore_ExportDistinctAndCounts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for vin, category := range map[string]string{"VIN001": "Truck", "VIN002": "SUV", "VIN003": "Truck"} {
		values := ford(vin)
		values["vehicle_category"] = category
		_, err := store.InsertAdmin(ctx, values)
		require.NoError(t, err)
	}

	all, err := store.Export(ctx, models.TableMergedAdmin, []models.Filter{{Column: "vehicle_category", Value: models.AnyValue}})
	require.NoError(t, err)
	assert.Equal(t, models.TableMergedAdmin.Columns(), all.Header)
	assert.Equal(t, 3, all.Len())

	trucks, err := store.Export(ctx, models.TableMergedAdmin, []models.Filter{
		{Column: "vehicle_category", Value: "Truck"},
		{Column: "make", Value: "Ford"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, trucks.Len())
	assert.Equal(t, "VIN001", trucks.Rows[0][0])
	assert.Equal(t, "VIN003", trucks.Rows[1][0])

	_, err = store.Export(ctx, models.TableMergedAdmin, []models.Filter{{Column: "bogus", Value: "x"}})
	assertStatus(t, err, http.StatusBadRequest)

	distinct, err := store.DistinctValues(ctx, models.TableMergedAdmin)
	require.NoError(t, err)
	require.Len(t, distinct, len(models.TableMergedAdmin.Columns()))
	for _, cv := range distinct {
		if cv.Column == "vehicle_category" {
			assert.Equal(t, []string{"SUV", "Truck"}, cv.Values)
		}
	}

	counts, err := store.CountBy(ctx, models.TableMergedAdmin, "vehicle_category", "", "")
	require.NoError(t, err)
	assert.Equal(t, []models.CategoryCount{{Category: "SUV", Count: 1}, {Category: "Truck", Count: 2}}, counts)

	counts, err = store.CountBy(ctx, models.TableMergedAdmin, "vehicle_category", "vin_nr", "VIN002")
	require.NoError(t, err)
	assert.Equal(t, []models.CategoryCount{{Category: "SUV", Count: 1}}, counts)

	counts, err = store.CountBy(ctx, models.TableMergedNonAdmin, "vehicle_category", "make", models.AnyValue)
	require.NoError(t, err)
	assert.Len(t, counts, 2)
}
