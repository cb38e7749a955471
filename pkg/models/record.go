package models

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// Values holds column → value input for a write, as collected from a form,
// a request body or a CLI flag set.
type Values map[string]string

// VehicleAttributes are the decoder attributes shared by both merged tables.
type VehicleAttributes struct {
	VehicleName         string `db:"vehicle_name" json:"vehicle_name"`
	Make                string `db:"make" json:"make"`
	ModelFull           string `db:"model_full" json:"model_full"`
	VehicleManufacturer string `db:"vehicle_manufacturer" json:"vehicle_manufacturer"`
	Technology          string `db:"technology" json:"technology"`
	ModelYear           string `db:"model_year" json:"model_year"`
	DateAdded           string `db:"date_added" json:"date_added"`
	DateUpdated         string `db:"date_updated" json:"date_updated"`
	VINKey              string `db:"vin_key" json:"vin_key"`
	VehicleCategory     string `db:"vehicle_category" json:"vehicle_category"`
	VehicleUseCase      string `db:"vehicle_use_case" json:"vehicle_use_case"`
	VehicleClass        string `db:"vehicle_class" json:"vehicle_class"`
}

func (v *VehicleAttributes) field(column string) *string {
	switch column {
	case "vehicle_name":
		return &v.VehicleName
	case "make":
		return &v.Make
	case "model_full":
		return &v.ModelFull
	case "vehicle_manufacturer":
		return &v.VehicleManufacturer
	case "technology":
		return &v.Technology
	case "model_year":
		return &v.ModelYear
	case "date_added":
		return &v.DateAdded
	case "date_updated":
		return &v.DateUpdated
	case "vin_key":
		return &v.VINKey
	case "vehicle_category":
		return &v.VehicleCategory
	case "vehicle_use_case":
		return &v.VehicleUseCase
	case "vehicle_class":
		return &v.VehicleClass
	}
	return nil
}

// Get returns the attribute stored under column.
func (v VehicleAttributes) Get(column string) string {
	if p := v.field(column); p != nil {
		return *p
	}
	return ""
}

// Set assigns column and reports whether it is a vehicle attribute.
func (v *VehicleAttributes) Set(column, value string) bool {
	p := v.field(column)
	if p == nil {
		return false
	}
	*p = value
	return true
}

func (v VehicleAttributes) values() []any {
	out := make([]any, 0, len(vehicleColumns))
	for _, col := range vehicleColumns {
		out = append(out, v.Get(col))
	}
	return out
}

// AdminRecord is a row of merged_admin.
type AdminRecord struct {
	VIN string `db:"vin_nr" json:"vin_nr" validate:"required"`
	VehicleAttributes
	Zip          int   `db:"zip" json:"zip"`
	SurrogateKey int64 `db:"surrogate_key" json:"surrogate_key"`
}

// NonAdmin projects the record onto merged_nonadmin, dropping the VIN.
func (r AdminRecord) NonAdmin() NonAdminRecord {
	return NonAdminRecord{
		SurrogateKey:      r.SurrogateKey,
		VehicleAttributes: r.VehicleAttributes,
		Zip:               r.Zip,
	}
}

// Values returns the row in TableMergedAdmin column order.
func (r AdminRecord) Values() []any {
	out := append([]any{r.VIN}, r.VehicleAttributes.values()...)
	return append(out, r.Zip, r.SurrogateKey)
}

func (r AdminRecord) Strings() []string {
	return toStrings(r.Values())
}

// NonAdminRecord is a row of merged_nonadmin.
type NonAdminRecord struct {
	SurrogateKey int64 `db:"surrogate_key" json:"surrogate_key"`
	VehicleAttributes
	Zip int `db:"zip" json:"zip"`
}

// Values returns the row in TableMergedNonAdmin column order.
func (r NonAdminRecord) Values() []any {
	out := append([]any{r.SurrogateKey}, r.VehicleAttributes.values()...)
	return append(out, r.Zip)
}

func (r NonAdminRecord) Strings() []string {
	return toStrings(r.Values())
}

// UnmergedRecord is a row of unmerged_vins.
type UnmergedRecord struct {
	VIN          string `db:"vin_nr" json:"vin_nr" validate:"required"`
	MakeOfCar    string `db:"make_of_car" json:"make_of_car"`
	ModelShort   string `db:"model_short" json:"model_short"`
	ModelYear    string `db:"model_year" json:"model_year"`
	Key1         string `db:"key1" json:"key1"`
	Key2         string `db:"key2" json:"key2"`
	SurrogateKey int64  `db:"surrogate_key" json:"surrogate_key"`
}

// Values returns the row in TableUnmergedVINs column order.
func (r UnmergedRecord) Values() []any {
	return []any{r.VIN, r.MakeOfCar, r.ModelShort, r.ModelYear, r.Key1, r.Key2, r.SurrogateKey}
}

func (r UnmergedRecord) Strings() []string {
	return toStrings(r.Values())
}

func toStrings(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case string:
			out[i] = t
		case int:
			out[i] = strconv.Itoa(t)
		case int64:
			out[i] = strconv.FormatInt(t, 10)
		}
	}
	return out
}

// Validate checks that every column in values belongs to t.
func (v Values) Validate(t Table) error {
	for col := range v {
		if err := t.ValidateColumn(col); err != nil {
			return err
		}
	}
	return nil
}

// AdminRecordFromValues builds a merged_admin record. The surrogate key is
// always assigned by the store and is rejected here.
func AdminRecordFromValues(values Values) (AdminRecord, error) {
	var r AdminRecord
	if err := values.Validate(TableMergedAdmin); err != nil {
		return r, err
	}
	if _, ok := values[ColumnSurrogateKey]; ok {
		return r, httperror.NewHTTPError(http.StatusBadRequest, "surrogate_key is assigned by the store")
	}
	if err := r.apply(values); err != nil {
		return r, err
	}
	if r.VIN == "" {
		return r, httperror.NewHTTPError(http.StatusBadRequest, "vin_nr is required")
	}
	return r, nil
}

func (r *AdminRecord) apply(values Values) error {
	for col, val := range values {
		switch col {
		case ColumnVIN:
			r.VIN = strings.TrimSpace(val)
		case ColumnZip:
			zip, err := ParseZip(val)
			if err != nil {
				return err
			}
			r.Zip = zip
		default:
			r.Set(col, val)
		}
	}
	return nil
}

// ApplyUpdate overwrites the attributes named in values. The VIN and the
// surrogate key identify the row and cannot be changed.
func (r *AdminRecord) ApplyUpdate(values Values) error {
	if err := values.Validate(TableMergedAdmin); err != nil {
		return err
	}
	for _, col := range []string{ColumnVIN, ColumnSurrogateKey} {
		if _, ok := values[col]; ok {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s cannot be updated", col)
		}
	}
	updated := *r
	if err := updated.apply(values); err != nil {
		return err
	}
	*r = updated
	return nil
}

// NonAdminRecordFromValues builds a merged_nonadmin record without a key.
func NonAdminRecordFromValues(values Values) (NonAdminRecord, error) {
	var r NonAdminRecord
	if err := values.Validate(TableMergedNonAdmin); err != nil {
		return r, err
	}
	if _, ok := values[ColumnSurrogateKey]; ok {
		return r, httperror.NewHTTPError(http.StatusBadRequest, "surrogate_key is assigned by the store")
	}
	return r, r.apply(values)
}

func (r *NonAdminRecord) apply(values Values) error {
	for col, val := range values {
		if col == ColumnZip {
			zip, err := ParseZip(val)
			if err != nil {
				return err
			}
			r.Zip = zip
			continue
		}
		r.Set(col, val)
	}
	return nil
}

// ApplyUpdate overwrites the attributes named in values.
func (r *NonAdminRecord) ApplyUpdate(values Values) error {
	if err := values.Validate(TableMergedNonAdmin); err != nil {
		return err
	}
	if _, ok := values[ColumnSurrogateKey]; ok {
		return httperror.NewHTTPError(http.StatusBadRequest, "surrogate_key cannot be updated")
	}
	updated := *r
	if err := updated.apply(values); err != nil {
		return err
	}
	*r = updated
	return nil
}

// UnmergedRecordFromValues builds an unmerged_vins record.
func UnmergedRecordFromValues(values Values) (UnmergedRecord, error) {
	var r UnmergedRecord
	if err := values.Validate(TableUnmergedVINs); err != nil {
		return r, err
	}
	for col, val := range values {
		if err := r.set(col, val); err != nil {
			return r, err
		}
	}
	if r.VIN == "" {
		return r, httperror.NewHTTPError(http.StatusBadRequest, "vin_nr is required")
	}
	return r, nil
}

func (r *UnmergedRecord) set(column, value string) error {
	switch column {
	case ColumnVIN:
		r.VIN = strings.TrimSpace(value)
	case "make_of_car":
		r.MakeOfCar = value
	case "model_short":
		r.ModelShort = value
	case "model_year":
		r.ModelYear = value
	case "key1":
		r.Key1 = value
	case "key2":
		r.Key2 = value
	case ColumnSurrogateKey:
		key, err := ParseSurrogateKey(value)
		if err != nil {
			return err
		}
		r.SurrogateKey = key
	}
	return nil
}

// UnmergedUpdateColumns are the columns an unmerged_vins update must supply, in order.
var UnmergedUpdateColumns = []string{"make_of_car", "model_short", "model_year", "key1", "key2", ColumnSurrogateKey}

// ApplyUpdate replaces every non-identifier column. Exactly the six
// UnmergedUpdateColumns must be present.
func (r *UnmergedRecord) ApplyUpdate(values Values) error {
	if len(values) != len(UnmergedUpdateColumns) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest,
			"unmerged_vins update requires exactly %d values (%s), got %d",
			len(UnmergedUpdateColumns), strings.Join(UnmergedUpdateColumns, ", "), len(values))
	}
	for _, col := range UnmergedUpdateColumns {
		if _, ok := values[col]; !ok {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "missing value for %s", col)
		}
	}
	updated := *r
	for _, col := range UnmergedUpdateColumns {
		if err := updated.set(col, values[col]); err != nil {
			return err
		}
	}
	*r = updated
	return nil
}

// UnmergedValuesFromList maps positional update arguments onto UnmergedUpdateColumns.
func UnmergedValuesFromList(list []string) (Values, error) {
	if len(list) != len(UnmergedUpdateColumns) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest,
			"unmerged_vins update requires exactly %d values (%s), got %d",
			len(UnmergedUpdateColumns), strings.Join(UnmergedUpdateColumns, ", "), len(list))
	}
	values := make(Values, len(list))
	for i, col := range UnmergedUpdateColumns {
		values[col] = list[i]
	}
	return values, nil
}

func ParseZip(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	zip, err := strconv.Atoi(value)
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "zip must be an integer, got %q", value)
	}
	return zip, nil
}

func ParseSurrogateKey(value string) (int64, error) {
	key, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || key < 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "surrogate_key must be a non-negative integer, got %q", value)
	}
	return key, nil
}
