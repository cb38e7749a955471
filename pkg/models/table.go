package models

import (
	"net/http"
	"slices"
	"strings"
	"unicode"

	"github.com/Gobusters/ectoerror/httperror"
)

// Table is one of the persisted tables. Only values from this closed set
// are ever placed into SQL text.
type Table string

const (
	TableMergedAdmin    Table = "merged_admin"
	TableMergedNonAdmin Table = "merged_nonadmin"
	TableUnmergedVINs   Table = "unmerged_vins"
)

const (
	ColumnVIN          = "vin_nr"
	ColumnZip          = "zip"
	ColumnSurrogateKey = "surrogate_key"
)

// AnyValue disables a filter on its column.
const AnyValue = "Any"

var vehicleColumns = []string{
	"vehicle_name",
	"make",
	"model_full",
	"vehicle_manufacturer",
	"technology",
	"model_year",
	"date_added",
	"date_updated",
	"vin_key",
	"vehicle_category",
	"vehicle_use_case",
	"vehicle_class",
}

var unmergedColumns = []string{
	ColumnVIN,
	"make_of_car",
	"model_short",
	"model_year",
	"key1",
	"key2",
	ColumnSurrogateKey,
}

var tableColumns = map[Table][]string{
	TableMergedAdmin:    concat([]string{ColumnVIN}, vehicleColumns, []string{ColumnZip, ColumnSurrogateKey}),
	TableMergedNonAdmin: concat([]string{ColumnSurrogateKey}, vehicleColumns, []string{ColumnZip}),
	TableUnmergedVINs:   unmergedColumns,
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Tables lists the managed tables in load order.
func Tables() []Table {
	return []Table{TableMergedAdmin, TableMergedNonAdmin, TableUnmergedVINs}
}

// VehicleColumns returns the descriptive columns shared by both merged tables.
func VehicleColumns() []string {
	return slices.Clone(vehicleColumns)
}

// ParseTable validates name against the allow-list.
func ParseTable(name string) (Table, error) {
	t := Table(strings.TrimSpace(name))
	if _, ok := tableColumns[t]; !ok {
		return "", httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown table %q", name)
	}
	return t, nil
}

func (t Table) String() string {
	return string(t)
}

// Columns returns the table's columns in schema order.
func (t Table) Columns() []string {
	return slices.Clone(tableColumns[t])
}

func (t Table) HasColumn(column string) bool {
	return slices.Contains(tableColumns[t], column)
}

// ValidateColumn returns a 400 error when column is not part of the table.
func (t Table) ValidateColumn(column string) error {
	if !t.HasColumn(column) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown column %q for table %s", column, t)
	}
	return nil
}

// IDColumn is the column that identifies a row for delete and update.
func (t Table) IDColumn() string {
	if t == TableMergedNonAdmin {
		return ColumnSurrogateKey
	}
	return ColumnVIN
}

func IsIntegerColumn(column string) bool {
	return column == ColumnZip || column == ColumnSurrogateKey
}

// NormalizeColumn turns a CSV header such as "Model-full" or "VIN-NR" into
// the column identifier used by the schema ("model_full", "vin_nr").
func NormalizeColumn(header string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(header) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}
