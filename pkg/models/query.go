package models

import "strings"

// Filter is an equality predicate on one column. A value of AnyValue, or an
// empty value, matches every row.
type Filter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

func (f Filter) IsWildcard() bool {
	v := strings.TrimSpace(f.Value)
	return v == "" || v == AnyValue
}

// ValidateFilters checks every filter column against t.
func ValidateFilters(t Table, filters []Filter) error {
	for _, f := range filters {
		if err := t.ValidateColumn(f.Column); err != nil {
			return err
		}
	}
	return nil
}

// CategoryCount is one bucket of a count-by-category aggregate.
type CategoryCount struct {
	Category string `db:"category" json:"category"`
	Count    int64  `db:"count" json:"count"`
}

// ColumnValues lists the distinct values found in one column.
type ColumnValues struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}
