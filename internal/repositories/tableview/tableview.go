// Package tableview holds the read-side queries shared by every managed
// table: filtered snapshots, distinct values and grouped counts.
package tableview

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
)

// Where adds one equality condition per non-wildcard filter.
// Filters must already be validated against the table.
func Where(sb *sqlbuilder.SelectBuilder, filters []models.Filter) {
	var conds []string
	for _, f := range filters {
		if f.IsWildcard() {
			continue
		}
		conds = append(conds, sb.Equal(f.Column, f.Value))
	}
	if len(conds) > 0 {
		sb.Where(conds...)
	}
}

// Select builds a snapshot query over table with filters, ordered by the
// table's identifier column.
func Select(db database.DB, table models.Table, filters []models.Filter) (string, []any, error) {
	if err := models.ValidateFilters(table, filters); err != nil {
		return "", nil, err
	}

	sb := database.NewSelectBuilder(db)
	sb.Select(table.Columns()...)
	sb.From(table.String())
	Where(sb, filters)
	sb.OrderBy(table.IDColumn()).Asc()

	query, args := sb.Build()
	return query, args, nil
}

// Distinct returns the distinct values of column, sorted.
func Distinct(ctx context.Context, db database.DB, table models.Table, column string) ([]string, error) {
	if err := table.ValidateColumn(column); err != nil {
		return nil, err
	}

	sb := database.NewSelectBuilder(db)
	sb.Select(column).Distinct()
	sb.From(table.String())
	sb.OrderBy(column).Asc()

	query, args := sb.Build()

	var values []string
	if err := database.QueryerFromContext(ctx, db).SelectContext(ctx, &values, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select distinct %s from %s: %w", column, table, err)
	}
	return values, nil
}

// CountBy groups table by groupColumn and counts rows, restricted by filter
// unless it is a wildcard.
func CountBy(ctx context.Context, db database.DB, table models.Table, groupColumn string, filter models.Filter) ([]models.CategoryCount, error) {
	if err := table.ValidateColumn(groupColumn); err != nil {
		return nil, err
	}
	filters := []models.Filter{}
	if filter.Column != "" {
		filters = append(filters, filter)
	}
	if err := models.ValidateFilters(table, filters); err != nil {
		return nil, err
	}

	sb := database.NewSelectBuilder(db)
	sb.Select(sb.As(groupColumn, "category"), sb.As("COUNT(*)", "count"))
	sb.From(table.String())
	Where(sb, filters)
	sb.GroupBy(groupColumn)
	sb.OrderBy(groupColumn).Asc()

	query, args := sb.Build()

	var counts []models.CategoryCount
	if err := database.QueryerFromContext(ctx, db).SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count %s by %s: %w", table, groupColumn, err)
	}
	return counts, nil
}
