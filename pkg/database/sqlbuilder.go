package database

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
)

// DefaultBatchSize keeps multi-row inserts under sqlite's bound variable limit
// for the widest managed table.
const DefaultBatchSize = 500

func NewSelectBuilder(db DB) *sqlbuilder.SelectBuilder {
	return db.Flavor().NewSelectBuilder()
}

func NewInsertBuilder(db DB) *sqlbuilder.InsertBuilder {
	return db.Flavor().NewInsertBuilder()
}

func NewUpdateBuilder(db DB) *sqlbuilder.UpdateBuilder {
	return db.Flavor().NewUpdateBuilder()
}

func NewDeleteBuilder(db DB) *sqlbuilder.DeleteBuilder {
	return db.Flavor().NewDeleteBuilder()
}

// InsertBatches writes rows into table using multi-row INSERT statements of at
// most batchSize rows each. It returns the number of rows written.
func InsertBatches(ctx context.Context, q Queryer, flavor sqlbuilder.Flavor, table string, cols []string, rows [][]any, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	written := 0
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		ib := flavor.NewInsertBuilder()
		ib.InsertInto(table)
		ib.Cols(cols...)
		for _, row := range rows[start:end] {
			if len(row) != len(cols) {
				return written, fmt.Errorf("row has %d values for %d columns of %s", len(row), len(cols), table)
			}
			ib.Values(row...)
		}

		query, args := ib.Build()
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return written, fmt.Errorf("failed to insert batch into %s: %w", table, err)
		}
		written += end - start
	}

	return written, nil
}

// MaxInt64 returns MAX(column) over table, or 0 when the table is empty.
func MaxInt64(ctx context.Context, q Queryer, flavor sqlbuilder.Flavor, table, column string) (int64, error) {
	sb := flavor.NewSelectBuilder()
	sb.Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", column))
	sb.From(table)

	query, args := sb.Build()

	var maxValue int64
	if err := q.GetContext(ctx, &maxValue, query, args...); err != nil {
		return 0, fmt.Errorf("failed to read max %s from %s: %w", column, table, err)
	}
	return maxValue, nil
}
