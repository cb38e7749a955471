package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/table"
	"github.com/spf13/cobra"

	"github.com/WilliamDuke02/databaseProject/pkg/export"
	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/recordstore"
)

func (a *app) withStore(cmd *cobra.Command, fn func(store *recordstore.Store) error) error {
	conn, err := a.openDB(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	producer := a.producer()
	if producer != nil {
		defer producer.Close()
	}
	return fn(recordstore.NewStore(conn, a.logger, recordstore.WithEmitter(a.emitter(producer))))
}

// parseAssignments turns col=value pairs into values.
func parseAssignments(pairs []string) (models.Values, error) {
	values := make(models.Values, len(pairs))
	for _, pair := range pairs {
		col, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(col) == "" {
			return nil, fmt.Errorf("expected column=value, got %q", pair)
		}
		values[strings.TrimSpace(col)] = val
	}
	return values, nil
}

func parseFilters(pairs []string) ([]models.Filter, error) {
	filters := make([]models.Filter, 0, len(pairs))
	for _, pair := range pairs {
		col, val, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(col) == "" {
			return nil, fmt.Errorf("expected column=value, got %q", pair)
		}
		filters = append(filters, models.Filter{Column: strings.TrimSpace(col), Value: val})
	}
	return filters, nil
}

func newExportCommand(a *app) *cobra.Command {
	var (
		tableName string
		filters   []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a table to <table>_export.csv without a header row.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := models.ParseTable(tableName)
			if err != nil {
				return err
			}
			fs, err := parseFilters(filters)
			if err != nil {
				return err
			}

			return a.withStore(cmd, func(store *recordstore.Store) error {
				path, rows, err := export.ToFile(cmd.Context(), store, a.logger, t, fs, a.cfg.Pipeline.ExportDir)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.stdout, "wrote %d rows to %s\n", rows, path)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Table to export.")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "column=value filter; repeatable. A value of Any matches every row.")
	cmd.Flags().String("dir", "", "Directory to write to.")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newCountsCommand(a *app) *cobra.Command {
	var (
		tableName, group, column, value, output string
	)

	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Count rows per distinct value of a column.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			t, err := models.ParseTable(tableName)
			if err != nil {
				return err
			}

			return a.withStore(cmd, func(store *recordstore.Store) error {
				counts, err := store.CountBy(cmd.Context(), t, group, column, value)
				if err != nil {
					return err
				}
				return write(a.stdout, output, counts, table.Row{group, "count"}, func() []table.Row {
					rows := make([]table.Row, len(counts))
					for i, c := range counts {
						rows[i] = table.Row{c.Category, c.Count}
					}
					return rows
				})
			})
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Table to aggregate.")
	cmd.Flags().StringVarP(&group, "group", "g", "", "Column to group by.")
	cmd.Flags().StringVar(&column, "column", "", "Optional filter column.")
	cmd.Flags().StringVar(&value, "value", models.AnyValue, "Filter value. Any disables the filter.")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "Output format: table, json or yaml.")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func newDistinctCommand(a *app) *cobra.Command {
	var tableName, output string

	cmd := &cobra.Command{
		Use:   "distinct",
		Short: "List the distinct values of every column of a table.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			t, err := models.ParseTable(tableName)
			if err != nil {
				return err
			}

			return a.withStore(cmd, func(store *recordstore.Store) error {
				values, err := store.DistinctValues(cmd.Context(), t)
				if err != nil {
					return err
				}
				return write(a.stdout, output, values, table.Row{"column", "values"}, func() []table.Row {
					rows := make([]table.Row, len(values))
					for i, v := range values {
						rows[i] = table.Row{v.Column, strings.Join(v.Values, ", ")}
					}
					return rows
				})
			})
		},
	}

	cmd.Flags().StringVarP(&tableName, "table", "t", "", "Table to inspect.")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "Output format: table, json or yaml.")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
