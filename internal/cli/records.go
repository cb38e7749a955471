package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/table"
	"github.com/spf13/cobra"

	"github.com/WilliamDuke02/databaseProject/pkg/models"
	"github.com/WilliamDuke02/databaseProject/pkg/recordstore"
)

func newRecordsCommand(a *app) *cobra.Command {
	var tableName, output string

	cmd := &cobra.Command{
		Use:   "records",
		Short: "Insert, read, update and delete rows of a managed table.",
		Long: `Rows of merged_admin and unmerged_vins are addressed by VIN, rows of
merged_nonadmin by surrogate key. Writes to merged_admin are mirrored onto
merged_nonadmin.`,
	}
	cmd.PersistentFlags().StringVarP(&tableName, "table", "t", "", "Table to operate on.")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", formatTable, "Output format: table, json or yaml.")
	_ = cmd.MarkPersistentFlagRequired("table")

	parse := func() (models.Table, error) {
		if err := validFormat(output); err != nil {
			return "", err
		}
		return models.ParseTable(tableName)
	}
	show := func(t models.Table, rec recordstore.Record) error {
		return write(a.stdout, output, rec, table.Row{"column", "value"}, func() []table.Row {
			cols, vals := t.Columns(), rec.Strings()
			rows := make([]table.Row, len(cols))
			for i := range cols {
				rows[i] = table.Row{cols[i], vals[i]}
			}
			return rows
		})
	}

	var setValues []string

	insert := &cobra.Command{
		Use:   "insert",
		Short: "Insert a row from --set column=value pairs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parse()
			if err != nil {
				return err
			}
			values, err := parseAssignments(setValues)
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(store *recordstore.Store) error {
				rec, err := store.Insert(cmd.Context(), t, values)
				if err != nil {
					return err
				}
				return show(t, rec)
			})
		},
	}
	insert.Flags().StringArrayVarP(&setValues, "set", "s", nil, "column=value; repeatable.")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Print one row.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parse()
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(store *recordstore.Store) error {
				rec, err := store.Get(cmd.Context(), t, args[0])
				if err != nil {
					return err
				}
				return show(t, rec)
			})
		},
	}

	update := &cobra.Command{
		Use:   "update ID [VALUE...]",
		Short: "Update a row from --set pairs, or positional values for unmerged_vins.",
		Long: fmt.Sprintf(`Merged tables take --set column=value pairs. unmerged_vins takes exactly
%d positional values in the order: %v.`, len(models.UnmergedUpdateColumns), models.UnmergedUpdateColumns),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parse()
			if err != nil {
				return err
			}

			var values models.Values
			if positional := args[1:]; len(positional) > 0 || (t == models.TableUnmergedVINs && len(setValues) == 0) {
				if t != models.TableUnmergedVINs {
					return fmt.Errorf("positional values are only accepted for %s", models.TableUnmergedVINs)
				}
				values, err = models.UnmergedValuesFromList(positional)
			} else {
				values, err = parseAssignments(setValues)
			}
			if err != nil {
				return err
			}

			return a.withStore(cmd, func(store *recordstore.Store) error {
				rec, err := store.Update(cmd.Context(), t, args[0], values)
				if err != nil {
					return err
				}
				return show(t, rec)
			})
		},
	}
	update.Flags().StringArrayVarP(&setValues, "set", "s", nil, "column=value; repeatable.")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a row.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parse()
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(store *recordstore.Store) error {
				if err := store.Delete(cmd.Context(), t, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(a.stdout, "deleted %s from %s\n", args[0], t)
				return err
			})
		},
	}

	cmd.AddCommand(insert, get, update, del)
	return cmd
}
