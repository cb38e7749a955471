package cli

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand(a *app) *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations.",
		Long: `Brings the schema to db.migration_version, or the latest version when it
is 0. With --reset every managed table is dropped and recreated empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()

			if reset {
				return a.migrations().Reset(conn)
			}
			return a.migrations().Migrate(conn)
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Drop and recreate every managed table.")
	return cmd
}
