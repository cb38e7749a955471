// Package cli implements the vinledger command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/WilliamDuke02/databaseProject/config"
	"github.com/WilliamDuke02/databaseProject/db"
	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/events"
	"github.com/WilliamDuke02/databaseProject/pkg/kafka"
	"github.com/WilliamDuke02/databaseProject/pkg/logging"
	"github.com/WilliamDuke02/databaseProject/pkg/materialize"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// flagKeys maps command line flags onto config keys. A flag only overrides
// the config when it is set.
var flagKeys = map[string]string{
	"log-level":          "log.level",
	"driver":             "db.driver",
	"dsn":                "db.dsn",
	"source":             "pipeline.source_path",
	"decoder":            "pipeline.decoder_path",
	"source-encoding":    "pipeline.source_encoding",
	"decoder-encoding":   "pipeline.decoder_encoding",
	"work-dir":           "pipeline.work_dir",
	"reset":              "pipeline.reset",
	"keep-intermediates": "pipeline.keep_intermediates",
	"remove-inputs":      "pipeline.remove_inputs",
	"check-offset":       "pipeline.check_offset",
	"seed":               "pipeline.seed",
	"dir":                "pipeline.export_dir",
	"port":               "http.port",
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	envPath    string

	cfg             *config.Config
	logger          ectologger.Logger
	zap             *zap.Logger
	shutdownTracing func(context.Context) error
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	rc := &cobra.Command{
		Use:   "vinledger",
		Short: "Reconcile vehicle VIN records against a decoder table and manage the results.",
		Long: `vinledger joins a VIN export with a VIN decoder table, splits the result
into merged and unmerged sets, loads them into merged_admin, merged_nonadmin
and unmerged_vins, and serves CRUD, export and aggregate queries over them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}

	rc.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Configuration file to read from.")
	rc.PersistentFlags().StringVar(&a.envPath, "env", ".", "Directory holding .env and .env.local.")
	rc.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error.")
	rc.PersistentFlags().String("driver", "", "Database driver: sqlite or postgres.")
	rc.PersistentFlags().String("dsn", "", "Database connection string.")

	rc.AddCommand(newReconcileCommand(a))
	rc.AddCommand(newServeCommand(a))
	rc.AddCommand(newMigrateCommand(a))
	rc.AddCommand(newExportCommand(a))
	rc.AddCommand(newCountsCommand(a))
	rc.AddCommand(newDistinctCommand(a))
	rc.AddCommand(newRecordsCommand(a))
	rc.AddCommand(newVersionCommand(a))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func (a *app) setup(cmd *cobra.Command) error {
	v := config.New(a.configFile, a.envPath)
	if err := config.Read(v, a.configFile); err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Unmarshal(v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, a.zap, err = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		Fields: map[string]any{"service": cfg.App.Name, "environment": cfg.App.Environment},
	})
	if err != nil {
		return err
	}

	a.shutdownTracing, err = tracing.Init(cmd.Context(), cfg.TracingConfig(), a.logger)
	return err
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.logger.WithError(err).Warn("failed to flush traces")
		}
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func (a *app) openDB(ctx context.Context) (database.DB, error) {
	return database.Open(ctx, a.cfg.Database(), a.logger)
}

func (a *app) migrations() *database.MigrationService {
	return database.NewMigrationService(a.logger, &database.MigrationConfig{
		MigrationFolderPath: a.cfg.DB.MigrationsPath,
		Embedded:            db.Migrations,
		EmbeddedDir:         db.MigrationsDir,
		Version:             a.cfg.DB.MigrationVersion,
		Force:               a.cfg.DB.MigrationForce,
		AutoRollback:        a.cfg.DB.AutoRollback,
	})
}

// producer returns nil when kafka is disabled.
func (a *app) producer() *kafka.Producer {
	if !a.cfg.Kafka.Enabled {
		return nil
	}
	return kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      kafka.ParseBrokers(a.cfg.Kafka.Brokers),
		Topic:        a.cfg.Kafka.Topic,
		BatchSize:    a.cfg.Kafka.BatchSize,
		BatchTimeout: a.cfg.Kafka.BatchTimeout,
		RequiredAcks: a.cfg.Kafka.RequiredAcks,
		Compression:  a.cfg.Kafka.Compression,
	}, a.logger)
}

func (a *app) emitter(p *kafka.Producer) *events.Emitter {
	if p == nil {
		return events.NewEmitter(nil, a.logger)
	}
	return events.NewEmitter(p, a.logger)
}

func (a *app) loader(conn database.DB) *materialize.Loader {
	var opts []materialize.Option
	if seed := a.cfg.Pipeline.Seed; seed != 0 {
		opts = append(opts, materialize.WithRand(rand.New(rand.NewPCG(seed, seed))))
	}
	return materialize.NewLoader(conn, a.logger, opts...)
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vinledger version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(a.stdout, Version)
			return err
		},
	}
}
