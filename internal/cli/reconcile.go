package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/table"
	"github.com/spf13/cobra"

	"github.com/WilliamDuke02/databaseProject/pkg/ingest"
	"github.com/WilliamDuke02/databaseProject/pkg/keys"
	"github.com/WilliamDuke02/databaseProject/pkg/pipeline"
)

func newReconcileCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run the ingest, reconcile and load pipeline once.",
		Long: `Reads the VIN export and the decoder table, joins them on the derived
VIN key, writes merged_<source> and unmerged_<source> next to the source
and loads merged_admin, merged_nonadmin and unmerged_vins. A missing source
file skips the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			ctx := cmd.Context()

			opts, err := a.pipelineOptions()
			if err != nil {
				return err
			}

			conn, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			producer := a.producer()
			if producer != nil {
				defer producer.Close()
			}

			p := pipeline.New(conn, a.migrations(), keys.NewDeriver(a.cfg.Pipeline.CheckOffset), a.logger,
				pipeline.WithLoader(a.loader(conn)),
				pipeline.WithEmitter(a.emitter(producer)),
			)

			report, runErr := p.Run(ctx, opts)
			if report != nil {
				if err := writeReport(a, output, report); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().String("source", "", "VIN export CSV.")
	cmd.Flags().String("decoder", "", "VIN decoder CSV.")
	cmd.Flags().String("source-encoding", "", "Source charset: utf-8 or latin-1.")
	cmd.Flags().String("decoder-encoding", "", "Decoder charset: utf-8 or latin-1.")
	cmd.Flags().String("work-dir", "", "Directory for merged_ and unmerged_ files. Defaults to the source directory.")
	cmd.Flags().Bool("reset", true, "Drop and recreate the tables before loading.")
	cmd.Flags().Bool("keep-intermediates", false, "Keep the merged_ and unmerged_ files after loading.")
	cmd.Flags().Bool("remove-inputs", false, "Delete the source and decoder files after a successful run.")
	cmd.Flags().Int("check-offset", keys.DefaultCheckOffset, "Zero-based position of the check character in a VIN.")
	cmd.Flags().Uint64("seed", 0, "Seed for zip assignment. 0 picks a random seed.")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "Output format: table, json or yaml.")
	return cmd
}

func (a *app) pipelineOptions() (pipeline.Options, error) {
	pc := a.cfg.Pipeline
	sourceEnc, err := ingest.ParseEncoding(pc.SourceEncoding)
	if err != nil {
		return pipeline.Options{}, err
	}
	decoderEnc, err := ingest.ParseEncoding(pc.DecoderEncoding)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		SourcePath:        pc.SourcePath,
		DecoderPath:       pc.DecoderPath,
		SourceEncoding:    sourceEnc,
		DecoderEncoding:   decoderEnc,
		WorkDir:           pc.WorkDir,
		Reset:             pc.Reset,
		KeepIntermediates: pc.KeepIntermediates,
		RemoveInputs:      pc.RemoveInputs,
	}, nil
}

func writeReport(a *app, output string, report *pipeline.Report) error {
	return write(a.stdout, output, report, table.Row{"field", "value"}, func() []table.Row {
		rows := []table.Row{
			{"run_id", report.RunID},
			{"status", report.Status},
			{"source", report.Source},
			{"decoder", report.Decoder},
			{"records", report.Reconcile.Records},
			{"matched", report.Reconcile.MatchedRecords},
			{"merged_rows", report.Reconcile.MergedRows},
			{"unmerged_rows", report.Reconcile.UnmergedRows},
			{"duplicates", report.Reconcile.Duplicates},
		}
		if report.Load != nil {
			rows = append(rows,
				table.Row{"admin_rows", report.Load.AdminRows},
				table.Row{"nonadmin_rows", report.Load.NonAdminRows},
				table.Row{"keys", fmt.Sprintf("%d-%d", report.Load.FirstKey, report.Load.LastKey)},
			)
		}
		for _, s := range report.Stages {
			rows = append(rows, table.Row{"stage." + s.Stage, s.Duration.String()})
		}
		rows = append(rows, table.Row{"duration", report.Duration.String()})
		if report.Error != "" {
			rows = append(rows, table.Row{"error", report.Error})
		}
		return rows
	})
}
