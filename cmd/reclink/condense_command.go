package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"reclink/internal/condense"
)

func newCondenseCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "condense <merged.csv>",
		Short: "Collapse a merged table into one record per cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, closeLog, err := ctx.newLogger(cmd, cfg, uuid.NewString())
			if err != nil {
				return err
			}
			defer closeLog()
			result, err := condense.File(cmd.Context(), args[0], outputPath, cmd.OutOrStdout(), condense.Options{
				DropColumns:  cfg.Condense.DropColumns,
				MergeColumns: cfg.Condense.MergeColumns,
				Logger:       logger,
			})
			if err != nil {
				return reportFailure(logger, err)
			}
			if outputPath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d records (%d clusters, %d unclustered) to %s\n",
					len(result.Records), result.Clusters, result.Unclustered, outputPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the condensed CSV here instead of stdout")
	return cmd
}
