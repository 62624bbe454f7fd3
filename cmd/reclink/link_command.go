package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reclink/internal/pipeline"
)

func newLinkCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Run the full linkage pipeline and write the merged table",
		Long: "Load both inputs, reuse the trained settings if present (otherwise label\n" +
			"candidate pairs interactively and train), cluster, and write the output.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			sess, err := ctx.openSession(runCtx, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			runner, err := pipeline.New(pipeline.Options{
				Config: sess.cfg,
				Linker: sess.linker,
				Store:  sess.store,
				Judge:  newConsoleJudge(cmd.InOrStdin(), cmd.OutOrStdout()),
				Logger: sess.logger,
				RunID:  sess.runID,
			})
			if err != nil {
				return err
			}
			summary, err := runner.Link(runCtx)
			if err != nil {
				return reportFailure(sess.logger, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary, true, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}
}

func newLabelCommand(ctx *commandContext) *cobra.Command {
	var retrain bool

	cmd := &cobra.Command{
		Use:   "label",
		Short: "Label candidate pairs and train without clustering",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			sess, err := ctx.openSession(runCtx, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			runner, err := pipeline.New(pipeline.Options{
				Config: sess.cfg,
				Linker: sess.linker,
				Store:  sess.store,
				Judge:  newConsoleJudge(cmd.InOrStdin(), cmd.OutOrStdout()),
				Logger: sess.logger,
				RunID:  sess.runID,
			})
			if err != nil {
				return err
			}
			summary, err := runner.Label(runCtx, retrain)
			if err != nil {
				return reportFailure(sess.logger, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSummary(summary, false, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}

	cmd.Flags().BoolVar(&retrain, "retrain", false, "Replace existing trained settings with a newly trained model")
	return cmd
}
