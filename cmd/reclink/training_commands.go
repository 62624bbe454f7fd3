package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"reclink/internal/linkage"
)

func newTrainingCommand(ctx *commandContext) *cobra.Command {
	trainingCmd := &cobra.Command{
		Use:   "training",
		Short: "Inspect or clear the labeled training set",
	}

	trainingCmd.AddCommand(newTrainingShowCommand(ctx))
	trainingCmd.AddCommand(newTrainingStatsCommand(ctx))
	trainingCmd.AddCommand(newTrainingClearCommand(ctx))

	return trainingCmd
}

func newTrainingShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List labeled examples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			examples, err := sess.store.LoadTrainingExamples(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(examples) == 0 {
				fmt.Fprintf(out, "No labeled examples in %s\n", sess.store.Location())
				return nil
			}
			preview := ""
			if fields := sess.cfg.FieldSpecs(); len(fields) > 0 {
				preview = fields[0].Field
			}
			fmt.Fprintln(out, renderExampleTable(examples, preview))
			return nil
		},
	}
}

func newTrainingStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show training set counts by judgment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx := cmd.Context()
			sess, err := ctx.openSession(runCtx, cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			examples, err := sess.store.LoadTrainingExamples(runCtx)
			if err != nil {
				return err
			}
			hasSettings, err := sess.store.HasSettings(runCtx)
			if err != nil {
				return err
			}
			counts := map[linkage.Judgment]int{}
			for _, ex := range examples {
				counts[ex.Judgment]++
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderCountTable("Judgment", "Count", []count{
				{"match", counts[linkage.JudgmentMatch]},
				{"distinct", counts[linkage.JudgmentDistinct]},
				{"total", len(examples)},
			}))
			fmt.Fprintf(out, "Store: %s\n", sess.store.Location())
			fmt.Fprintf(out, "Trained settings present: %s\n", yesNo(hasSettings))
			return nil
		},
	}
}

func newTrainingClearCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the labeled training set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("refusing to clear the training set without --yes")
			}
			sess, err := ctx.openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.store.ClearTrainingExamples(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Training set cleared from %s\n", sess.store.Location())
			fmt.Fprintln(cmd.OutOrStdout(), "Trained settings were kept; run 'reclink label --retrain' to replace them.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm removal of the training set")
	return cmd
}

func formatLabeledAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
