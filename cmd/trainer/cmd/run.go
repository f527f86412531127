package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"TradeGP/internal/domain/models"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Train every key in the data directory",
	Long: `Run trains one model bundle per {instrument}_{direction}_training.json
file in the data directory, one key at a time. A failing key is reported and
skipped; the others still train. A training_summary.json is written next to
the bundles.

With --from-source the records are fetched from the configured storage
source and grouped per key instead.

Example:
  trainer run --data-dir data --models-dir models
  trainer run --from-source --instrument MGC --instrument ES`,
	RunE: runRun,
}

var (
	runFromSource  bool
	runInstruments []string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runFromSource, "from-source", false, "train from storage.source records instead of training files")
	runCmd.Flags().StringSliceVarP(&runInstruments, "instrument", "i", nil, "with --from-source: only these instruments")
}

func runRun(cmd *cobra.Command, _ []string) error {
	tk, err := loadToolkit()
	if err != nil {
		return err
	}
	defer tk.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		summary *models.TrainingSummary
		results []*models.JobResult
	)
	if runFromSource {
		if tk.Source == nil {
			return errors.New("no record source: storage.source is none")
		}
		summary, results, err = tk.Batch.TrainFromSource(ctx, tk.Source, runInstruments)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Training from %s into %s\n\n", tk.Config.Training.DataDir, tk.Config.Models.Dir)
		summary, results, err = tk.Batch.RunDir(ctx, tk.Config.Training.DataDir)
	}
	if err != nil {
		return fmt.Errorf("training run: %w", err)
	}

	printJobs(cmd.OutOrStdout(), summary, results)
	if len(results) > 0 && summary.TotalModels == 0 {
		return errors.New("no model trained")
	}
	return nil
}
