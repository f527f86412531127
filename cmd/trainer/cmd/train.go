package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/usecase"

	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a single instrument and direction",
	Long: `Train fits the bundle of one key from its training file. The file
defaults to {data-dir}/{INSTRUMENT}_{direction}_training.json.

Example:
  trainer train --instrument MGC --direction long
  trainer train -i ES -d short --file /tmp/es_short.json`,
	RunE: runTrain,
}

var (
	trInstrument string
	trDirection  string
	trFile       string
)

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVarP(&trInstrument, "instrument", "i", "", "instrument, e.g. MGC or \"MGC AUG25\" (required)")
	trainCmd.Flags().StringVarP(&trDirection, "direction", "d", "", "long or short (required)")
	trainCmd.Flags().StringVarP(&trFile, "file", "f", "", "training file (default derived from the key)")

	trainCmd.MarkFlagRequired("instrument")
	trainCmd.MarkFlagRequired("direction")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	key, err := models.NewModelKey(trInstrument, trDirection)
	if err != nil {
		return err
	}

	tk, err := loadToolkit()
	if err != nil {
		return err
	}
	defer tk.Close()

	path := trFile
	if path == "" {
		path = filepath.Join(tk.Config.Training.DataDir, usecase.TrainingFileName(key))
	}
	ds, err := usecase.LoadTrainingFile(usecase.TrainingFileRef{Path: path, Key: key})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := tk.Trainer.Train(ctx, ds)
	printJob(cmd.OutOrStdout(), res)
	if !res.Succeeded() {
		return fmt.Errorf("train %s: %w", key, res.Err)
	}
	return nil
}
