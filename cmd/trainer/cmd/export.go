package cmd

import (
	"errors"
	"fmt"
	"time"

	"TradeGP/internal/di"
	"TradeGP/internal/usecase"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write per-key training files from the trade records",
	Long: `Export fetches the trade records, groups them by instrument and
direction and writes one {INSTRUMENT}_{direction}_training.json per key
with enough samples. Keys with too few records are listed and skipped.

Example:
  trainer export --out data
  trainer export --file data/export_20240502T093000Z.json --instrument MGC`,
	RunE: runExport,
}

var (
	exportFile        string
	exportOut         string
	exportInstruments []string
	exportRaw         bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "", "read records from a raw export instead of storage.source")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output directory (default training.data_dir)")
	exportCmd.Flags().StringSliceVarP(&exportInstruments, "instrument", "i", nil, "only these instruments")
	exportCmd.Flags().BoolVar(&exportRaw, "raw", false, "also keep the fetched records as export_{timestamp}.json")
}

func runExport(cmd *cobra.Command, _ []string) error {
	tk, err := loadToolkit()
	if err != nil {
		return err
	}
	defer tk.Close()

	source := recordSource(tk.Source, exportFile)
	if source == nil {
		return errors.New("no record source: set storage.source or --file")
	}
	vectors, err := source.FetchVectors(cmd.Context())
	if err != nil {
		return err
	}

	out := exportOut
	if out == "" {
		out = tk.Config.Training.DataDir
	}
	w := cmd.OutOrStdout()

	groups := usecase.GroupVectors(vectors, di.ProvideGroupConfig(tk.Config))
	datasets := usecase.FilterInstruments(groups.Datasets, exportInstruments)
	paths, err := usecase.WriteTrainingFiles(out, datasets)
	if err != nil {
		return err
	}
	for i, p := range paths {
		fmt.Fprintf(w, "  %-16s %5d samples  %s\n", datasets[i].Key, datasets[i].Len(), p)
	}
	for key, n := range groups.Skipped {
		fmt.Fprintf(w, "  %-16s %5d samples  skipped (need %d)\n", key, n, tk.Config.Training.MinGroupSamples)
	}
	if groups.Dropped > 0 {
		fmt.Fprintf(w, "  %d records without a valid key or features dropped\n", groups.Dropped)
	}

	if exportRaw {
		p, err := usecase.WriteRawExport(out, vectors, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  raw export: %s\n", p)
	}
	fmt.Fprintf(w, "\nExported %d of %d records into %d training files\n", len(vectors)-groups.Dropped, len(vectors), len(paths))
	return nil
}
