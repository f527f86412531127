package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	domrepo "TradeGP/internal/domain/repository"
	"TradeGP/internal/repository"
	"TradeGP/internal/usecase"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Score whether the trade records are ready for training",
	Long: `Audit rates the trade records on volume, PnL quality, feature coverage
and key balance, out of 100. Records are ready for training at 60% and
above.

Example:
  trainer audit
  trainer audit --file data/export_20240502T093000Z.json --json`,
	RunE: runAudit,
}

var (
	auditFile   string
	auditJSON   bool
	auditStrict bool
)

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVarP(&auditFile, "file", "f", "", "read records from a raw export instead of storage.source")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "print the report as JSON")
	auditCmd.Flags().BoolVar(&auditStrict, "strict", false, "exit non-zero when the records are not ready")
}

func runAudit(cmd *cobra.Command, _ []string) error {
	tk, err := loadToolkit()
	if err != nil {
		return err
	}
	defer tk.Close()

	source := recordSource(tk.Source, auditFile)
	if source == nil {
		return errors.New("no record source: set storage.source or --file")
	}
	vectors, err := source.FetchVectors(cmd.Context())
	if err != nil {
		return err
	}

	report := usecase.AuditVectors(vectors)
	if auditJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printAudit(cmd.OutOrStdout(), report)
	}

	if auditStrict && !report.Ready {
		return fmt.Errorf("records not ready for training: %.1f%%", report.Percentage)
	}
	return nil
}

// recordSource prefers an explicit raw export file over the configured source.
func recordSource(configured domrepo.RecordSource, file string) domrepo.RecordSource {
	if file != "" {
		return repository.NewFileRecordSource(file)
	}
	return configured
}
