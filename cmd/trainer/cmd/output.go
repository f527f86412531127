package cmd

import (
	"fmt"
	"io"
	"time"

	"TradeGP/internal/domain/models"
	"TradeGP/internal/usecase"
)

func printJob(w io.Writer, r *models.JobResult) {
	if r.Succeeded() {
		fmt.Fprintf(w, "  %-16s ok      %5d samples  r2=%.3f mae=%.3f  %s\n",
			r.Key, r.SampleCount, r.Metrics.TestR2, r.Metrics.TestMAE, r.Duration.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "  %-16s failed  at %s: %v\n", r.Key, r.FailedAt, r.Err)
}

func printJobs(w io.Writer, s *models.TrainingSummary, results []*models.JobResult) {
	for _, r := range results {
		printJob(w, r)
	}
	fmt.Fprintf(w, "\nRun %s: %d trained, %d failed\n", s.RunID, s.TotalModels, s.Failed)
}

func printAudit(w io.Writer, r *usecase.AuditReport) {
	fmt.Fprintf(w, "Records: %d\n", r.TotalRecords)
	fmt.Fprintf(w, "PnL: mean=%.2f std=%.2f min=%.2f max=%.2f unique=%d win_rate=%.1f%%\n",
		r.PnL.Mean, r.PnL.Std, r.PnL.Min, r.PnL.Max, r.PnL.Unique, r.WinRate*100)
	fmt.Fprintf(w, "Records with features: %.1f%%\n\n", r.FeatureRate*100)

	for _, k := range r.Keys {
		fmt.Fprintf(w, "  %-16s %6d  mean_pnl=%8.2f  win_rate=%5.1f%%\n", k.Key, k.Count, k.MeanPnL, k.WinRate*100)
	}
	fmt.Fprintln(w)
	for _, c := range r.Checks {
		fmt.Fprintf(w, "  %-18s %2d/%-2d  %s\n", c.Name, c.Score, c.Max, c.Detail)
	}

	verdict := "NOT READY"
	switch {
	case r.Ready && r.Caveats:
		verdict = "READY WITH CAVEATS"
	case r.Ready:
		verdict = "READY"
	}
	fmt.Fprintf(w, "\nScore: %d/%d (%.1f%%) %s\n", r.Score, r.MaxScore, r.Percentage, verdict)
	for _, issue := range r.Issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}
