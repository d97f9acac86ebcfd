package main

import (
	"context"
	"os/signal"
	"slices"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize LFR deployments against stop-and-search and deprivation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		overrideString(cmd, "input", &cfg.Paths.CombinedOut)
		overrideString(cmd, "out", &cfg.Paths.SummaryOut)
		return runStats(ctx)
	},
}

func init() {
	statsCmd.Flags().String("input", "", "combined table, .gpkg or .csv (overrides paths.combined_out)")
	statsCmd.Flags().String("out", "", "summary CSV (overrides paths.summary_out)")
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context) error {
	log := zap.L().With(zap.String("command", "stats"))
	log.Info("summarizing", zap.String("input", cfg.Paths.CombinedOut))

	records, years, err := stats.LoadCombined(ctx, cfg.Paths.CombinedOut)
	if err != nil {
		return eris.Wrap(err, "stats: load combined table")
	}
	if !slices.Contains(years, cfg.Stats.CompareYear) {
		return eris.Errorf("stats: combined table has no counts for %d", cfg.Stats.CompareYear)
	}

	summary, err := stats.Summarize(records, stats.Options{
		Year:      cfg.Stats.CompareYear,
		Quantiles: cfg.Stats.Quantiles,
	})
	if err != nil {
		return eris.Wrap(err, "stats: summarize")
	}
	if err := stats.WriteSummaryFile(cfg.Paths.SummaryOut, summary); err != nil {
		return eris.Wrap(err, "stats: write summary")
	}

	log.Info("stats complete",
		zap.Int("areas", len(records)),
		zap.Int("total_lfr", summary.TotalLFR),
		zap.String("out", cfg.Paths.SummaryOut),
	)
	return nil
}
