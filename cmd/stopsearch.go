package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/points"
	"github.com/lfr-analysis/lsoa-pipeline/internal/stopsearch"
)

var stopSearchYears []int

var stopSearchCmd = &cobra.Command{
	Use:   "stopsearch",
	Short: "Combine monthly stop-and-search CSVs into one point layer per year",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		years := cfg.StopSearch.Years
		if len(stopSearchYears) > 0 {
			for _, y := range stopSearchYears {
				if !cfg.HasYear(y) {
					return eris.Errorf("stopsearch: year %d is not configured in stop_search.years", y)
				}
			}
			years = stopSearchYears
		}
		return runStopSearch(ctx, years)
	},
}

func init() {
	stopSearchCmd.Flags().IntSliceVar(&stopSearchYears, "year", nil, "years to process (default stop_search.years)")
	rootCmd.AddCommand(stopSearchCmd)
}

func runStopSearch(ctx context.Context, years []int) error {
	log := zap.L().With(zap.String("command", "stopsearch"))

	for _, year := range years {
		dir := cfg.StopSearchDir(year)
		out := cfg.StopSearchOut(year)
		log.Info("loading stop-and-search", zap.Int("year", year), zap.String("dir", dir))

		table, err := stopsearch.Load(ctx, dir, year, cfg.StopSearch.Pattern)
		if err != nil {
			return eris.Wrapf(err, "stopsearch: load %d", year)
		}
		events, missing, err := stopsearch.ToEvents(table, year)
		if err != nil {
			return eris.Wrapf(err, "stopsearch: events %d", year)
		}
		if missing > 0 {
			log.Warn("stop-and-search rows without coordinates",
				zap.Int("year", year),
				zap.Int("missing", missing),
				zap.Int("rows", len(events)),
			)
		}

		if err := points.Write(ctx, out, stopsearch.LayerName(year), table.AttributeColumns(), events); err != nil {
			return eris.Wrapf(err, "stopsearch: write %d", year)
		}
		log.Info("stop-and-search year complete",
			zap.Int("year", year),
			zap.Int("files", len(table.Files)),
			zap.Int("rows", len(events)),
			zap.String("out", out),
		)
	}
	return nil
}
