package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/aggregate"
	"github.com/lfr-analysis/lsoa-pipeline/internal/geo"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Join point layers to LSOA polygons and merge with IMD deciles",
	Long: "Loads the LSOA boundaries, every stop-and-search year, the LFR deployments and the IMD " +
		"deciles, counts events per area and writes the combined table as a polygon layer and a CSV.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		overrideString(cmd, "boundaries", &cfg.LSOA.ZipPath)
		overrideString(cmd, "out", &cfg.Paths.CombinedOut)
		overrideString(cmd, "csv-out", &cfg.Paths.CombinedCSV)
		return runAggregate(ctx)
	},
}

func init() {
	aggregateCmd.Flags().String("boundaries", "", "LSOA boundary zip (overrides lsoa.zip_path)")
	aggregateCmd.Flags().String("out", "", "output GeoPackage (overrides paths.combined_out)")
	aggregateCmd.Flags().String("csv-out", "", "output CSV (overrides paths.combined_csv)")
	rootCmd.AddCommand(aggregateCmd)
}

func aggregateInputs() aggregate.Inputs {
	in := aggregate.Inputs{
		BoundaryZip:    cfg.LSOA.ZipPath,
		BoundaryMember: cfg.LSOA.Member,
		Boundary: geo.LoadOptions{
			Projection: cfg.LSOA.Projection,
			TempDir:    cfg.LSOA.TempDir,
		},
		StopSearch:   make(map[int]string, len(cfg.StopSearch.Years)),
		LFR:          cfg.Paths.LFROut,
		LFRYear:      cfg.Stats.CompareYear,
		IMD:          cfg.Paths.IMDOut,
		IMDKeyColumn: cfg.IMD.KeyColumn,
		IMDDecileCol: cfg.IMD.DecileCol,
		BaselineYear: cfg.Stats.BaselineYear,
		CompareYear:  cfg.Stats.CompareYear,
	}
	for _, y := range cfg.StopSearch.Years {
		in.StopSearch[y] = cfg.StopSearchOut(y)
	}
	return in
}

func runAggregate(ctx context.Context) error {
	log := zap.L().With(zap.String("command", "aggregate"))
	log.Info("aggregating per area", zap.String("boundaries", cfg.LSOA.ZipPath))

	res, err := aggregate.Run(ctx, aggregateInputs())
	if err != nil {
		return eris.Wrap(err, "aggregate")
	}

	if err := aggregate.WriteGeoPackage(ctx, cfg.Paths.CombinedOut, res.Years, res.Records); err != nil {
		return eris.Wrap(err, "aggregate: write geopackage")
	}
	if err := aggregate.WriteCSVFile(cfg.Paths.CombinedCSV, res.Years, res.Records); err != nil {
		return eris.Wrap(err, "aggregate: write csv")
	}

	log.Info("aggregate complete",
		zap.Int("areas", len(res.Records)),
		zap.Int("missing_imd", len(res.Validation.MissingIMD)),
		zap.String("out", cfg.Paths.CombinedOut),
	)
	return nil
}
