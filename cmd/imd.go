package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lfr-analysis/lsoa-pipeline/internal/imd"
)

var imdCmd = &cobra.Command{
	Use:   "imd",
	Short: "Convert the IMD spreadsheet sheet to CSV",
	Long:  "Reads the configured sheet of the IMD workbook, renames the area code column and writes the processed CSV.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		overrideString(cmd, "input", &cfg.IMD.Path)
		overrideString(cmd, "sheet", &cfg.IMD.Sheet)
		overrideString(cmd, "out", &cfg.Paths.IMDOut)
		return runIMD(ctx)
	},
}

func init() {
	imdCmd.Flags().String("input", "", "IMD workbook (overrides imd.path)")
	imdCmd.Flags().String("sheet", "", "sheet name (overrides imd.sheet)")
	imdCmd.Flags().String("out", "", "output CSV (overrides paths.imd_out)")
	rootCmd.AddCommand(imdCmd)
}

func runIMD(ctx context.Context) error {
	log := zap.L().With(zap.String("command", "imd"))
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "imd")
	}
	log.Info("loading imd workbook", zap.String("path", cfg.IMD.Path), zap.String("sheet", cfg.IMD.Sheet))

	opts := imd.Options{}
	for _, r := range cfg.IMD.Rename {
		opts.Rename = append(opts.Rename, imd.Rename{From: r.From, To: r.To})
	}
	table, err := imd.Load(cfg.IMD.Path, cfg.IMD.Sheet, opts)
	if err != nil {
		return eris.Wrap(err, "imd: load")
	}
	if table.Column(cfg.IMD.KeyColumn) < 0 {
		return eris.Errorf("imd: sheet has no %s column after renaming", cfg.IMD.KeyColumn)
	}

	if err := imd.WriteCSVFile(cfg.Paths.IMDOut, table); err != nil {
		return eris.Wrap(err, "imd: write")
	}

	log.Info("imd complete", zap.Int("rows", len(table.Rows)), zap.String("out", cfg.Paths.IMDOut))
	return nil
}
