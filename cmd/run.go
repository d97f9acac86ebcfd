package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type stage struct {
	name string
	run  func(context.Context) error
}

func pipelineStages() []stage {
	return []stage{
		{"imd", runIMD},
		{"lfr", runLFR},
		{"stopsearch", func(ctx context.Context) error { return runStopSearch(ctx, cfg.StopSearch.Years) }},
		{"aggregate", runAggregate},
		{"stats", runStats},
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in order",
	Long:  "Runs imd, lfr, stopsearch, aggregate and stats with the same configuration. A failing stage stops the run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		skip, _ := cmd.Flags().GetStringSlice("skip")
		return runPipeline(ctx, pipelineStages(), skip)
	},
}

func init() {
	runCmd.Flags().StringSlice("skip", nil, "stages to skip, e.g. --skip lfr to reuse an existing deployment layer")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(ctx context.Context, stages []stage, skip []string) error {
	log := zap.L().With(zap.String("command", "run"))
	known := make(map[string]bool, len(stages))
	for _, s := range stages {
		known[s.name] = true
	}
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		if !known[s] {
			return eris.Errorf("run: unknown stage %q", s)
		}
		skipped[s] = true
	}

	start := time.Now()
	for i, s := range stages {
		if skipped[s.name] {
			log.Info("stage skipped", zap.String("stage", s.name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "run: cancelled before %s", s.name)
		}
		stageStart := time.Now()
		log.Info("stage started", zap.String("stage", s.name), zap.Int("step", i+1), zap.Int("of", len(stages)))
		if err := s.run(ctx); err != nil {
			return eris.Wrapf(err, "run: stage %s", s.name)
		}
		log.Info("stage finished", zap.String("stage", s.name), zap.Duration("elapsed", time.Since(stageStart)))
	}
	log.Info("pipeline complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}
