package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voicestudio/internal/backend"
	"github.com/dgnsrekt/voicestudio/internal/batch"
	"github.com/dgnsrekt/voicestudio/internal/project"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

var (
	batchOutput    string
	batchWorkers   int
	batchThreshold float64
	batchDryRun    bool
	batchNoConcat  bool
	batchNoReports bool
	batchPolicy    string
	batchVoice     string
	batchSpeed     float64
	batchJSON      bool

	batchCmd = &cobra.Command{
		Use:   "batch SOURCE_DIR",
		Short: "Generate audio for every script project in a directory",
		Long: paragraph(fmt.Sprintf("\n%s every script under SOURCE_DIR in parallel. Each dialogue line goes through "+
			"quality-controlled generation; lines that never produce usable audio are reported and the rest of the batch carries on.",
			keyword("Voice"))),
		Example: paragraph("voicestudio batch ./scripts -o ./audio\nvoicestudio batch ./scripts -o ./audio --workers 4 --dry-run"),
		Args:    cobra.ExactArgs(1),
		RunE:    runBatch,
	}
)

func init() {
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "output directory")
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "parallel workers (default from config, then min(8, CPUs))")
	batchCmd.Flags().Float64Var(&batchThreshold, "threshold", 0, "quality threshold override (0.0-1.0)")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "use the tone generator and skip speech-to-text")
	batchCmd.Flags().BoolVar(&batchNoConcat, "no-concat", false, "skip segment and final concatenation")
	batchCmd.Flags().BoolVar(&batchNoReports, "no-reports", false, "do not write quality reports")
	batchCmd.Flags().StringVar(&batchPolicy, "match", "", "character matching policy: distinct or similarity")
	batchCmd.Flags().StringVar(&batchVoice, "voice", "", "default voice id")
	batchCmd.Flags().Float64Var(&batchSpeed, "speed", 0, "default speaking speed")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "print the result as JSON")
	_ = batchCmd.MarkFlagRequired("output")
}

func runBatch(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("threshold") {
		if batchThreshold < 0 || batchThreshold > 1 {
			return fmt.Errorf("threshold must be between 0.0 and 1.0, got %.2f", batchThreshold)
		}
		cfg.Quality.Threshold = batchThreshold
	}
	policy := project.Policy(cfg.Batch.MatchPolicy)
	if batchPolicy != "" {
		policy = project.Policy(batchPolicy)
		if policy != project.PolicyDistinct && policy != project.PolicySimilarity {
			return fmt.Errorf("unknown match policy %q", batchPolicy)
		}
	}
	workers := cfg.Batch.Workers
	if batchWorkers > 0 {
		workers = batchWorkers
	}

	out, err := filepath.Abs(batchOutput)
	if err != nil {
		return fmt.Errorf("unable to resolve output directory: %w", err)
	}

	p, err := newPipeline(cfg, batchDryRun)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	stop := serveMetrics(cfg.Metrics.Addr)
	defer stop()

	proc := batch.NewProcessor(p.controller,
		batch.WithEffects(p.effects),
		batch.WithConcatenator(p.concat),
		batch.WithMatcher(project.NewMatcher(policy, cfg.Batch.MatchThreshold)),
		batch.WithWorkers(workers),
		batch.WithLogger(log.Default()),
	)

	settings := voice.Params{VoiceID: batchVoice}
	if batchSpeed > 0 {
		settings.Speed = voice.Float(batchSpeed)
	}

	job, err := proc.CreateJob(args[0], out, settings, batch.Options{
		SaveReports:       cfg.Batch.SaveReports && !batchNoReports,
		Concatenate:       cfg.Batch.Concatenate && !batchNoConcat,
		DefaultInnerVoice: cfg.Batch.DefaultInnerVoice,
	})
	if err != nil {
		return err
	}
	if batchDryRun {
		log.Info("Dry run: using the tone generator", "backend", p.backend.Name())
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	res := proc.ProcessJob(ctx, job, backend.Func(p.backend), progressPrinter(os.Stderr))

	if batchJSON {
		if err := writeJSON(os.Stdout, res); err != nil {
			return err
		}
	} else {
		printResult(os.Stdout, res, p.controller.Stats())
	}

	if !res.Success {
		return fmt.Errorf("%d of %d units failed", res.FilesFailed, res.FilesFailed+res.FilesProcessed)
	}
	return nil
}
