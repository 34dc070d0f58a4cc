package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voicestudio/internal/backend"
	"github.com/dgnsrekt/voicestudio/internal/effects"
	"github.com/dgnsrekt/voicestudio/internal/quality"
	"github.com/dgnsrekt/voicestudio/internal/utils"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

var (
	generateOutput     string
	generateVoice      string
	generateSpeed      float64
	generateTaskID     string
	generateInnerVoice string
	generateNoReport   bool
	generateDryRun     bool
	generateJSON       bool

	generateCmd = &cobra.Command{
		Use:   "generate TEXT",
		Short: "Generate one line of speech with quality control",
		Long: paragraph(fmt.Sprintf("\n%s candidates for TEXT, score each one and keep the best. "+
			"A quality report is written next to the output.", keyword("Generate"))),
		Example: paragraph("voicestudio generate \"Hello there.\" -o hello.wav\n" +
			"voicestudio generate \"I shouldn't have come.\" -o thought.wav --inner-voice dreamy"),
		Args: cobra.ExactArgs(1),
		RunE: runGenerate,
	}
)

func init() {
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "output.wav", "output file")
	generateCmd.Flags().StringVar(&generateVoice, "voice", "", "voice id")
	generateCmd.Flags().Float64Var(&generateSpeed, "speed", 0, "speaking speed")
	generateCmd.Flags().StringVar(&generateTaskID, "task-id", "", "task id used in file and report names")
	generateCmd.Flags().StringVar(&generateInnerVoice, "inner-voice", "", "apply an inner voice preset (light, deep, dreamy)")
	generateCmd.Flags().BoolVar(&generateNoReport, "no-report", false, "do not write the quality report")
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "use the tone generator and skip speech-to-text")
	generateCmd.Flags().BoolVar(&generateJSON, "json", false, "print the report as JSON")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(args[0])
	if text == "" {
		return errors.New("text is empty")
	}

	p, err := newPipeline(cfg, generateDryRun)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	params := voice.Params{VoiceID: generateVoice}
	if generateSpeed > 0 {
		params.Speed = voice.Float(generateSpeed)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	report, err := p.controller.Generate(ctx, text, params, backend.Func(p.backend), generateTaskID)
	if err != nil {
		return err
	}

	output := ""
	if report.BestCandidate != nil {
		output = generateOutput
		if filepath.Ext(output) == "" {
			output += filepath.Ext(report.AudioPath())
		}
		if err := utils.MoveFile(report.AudioPath(), output); err != nil {
			return fmt.Errorf("unable to write output: %w", err)
		}
		report.BestCandidate.AudioPath = output

		if generateInnerVoice != "" {
			processed := strings.TrimSuffix(output, filepath.Ext(output)) + "_inner_" + generateInnerVoice + filepath.Ext(output)
			if err := p.effects.Apply(ctx, output, processed, generateInnerVoice, nil); err != nil {
				if errors.Is(err, effects.ErrUnknownPreset) {
					return err
				}
				fmt.Fprintln(os.Stderr, failure(fmt.Sprintf("inner voice not applied: %v", err)))
			} else {
				_ = os.Remove(output)
				output = processed
				report.BestCandidate.AudioPath = output
			}
		}
	}

	if !generateNoReport {
		dir := filepath.Dir(generateOutput)
		if _, err := quality.SaveReport(report, dir); err != nil {
			return err
		}
	}

	if generateJSON {
		if err := writeJSON(os.Stdout, report); err != nil {
			return err
		}
	} else {
		printReport(os.Stdout, report, output)
	}

	if report.BestCandidate == nil {
		return errors.New("no candidate produced usable audio")
	}
	return nil
}
