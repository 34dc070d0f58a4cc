package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/voicestudio/internal/effects"
)

var (
	effectPreset string
	effectDelay  float64
	effectDecay  float64
	effectGain   float64
	effectList   bool

	effectCmd = &cobra.Command{
		Use:   "effect IN OUT",
		Short: "Apply an inner voice effect to a clip",
		Long: paragraph(fmt.Sprintf("\n%s an inner voice preset with ffmpeg. --delay, --decay and --gain override "+
			"the preset's echo parameters.", keyword("Apply"))),
		Example: paragraph("voicestudio effect --preset deep line.wav line_inner.wav\nvoicestudio effect --list"),
		Args: func(cmd *cobra.Command, args []string) error {
			if effectList {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: runEffect,
	}
)

func init() {
	effectCmd.Flags().StringVarP(&effectPreset, "preset", "p", effects.Light, "preset name")
	effectCmd.Flags().Float64Var(&effectDelay, "delay", 0, "echo delay in ms")
	effectCmd.Flags().Float64Var(&effectDecay, "decay", 0, "echo decay")
	effectCmd.Flags().Float64Var(&effectGain, "gain", 0, "echo gain")
	effectCmd.Flags().BoolVarP(&effectList, "list", "l", false, "list presets and their filters")
}

func runEffect(cmd *cobra.Command, args []string) error {
	fx, err := newEffects(cfg)
	if err != nil {
		return err
	}

	if effectList {
		for _, name := range fx.Presets() {
			filter, err := fx.Filter(name, nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", cell(name, 10), faint(filter))
		}
		return nil
	}

	var custom *effects.Custom
	if effectDelay != 0 || effectDecay != 0 || effectGain != 0 {
		custom = &effects.Custom{Delay: effectDelay, Decay: effectDecay, Gain: effectGain}
	}

	if err := fx.Apply(cmd.Context(), args[0], args[1], effectPreset, custom); err != nil {
		if errors.Is(err, effects.ErrUnknownPreset) {
			return fmt.Errorf("%w (available: %v)", err, fx.Presets())
		}
		return err
	}
	fmt.Println("Wrote", args[1])
	return nil
}
