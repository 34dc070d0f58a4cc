package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	concatOutput string

	concatCmd = &cobra.Command{
		Use:     "concat CLIP...",
		Short:   "Join audio clips with a short silence between them",
		Example: paragraph("voicestudio concat -o scene.wav s1_d1_hero.wav s1_d2_villain.wav"),
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clip, err := newConcatenator(cfg).Concatenate(cmd.Context(), args, concatOutput)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s: %d clips, %s, %s\n", concatOutput, len(args),
				clip.Duration().Round(10*time.Millisecond), humanize.Bytes(fileSize(concatOutput)))
			return nil
		},
	}
)

func init() {
	concatCmd.Flags().StringVarP(&concatOutput, "output", "o", "", "output WAV file")
	_ = concatCmd.MarkFlagRequired("output")
}
