package backend

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/subprocess"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// PiperArgs drives a piper binary writing WAV files.
var PiperArgs = []string{"--output_file", "{output}", "--length_scale", "{length_scale}"}

// Command runs an external engine per utterance. The text is written to
// stdin before the process starts; arguments may contain the placeholders
// {output}, {voice}, {speed} and {length_scale}. The full parameter set
// is exported as JSON in VOICESTUDIO_VOICE_PARAMS.
type Command struct {
	program      string
	args         []string
	outDir       string
	runner       *subprocess.Runner
	forwardExtra bool
}

// NewCommand checks program is on PATH.
func NewCommand(program string, args []string, outDir string, runner *subprocess.Runner, forwardExtra bool) (*Command, error) {
	if program == "" {
		return nil, errors.New("no tts command configured")
	}
	if err := subprocess.CheckBinary(program); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		args = []string{"{output}"}
	}
	return &Command{
		program:      program,
		args:         args,
		outDir:       outDir,
		runner:       runner,
		forwardExtra: forwardExtra,
	}, nil
}

// Name implements Backend.
func (c *Command) Name() string {
	return KindCommand + ":" + c.program
}

// Synthesize implements Backend.
func (c *Command) Synthesize(ctx context.Context, text string, params voice.Params) (path string, err error) {
	start := time.Now()
	defer func() { metrics.RecordTTSRequest(KindCommand, err == nil, time.Since(start).Seconds()) }()

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	out := outputPath(c.outDir, ".wav")
	encoded, err := json.Marshal(params.ToMap(c.forwardExtra))
	if err != nil {
		return "", err
	}

	_, err = c.runner.Run(ctx, subprocess.Options{
		Command: c.program,
		Args:    expandArgs(c.args, out, params),
		Input:   text,
		Env:     []string{"VOICESTUDIO_VOICE_PARAMS=" + string(encoded)},
	})
	if err != nil {
		return "", err
	}
	if err := checkOutput(out); err != nil {
		return "", err
	}
	return out, nil
}

func expandArgs(args []string, output string, params voice.Params) []string {
	speed := params.ValueOrDefault(voice.KeySpeed)
	if speed <= 0 {
		speed = 1
	}
	r := strings.NewReplacer(
		"{output}", output,
		"{voice}", params.VoiceID,
		"{speed}", strconv.FormatFloat(speed, 'f', 2, 64),
		"{length_scale}", strconv.FormatFloat(1/speed, 'f', 2, 64),
	)

	out := make([]string, 0, len(args))
	for _, a := range args {
		// drop voice flags entirely when no voice is set
		if strings.Contains(a, "{voice}") && params.VoiceID == "" {
			if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "-") {
				out = out[:n-1]
			}
			continue
		}
		out = append(out, r.Replace(a))
	}
	return out
}
