// Package backend adapts text-to-speech engines to the synthesize contract
// used by the quality controller: text and voice params in, path to a
// readable audio file out.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/voicestudio/internal/quality"
	"github.com/dgnsrekt/voicestudio/internal/subprocess"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// Backend kinds.
const (
	KindCommand = "command"
	KindHTTP    = "http"
	KindTone    = "tone"
)

var (
	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrNoOutput is returned when the engine reports success but leaves
	// no audio behind.
	ErrNoOutput = errors.New("backend produced no audio")
)

// Backend synthesizes one utterance to a file.
type Backend interface {
	Synthesize(ctx context.Context, text string, params voice.Params) (string, error)
	Name() string
}

// Func adapts b to a quality.SynthesizeFunc.
func Func(b Backend) quality.SynthesizeFunc {
	return b.Synthesize
}

// Config selects and configures a backend.
type Config struct {
	Kind    string
	Command string
	Args    []string
	URL     string

	// RequestsPerMinute limits HTTP calls. Zero means unlimited.
	RequestsPerMinute int

	Timeout time.Duration

	// Serialize runs one command at a time, for engines that are not
	// re-entrant.
	Serialize bool

	// ForwardExtra passes unrecognized voice params to the engine.
	ForwardExtra bool

	// OutputDir receives synthesized files.
	OutputDir string
}

// New builds the backend described by cfg.
func New(cfg Config) (Backend, error) {
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backend output dir: %w", err)
	}

	switch cfg.Kind {
	case KindCommand:
		c, err := NewCommand(cfg.Command, cfg.Args, cfg.OutputDir, subprocess.NewRunner(cfg.Timeout, cfg.Serialize), cfg.ForwardExtra)
		if err != nil {
			return nil, err
		}
		return c, nil
	case KindHTTP:
		h, err := NewHTTP(cfg.URL, cfg.OutputDir, cfg.RequestsPerMinute, cfg.Timeout, cfg.ForwardExtra)
		if err != nil {
			return nil, err
		}
		return h, nil
	case KindTone, "":
		return NewTone(cfg.OutputDir), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.Kind)
	}
}

func outputPath(dir, ext string) string {
	return filepath.Join(dir, "tts_"+uuid.NewString()+ext)
}

func checkOutput(path string) error {
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		os.Remove(path)
		return fmt.Errorf("%w: %s", ErrNoOutput, path)
	}
	return nil
}
