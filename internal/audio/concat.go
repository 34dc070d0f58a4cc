package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Concatenator joins clips with a fixed silence gap between them.
type Concatenator struct {
	Loader *Loader
	Gap    time.Duration
}

// NewConcatenator returns a concatenator using the default 300 ms gap.
func NewConcatenator(loader *Loader) *Concatenator {
	return &Concatenator{Loader: loader, Gap: DefaultGap}
}

// Concatenate decodes paths in order and writes them to out, separated by
// the gap. It returns ErrNoInput without touching out when paths is empty.
func (c *Concatenator) Concatenate(ctx context.Context, paths []string, out string) (*Clip, error) {
	if len(paths) == 0 {
		return nil, ErrNoInput
	}

	rate := c.Loader.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}
	gap := Silence(c.Gap, rate)

	var samples []float64
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clip, err := c.Loader.Load(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("clip %d (%s): %w", i, filepath.Base(p), err)
		}
		if i > 0 {
			samples = append(samples, gap...)
		}
		samples = append(samples, clip.Samples...)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, err
	}
	joined := &Clip{Samples: samples, SampleRate: rate}
	if err := WriteWAV(out, joined); err != nil {
		return nil, err
	}
	return joined, nil
}
