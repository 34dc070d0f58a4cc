package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgnsrekt/voicestudio/internal/subprocess"
)

// DefaultDecoder is the external tool used for non-WAV input.
const DefaultDecoder = "ffmpeg"

// Loader decodes any supported input into a mono clip at SampleRate.
// PCM WAV is decoded natively; anything else is converted with the
// external decoder first.
type Loader struct {
	SampleRate int
	Decoder    string
	Runner     *subprocess.Runner
}

// NewLoader returns a loader for the canonical format.
func NewLoader(runner *subprocess.Runner) *Loader {
	return &Loader{
		SampleRate: SampleRate,
		Decoder:    DefaultDecoder,
		Runner:     runner,
	}
}

// Load decodes path and resamples it to the loader's rate.
func (l *Loader) Load(ctx context.Context, path string) (*Clip, error) {
	rate := l.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		clip, err := ReadWAV(path)
		if err == nil {
			return Resample(clip, rate), nil
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			return nil, err
		}
		// e.g. float or compressed wav: fall through to the decoder.
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if l.Runner == nil || l.Decoder == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	tmp, err := os.CreateTemp("", "voicestudio-decode-*.wav")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	_, err = l.Runner.Execute(ctx, l.Decoder,
		"-y", "-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(rate),
		"-acodec", "pcm_s16le",
		tmpPath,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	clip, err := ReadWAV(tmpPath)
	if err != nil {
		return nil, err
	}
	return Resample(clip, rate), nil
}
