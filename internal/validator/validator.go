package validator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/quality"
	"github.com/dgnsrekt/voicestudio/internal/textsim"
)

// DefaultTimeout caps a single transcription.
const DefaultTimeout = 30 * time.Second

// unavailableMessage is the detail recorded while degraded.
const unavailableMessage = "validator unavailable"

// Validator scores transcription accuracy. Once the backend is known to be
// unavailable it stops trying and returns a neutral score for every call.
type Validator struct {
	cache   *ModelCache
	model   string
	timeout time.Duration
	logger  *log.Logger

	degraded     atomic.Bool
	degradedOnce sync.Once
}

// New creates a validator that loads model through cache on first use.
func New(cache *ModelCache, model string, timeout time.Duration, logger *log.Logger) *Validator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Validator{
		cache:   cache,
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

// Degraded reports whether the validator has given up on its backend.
func (v *Validator) Degraded() bool {
	return v.degraded.Load()
}

// Validate transcribes audioPath and compares the result with expected.
func (v *Validator) Validate(ctx context.Context, audioPath, expected string) quality.Score {
	if v.degraded.Load() {
		metrics.RecordValidation("degraded")
		return v.neutral()
	}

	model, err := v.cache.Get(ctx, v.model)
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			v.degrade(err)
			metrics.RecordValidation("degraded")
			return v.neutral()
		}
		metrics.RecordValidation("error")
		return quality.FailedScore(quality.MetricTranscription, 0, err)
	}

	tctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	t, err := model.Transcribe(tctx, audioPath)
	if err == nil && tctx.Err() != nil {
		err = tctx.Err()
	}
	if err == nil && t == nil {
		err = errors.New("backend returned no transcript")
	}
	if err != nil {
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("transcription timed out after %v: %w", v.timeout, err)
		}
		v.logger.Error("Transcription validation failed", "path", audioPath, "err", err)
		metrics.RecordValidation("error")
		return quality.FailedScore(quality.MetricTranscription, 0, err)
	}

	metrics.RecordValidation("ok")
	return quality.NewScore(quality.MetricTranscription, Similarity(t.Text, expected), Details(t, expected, model.Name()))
}

func (v *Validator) degrade(err error) {
	v.degradedOnce.Do(func() {
		v.degraded.Store(true)
		v.logger.Warn("Speech-to-text backend unavailable, skipping transcription validation", "model", v.model, "err", err)
	})
}

func (v *Validator) neutral() quality.Score {
	return quality.NewScore(quality.MetricTranscription, quality.NeutralScore, map[string]any{
		"error": unavailableMessage,
		"model": v.model,
	})
}

// Similarity is the sequence-match ratio of the normalized texts.
func Similarity(transcribed, expected string) float64 {
	return textsim.Similarity(transcribed, expected)
}

// Details builds the diagnostic fields recorded with a transcription score.
func Details(t *Transcription, expected, model string) map[string]any {
	similarity := Similarity(t.Text, expected)
	confidence, ok := t.MeanLogprob()
	if !ok {
		confidence = -1.0
	}
	return map[string]any{
		"transcribed":   t.Text,
		"expected":      expected,
		"similarity":    similarity,
		"word_accuracy": textsim.WordAccuracy(expected, t.Text),
		"confidence":    confidence,
		"quality_score": QualityScore(t, similarity),
		"model":         model,
	}
}

// QualityScore blends similarity with the model's own confidence, the
// audio duration and the no-speech probability.
func QualityScore(t *Transcription, similarity float64) float64 {
	confidence := 0.5
	if mean, ok := t.MeanLogprob(); ok {
		confidence = math.Min(1, math.Max(0, (mean+3)/3))
	}

	var duration float64
	switch d := t.SpeechDuration(); {
	case d >= 1 && d <= 30:
		duration = 1
	case d < 1:
		duration = math.Max(0, d)
	default:
		duration = math.Max(0.3, 30/d)
	}

	speech := 1 - t.NoSpeech()

	return quality.Clamp(similarity*0.6 + confidence*0.2 + duration*0.1 + speech*0.1)
}
