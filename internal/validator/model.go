// Package validator checks generated speech against the text it was meant
// to say, using a speech-to-text model held in a process-wide cache.
package validator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable means the speech-to-text backend is not installed
// or not reachable. Validators degrade to a neutral score when they see it.
var ErrBackendUnavailable = errors.New("speech-to-text backend unavailable")

// Segment is one transcribed span.
type Segment struct {
	ID           int     `json:"id"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	AvgLogprob   float64 `json:"avg_logprob"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Transcription is the output of a speech-to-text model.
type Transcription struct {
	Text         string    `json:"text"`
	Segments     []Segment `json:"segments"`
	Language     string    `json:"language"`
	Duration     float64   `json:"duration"`
	NoSpeechProb *float64  `json:"no_speech_prob,omitempty"`
}

// MeanLogprob averages the segment log-probabilities. ok is false when
// there are no segments.
func (t *Transcription) MeanLogprob() (mean float64, ok bool) {
	if len(t.Segments) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range t.Segments {
		sum += s.AvgLogprob
	}
	return sum / float64(len(t.Segments)), true
}

// SpeechDuration returns Duration, falling back to the end of the last
// segment.
func (t *Transcription) SpeechDuration() float64 {
	if t.Duration > 0 {
		return t.Duration
	}
	if n := len(t.Segments); n > 0 {
		return t.Segments[n-1].End
	}
	return 0
}

// NoSpeech returns the no-speech probability, averaged over segments when
// the backend does not report one for the whole file.
func (t *Transcription) NoSpeech() float64 {
	if t.NoSpeechProb != nil {
		return *t.NoSpeechProb
	}
	if len(t.Segments) == 0 {
		return 0.5
	}
	var sum float64
	for _, s := range t.Segments {
		sum += s.NoSpeechProb
	}
	return sum / float64(len(t.Segments))
}

// Model is a loaded speech-to-text model. Transcribe must be safe for
// concurrent use.
type Model interface {
	Transcribe(ctx context.Context, audioPath string) (*Transcription, error)
	Name() string
	Close() error
}

// Loader loads the model identified by tag. It returns an error wrapping
// ErrBackendUnavailable when the backend cannot be used at all.
type Loader func(ctx context.Context, tag string) (Model, error)

// Backend names accepted by NewLoader.
const (
	BackendCLI  = "cli"
	BackendHTTP = "http"
	BackendNone = "none"
)

// LoaderConfig selects and configures a speech-to-text backend.
type LoaderConfig struct {
	Backend  string
	Program  string
	URL      string
	Language string
	Timeout  time.Duration
}

// NewLoader returns a Loader for the configured backend.
func NewLoader(cfg LoaderConfig) (Loader, error) {
	switch cfg.Backend {
	case BackendCLI, "":
		return func(ctx context.Context, tag string) (Model, error) {
			return NewCLIModel(cfg.Program, tag, cfg.Language)
		}, nil
	case BackendHTTP:
		return func(ctx context.Context, tag string) (Model, error) {
			return NewHTTPModel(ctx, cfg.URL, tag, cfg.Language, cfg.Timeout)
		}, nil
	case BackendNone:
		return func(context.Context, string) (Model, error) {
			return nil, fmt.Errorf("%w: validation disabled", ErrBackendUnavailable)
		}, nil
	default:
		return nil, fmt.Errorf("unknown validator backend %q", cfg.Backend)
	}
}
