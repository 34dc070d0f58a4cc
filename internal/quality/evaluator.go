package quality

import (
	"context"
	"os"
	"time"

	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// Validator checks that audio says the expected text.
type Validator interface {
	Validate(ctx context.Context, audioPath, expectedText string) Score
}

// Analyzer measures signal-level properties of audio.
type Analyzer interface {
	Analyze(ctx context.Context, audioPath string) []Score
}

// Scorer produces every score for one candidate.
type Scorer interface {
	Score(ctx context.Context, audioPath, text string) []Score
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, audioPath, text string) []Score

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, audioPath, text string) []Score {
	return f(ctx, audioPath, text)
}

// Pipeline scores audio with a transcription validator followed by a signal
// analyzer. Either stage may be nil.
type Pipeline struct {
	Validator Validator
	Analyzer  Analyzer
}

// Score runs both stages.
func (p Pipeline) Score(ctx context.Context, audioPath, text string) []Score {
	var scores []Score
	if p.Validator != nil {
		start := time.Now()
		scores = append(scores, p.Validator.Validate(ctx, audioPath, text))
		metrics.RecordDuration("validate", time.Since(start).Seconds())
	}
	if p.Analyzer != nil {
		start := time.Now()
		scores = append(scores, p.Analyzer.Analyze(ctx, audioPath)...)
		metrics.RecordDuration("analyze", time.Since(start).Seconds())
	}
	return scores
}

// Evaluator turns a generated file into a scored Candidate.
type Evaluator struct {
	scorer  Scorer
	weights Weights
}

// NewEvaluator creates an evaluator. A nil weights table uses the defaults.
func NewEvaluator(scorer Scorer, weights Weights) *Evaluator {
	if len(weights) == 0 {
		weights = DefaultWeights()
	}
	return &Evaluator{scorer: scorer, weights: weights}
}

// Weights returns the weight table in use.
func (e *Evaluator) Weights() Weights {
	return e.weights
}

// Evaluate scores audioPath and builds its Candidate.
func (e *Evaluator) Evaluate(ctx context.Context, id, audioPath, text string, params voice.Params, generationTime time.Duration) *Candidate {
	scores := e.scorer.Score(ctx, audioPath, text)
	for i := range scores {
		scores[i].Score = Clamp(scores[i].Score)
		if scores[i].Details == nil {
			scores[i].Details = map[string]any{}
		}
		metrics.RecordScore(string(scores[i].Metric), scores[i].Score)
	}

	meta := map[string]any{
		"validation_timestamp": time.Now().Format(time.RFC3339),
	}
	if fi, err := os.Stat(audioPath); err == nil {
		meta["file_size"] = fi.Size()
		meta["created"] = fi.ModTime().Format(time.RFC3339)
	} else {
		meta["file_size"] = int64(0)
	}

	return &Candidate{
		ID:             id,
		AudioPath:      audioPath,
		Text:           text,
		VoiceParams:    params,
		Scores:         scores,
		OverallScore:   e.weights.Overall(scores),
		GenerationTime: generationTime.Seconds(),
		Metadata:       meta,
	}
}
