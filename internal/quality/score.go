package quality

import (
	"math"
	"time"
)

// Metric names a quality dimension.
type Metric string

// Known metrics.
const (
	MetricTranscription Metric = "transcription_accuracy"
	MetricClarity       Metric = "audio_clarity"
	MetricNaturalness   Metric = "speech_naturalness"
	MetricEmotion       Metric = "emotional_consistency"
	MetricTechnical     Metric = "technical_quality"
)

// Metrics lists every known metric in report order.
var Metrics = []Metric{
	MetricTranscription,
	MetricClarity,
	MetricTechnical,
	MetricNaturalness,
	MetricEmotion,
}

// NeutralScore is reported when a measurement could not be taken.
const NeutralScore = 0.5

// Score is a single measurement of one metric.
type Score struct {
	Metric    Metric         `json:"metric"`
	Score     float64        `json:"score"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewScore returns a score clamped to [0,1].
func NewScore(m Metric, v float64, details map[string]any) Score {
	if details == nil {
		details = map[string]any{}
	}
	return Score{
		Metric:    m,
		Score:     Clamp(v),
		Details:   details,
		Timestamp: time.Now(),
	}
}

// FailedScore returns a score whose details carry err.
func FailedScore(m Metric, v float64, err error) Score {
	return NewScore(m, v, map[string]any{"error": err.Error()})
}

// Failed reports whether the measurement recorded an error.
func (s Score) Failed() bool {
	_, ok := s.Details["error"]
	return ok
}

// Weights maps metrics to their relative importance.
type Weights map[Metric]float64

// DefaultWeights returns the standard weight table.
func DefaultWeights() Weights {
	return Weights{
		MetricTranscription: 0.40,
		MetricClarity:       0.25,
		MetricTechnical:     0.20,
		MetricNaturalness:   0.15,
		MetricEmotion:       0.10,
	}
}

// Overall is the weighted mean of the present scores. Metrics without a
// positive weight are skipped and the remaining weights renormalized.
func (w Weights) Overall(scores []Score) float64 {
	var sum, total float64
	for _, s := range scores {
		weight, ok := w[s.Metric]
		if !ok || weight <= 0 {
			continue
		}
		sum += Clamp(s.Score) * weight
		total += weight
	}
	if total == 0 {
		return 0
	}
	return Clamp(sum / total)
}

// Clamp limits v to [0,1]. NaN maps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Find returns the score for metric m.
func Find(scores []Score, m Metric) (Score, bool) {
	for _, s := range scores {
		if s.Metric == m {
			return s, true
		}
	}
	return Score{}, false
}
