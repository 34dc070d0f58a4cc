// Package metrics exposes prometheus counters and histograms for the
// generation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CandidatesTotal counts candidate attempts.
	// Labels: pass (initial/retry), status (evaluated/failed/duplicate)
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicestudio_candidates_total",
			Help: "Total number of candidate generation attempts by pass and status",
		},
		[]string{"pass", "status"},
	)

	// CandidateScore records per-metric candidate scores.
	CandidateScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicestudio_candidate_score",
			Help:    "Candidate quality scores by metric",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"metric"},
	)

	// TasksTotal counts finished quality-controlled tasks.
	// Labels: status (success/below_threshold/no_candidates)
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicestudio_tasks_total",
			Help: "Total number of quality-controlled generation tasks by outcome",
		},
		[]string{"status"},
	)

	// StageDuration records wall time per pipeline stage.
	// Labels: stage (task/tts/validate/analyze/effect/concat)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voicestudio_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// ValidatorCallsTotal counts transcription validations.
	// Labels: status (ok/error/degraded)
	ValidatorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicestudio_validator_calls_total",
			Help: "Total number of transcription validations by status",
		},
		[]string{"status"},
	)

	// ModelCacheLookups counts validator model cache lookups.
	// Labels: result (hit/miss)
	ModelCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicestudio_model_cache_lookups_total",
			Help: "Validator model cache lookups by result",
		},
		[]string{"result"},
	)

	// SynthesisCacheLookups counts synthesis cache lookups.
	// Labels: result (hit/miss)
	SynthesisCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicestudio_synthesis_cache_lookups_total",
			Help: "Synthesis cache lookups by result",
		},
		[]string{"result"},
	)

	// EffectsTotal counts post effects by preset and status.
	EffectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicestudio_effects_total",
			Help: "Total number of inner voice effects applied by preset and status",
		},
		[]string{"preset", "status"},
	)

	// TTSRequestsTotal counts backend synthesis calls.
	TTSRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicestudio_tts_requests_total",
			Help: "Total number of TTS backend requests by backend and status",
		},
		[]string{"backend", "status"},
	)

	// BatchUnitsTotal counts batch work units.
	// Labels: status (success/error)
	BatchUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicestudio_batch_units_total",
			Help: "Total number of batch work units by status",
		},
		[]string{"status"},
	)

	// BatchUnitsInFlight is the number of units currently being processed.
	BatchUnitsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicestudio_batch_units_in_flight",
			Help: "Number of batch work units currently in progress",
		},
	)
)

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// RecordCandidate records one candidate attempt.
func RecordCandidate(pass, status string) {
	CandidatesTotal.WithLabelValues(pass, status).Inc()
}

// RecordScore observes a candidate metric score.
func RecordScore(metric string, score float64) {
	CandidateScore.WithLabelValues(metric).Observe(score)
}

// RecordTask records a finished task.
func RecordTask(status string, durationSeconds float64) {
	TasksTotal.WithLabelValues(status).Inc()
	StageDuration.WithLabelValues("task").Observe(durationSeconds)
}

// RecordDuration records stage wall time in seconds.
func RecordDuration(stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordValidation records a validator call.
func RecordValidation(status string) {
	ValidatorCallsTotal.WithLabelValues(status).Inc()
}

// RecordCacheLookup records a model cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		ModelCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	ModelCacheLookups.WithLabelValues("miss").Inc()
}

// RecordSynthesisCache records a synthesis cache hit or miss.
func RecordSynthesisCache(hit bool) {
	if hit {
		SynthesisCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	SynthesisCacheLookups.WithLabelValues("miss").Inc()
}

// RecordEffect records an inner voice effect run.
func RecordEffect(preset string, success bool) {
	EffectsTotal.WithLabelValues(preset, status(success)).Inc()
}

// RecordTTSRequest records a backend synthesis call.
func RecordTTSRequest(backend string, success bool, durationSeconds float64) {
	TTSRequestsTotal.WithLabelValues(backend, status(success)).Inc()
	StageDuration.WithLabelValues("tts").Observe(durationSeconds)
}

// RecordUnit records a finished batch work unit.
func RecordUnit(success bool) {
	BatchUnitsTotal.WithLabelValues(status(success)).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
