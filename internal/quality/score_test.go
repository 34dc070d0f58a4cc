package quality

import (
	"math"
	"testing"

	"github.com/dgnsrekt/voicestudio/internal/voice"
)

func TestWeightsOverall(t *testing.T) {
	w := DefaultWeights()
	tests := []struct {
		name   string
		scores []Score
		want   float64
	}{
		{
			name:   "no scores",
			scores: nil,
			want:   0,
		},
		{
			name:   "single metric renormalized",
			scores: []Score{NewScore(MetricTranscription, 0.9, nil)},
			want:   0.9,
		},
		{
			name: "all four measured",
			scores: []Score{
				NewScore(MetricTranscription, 1.0, nil),
				NewScore(MetricClarity, 0.5, nil),
				NewScore(MetricTechnical, 0.5, nil),
				NewScore(MetricNaturalness, 0.0, nil),
			},
			// (0.40 + 0.125 + 0.10 + 0) / 1.0
			want: 0.625,
		},
		{
			name: "unknown metric skipped",
			scores: []Score{
				NewScore(MetricTranscription, 0.8, nil),
				NewScore(Metric("pitch_stability"), 0.0, nil),
			},
			want: 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Overall(tt.scores); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Overall() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewScoreClamps(t *testing.T) {
	if s := NewScore(MetricClarity, 1.7, nil); s.Score != 1 {
		t.Errorf("NewScore(1.7).Score = %v, want 1", s.Score)
	}
	if s := NewScore(MetricClarity, math.NaN(), nil); s.Score != 0 {
		t.Errorf("NewScore(NaN).Score = %v, want 0", s.Score)
	}
	if s := NewScore(MetricClarity, -3, nil); s.Score != 0 || s.Details == nil {
		t.Errorf("NewScore(-3) = %+v, want 0 with details map", s)
	}
}

func TestSelectBestPrefersEarliest(t *testing.T) {
	cands := []*Candidate{
		{ID: "a", OverallScore: 0.7},
		{ID: "b", OverallScore: 0.9},
		{ID: "c", OverallScore: 0.9},
	}
	if got := SelectBest(cands); got.ID != "b" {
		t.Errorf("SelectBest() = %s, want b", got.ID)
	}
	if got := SelectBest(nil); got != nil {
		t.Errorf("SelectBest(nil) = %v, want nil", got)
	}
}

func TestPerturberInitial(t *testing.T) {
	base := voice.Params{VoiceID: "narrator", Speed: voice.Float(1.2)}
	p := Perturber{}

	tests := []struct {
		i    int
		key  string
		want float64
	}{
		{1, voice.KeyTemperature, 1.05},
		{2, voice.KeySpeed, 1.2 * 0.98},
		{3, voice.KeyStability, 0.5 * 0.95},
		{4, voice.KeySimilarityBoost, 0.5 * 1.10},
		{5, voice.KeySimilarityBoost, 0.5 * 1.10 * 1.10},
		{9, voice.KeySimilarityBoost, 0.5 * math.Pow(1.10, 6)},
	}

	if got := p.Initial(base, 0); !got.Equal(base) {
		t.Errorf("Initial(0) = %+v, want base", got)
	}
	for _, tt := range tests {
		got, ok := p.Initial(base, tt.i).Value(tt.key)
		if !ok || math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Initial(%d)[%s] = %v (set %v), want %v", tt.i, tt.key, got, ok, tt.want)
		}
	}

	// base must not be mutated
	if v, _ := base.Value(voice.KeySpeed); v != 1.2 {
		t.Errorf("base speed mutated to %v", v)
	}
}

func TestPerturberRetry(t *testing.T) {
	base := voice.Params{VoiceID: "narrator", Temperature: voice.Float(0.5)}

	if v, _ := (Perturber{}).Retry(base, 0).Value(voice.KeyTemperature); math.Abs(v-0.4) > 1e-9 {
		t.Errorf("Retry(0) temperature = %v, want 0.4", v)
	}
	if v, _ := (Perturber{}).Retry(base, 2).Value(voice.KeySpeed); math.Abs(v-0.9) > 1e-9 {
		t.Errorf("Retry(2) speed = %v, want 0.9", v)
	}

	if got := (Perturber{AlternativeVoice: "backup"}).Retry(base, 4); got.VoiceID != "backup" {
		t.Errorf("Retry(4).VoiceID = %q, want backup", got.VoiceID)
	}
	if got := (Perturber{}).Retry(base, 4); !got.Equal(base) {
		t.Errorf("Retry(4) without alternative = %+v, want base", got)
	}
	if got := (Perturber{AlternativeVoice: "backup"}).Retry(base, 12); got.VoiceID != "backup" {
		t.Errorf("Retry(12).VoiceID = %q, want last entry repeated", got.VoiceID)
	}

	seen := []voice.Params{base}
	for j := 0; j < 12; j++ {
		if j == 4 {
			continue
		}
		got := (Perturber{}).Retry(base, j)
		for _, prev := range seen {
			if got.Equal(prev) {
				t.Fatalf("Retry(%d) = %+v repeats earlier params", j, got)
			}
		}
		seen = append(seen, got)
	}
}

func TestBreakdownAveragesAllCandidates(t *testing.T) {
	cands := []*Candidate{
		{Scores: []Score{NewScore(MetricTranscription, 0.6, nil), NewScore(MetricClarity, 0.2, nil)}},
		{Scores: []Score{NewScore(MetricTranscription, 1.0, nil)}},
	}
	got := Breakdown(cands)
	if math.Abs(got["transcription_accuracy"]-0.8) > 1e-9 {
		t.Errorf("transcription_accuracy = %v, want 0.8", got["transcription_accuracy"])
	}
	if math.Abs(got["audio_clarity"]-0.2) > 1e-9 {
		t.Errorf("audio_clarity = %v, want 0.2", got["audio_clarity"])
	}
}
