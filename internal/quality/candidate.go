package quality

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// Pass identifies which schedule produced a candidate.
type Pass string

// Generation passes.
const (
	PassInitial Pass = "initial"
	PassRetry   Pass = "retry"
)

// Candidate is one generated attempt and its evaluation.
type Candidate struct {
	ID             string         `json:"candidate_id"`
	Pass           Pass           `json:"pass"`
	Index          int            `json:"index"`
	AudioPath      string         `json:"audio_path"`
	Text           string         `json:"text"`
	VoiceParams    voice.Params   `json:"voice_params"`
	Scores         []Score        `json:"quality_scores"`
	OverallScore   float64        `json:"overall_score"`
	GenerationTime float64        `json:"generation_time_seconds"`
	Metadata       map[string]any `json:"metadata"`
}

// Score returns the value for metric m, or 0 if it was not measured.
func (c *Candidate) Score(m Metric) float64 {
	if s, ok := Find(c.Scores, m); ok {
		return s.Score
	}
	return 0
}

// GenerationError records a candidate attempt that produced nothing usable.
type GenerationError struct {
	Phase       Pass   `json:"phase"`
	CandidateID string `json:"candidate_id"`
	Message     string `json:"error"`
	Err         error  `json:"-"`
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s", e.CandidateID, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func newGenerationError(pass Pass, id string, err error) *GenerationError {
	return &GenerationError{Phase: pass, CandidateID: id, Message: err.Error(), Err: err}
}

// Report summarizes one quality-controlled task.
type Report struct {
	TaskID           string             `json:"task_id"`
	BestCandidate    *Candidate         `json:"best_candidate"`
	AllCandidates    []*Candidate       `json:"all_candidates"`
	TotalAttempts    int                `json:"total_attempts"`
	Success          bool               `json:"success"`
	SuccessRate      float64            `json:"success_rate"`
	Threshold        float64            `json:"quality_threshold"`
	ProcessingTime   float64            `json:"processing_time"`
	QualityBreakdown map[string]float64 `json:"quality_breakdown"`
	Recommendations  []string           `json:"recommendations"`
	Failures         []*GenerationError `json:"failures"`
	Timestamp        time.Time          `json:"timestamp"`
}

// AudioPath returns the selected candidate's audio, or "" if none.
func (r *Report) AudioPath() string {
	if r.BestCandidate == nil {
		return ""
	}
	return r.BestCandidate.AudioPath
}

// Breakdown averages each metric over all candidates.
func Breakdown(candidates []*Candidate) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, c := range candidates {
		for _, s := range c.Scores {
			sums[string(s.Metric)] += s.Score
			counts[string(s.Metric)]++
		}
	}
	out := make(map[string]float64, len(sums))
	for m, sum := range sums {
		out[m] = sum / float64(counts[m])
	}
	return out
}

// SelectBest returns the highest scoring candidate, preferring the earliest
// on ties.
func SelectBest(candidates []*Candidate) *Candidate {
	var best *Candidate
	for _, c := range candidates {
		if best == nil || c.OverallScore > best.OverallScore {
			best = c
		}
	}
	return best
}
