package quality

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/voicestudio/internal/archive"
	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// Defaults for Config.
const (
	DefaultNumCandidates = 3
	DefaultThreshold     = 0.85
	DefaultMaxRetries    = 5
)

// SynthesizeFunc renders text with params and returns the path of the
// audio file it wrote.
type SynthesizeFunc func(ctx context.Context, text string, params voice.Params) (string, error)

// Config controls the generate and retry loop.
type Config struct {
	NumCandidates    int
	Threshold        float64
	MaxRetries       int
	AlternativeVoice string

	// WorkDir receives candidate files while a task runs. Empty leaves
	// files where the backend wrote them.
	WorkDir string
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		NumCandidates: DefaultNumCandidates,
		Threshold:     DefaultThreshold,
		MaxRetries:    DefaultMaxRetries,
		WorkDir:       filepath.Join(os.TempDir(), "voicestudio"),
	}
}

// Stats aggregates task outcomes across the controller's lifetime.
type Stats struct {
	TotalTasks          int     `json:"total_tasks"`
	SuccessfulTasks     int     `json:"successful_tasks"`
	FailedTasks         int     `json:"failed_tasks"`
	AvgCandidatesNeeded float64 `json:"avg_candidates_needed"`
	AvgQualityScore     float64 `json:"avg_quality_score"`
	SuccessRate         float64 `json:"success_rate"`
}

// Controller runs quality-controlled generation. It is safe to share
// across goroutines; each task keeps its own state.
type Controller struct {
	cfg       Config
	evaluator *Evaluator
	perturber Perturber
	archive   *archive.Archive
	logger    *log.Logger

	mu     sync.Mutex
	stats  Stats
	scored int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithArchive keeps non-selected candidates in a instead of deleting them.
func WithArchive(a *archive.Archive) Option {
	return func(c *Controller) { c.archive = a }
}

// NewController creates a controller.
func NewController(cfg Config, evaluator *Evaluator, opts ...Option) *Controller {
	if cfg.NumCandidates < 1 {
		cfg.NumCandidates = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Controller{
		cfg:       cfg,
		evaluator: evaluator,
		perturber: Perturber{AlternativeVoice: cfg.AlternativeVoice},
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the controller settings.
func (c *Controller) Config() Config {
	return c.cfg
}

// task holds the state of one Generate call.
type task struct {
	id         string
	text       string
	synth      SynthesizeFunc
	tried      []voice.Params
	candidates []*Candidate
	failures   []*GenerationError
}

func (t *task) seen(p voice.Params) bool {
	for _, q := range t.tried {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

// Generate renders text until a candidate clears the threshold or the
// attempt budget runs out, and reports on every attempt. The returned
// error is non-nil only when ctx ended the task early; the report is
// still valid in that case.
func (c *Controller) Generate(ctx context.Context, text string, base voice.Params, synth SynthesizeFunc, taskID string) (*Report, error) {
	if taskID == "" {
		taskID = "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	start := time.Now()
	t := &task{id: taskID, text: text, synth: synth}

	c.logger.Info("Starting quality-controlled generation", "task", taskID, "candidates", c.cfg.NumCandidates)

	done, exhausted := false, false
	for i := 0; i < c.cfg.NumCandidates && ctx.Err() == nil; i++ {
		cand := c.attempt(ctx, t, PassInitial, i, c.perturber.Initial(base, i))
		if cand != nil && cand.OverallScore >= c.cfg.Threshold {
			c.logger.Info("High quality candidate found early", "task", taskID, "candidate", cand.ID, "score", cand.OverallScore)
			done = true
			break
		}
	}

	if !done {
		remaining := c.cfg.MaxRetries - len(t.candidates)
		if remaining > 0 && ctx.Err() == nil {
			c.logger.Info("Quality below threshold, generating retry candidates", "task", taskID, "retries", remaining)
		}
		// repeated params do not use up the budget
		used := 0
		for j := 0; used < remaining && j < remaining+len(retrySchedule) && ctx.Err() == nil; j++ {
			params := c.perturber.Retry(base, j)
			if t.seen(params) {
				c.logger.Debug("Skipping repeated parameters", "task", taskID, "candidate", candidateID(taskID, PassRetry, j))
				metrics.RecordCandidate(string(PassRetry), "duplicate")
				continue
			}
			used++
			cand := c.attempt(ctx, t, PassRetry, j, params)
			if cand != nil && cand.OverallScore >= c.cfg.Threshold {
				done = true
				break
			}
		}
		exhausted = !done && remaining > 0 && used == remaining
	}

	best := SelectBest(t.candidates)
	c.release(t, best)

	report := &Report{
		TaskID:           taskID,
		BestCandidate:    best,
		AllCandidates:    t.candidates,
		TotalAttempts:    len(t.candidates) + len(t.failures),
		Success:          best != nil && best.OverallScore >= c.cfg.Threshold,
		Threshold:        c.cfg.Threshold,
		ProcessingTime:   time.Since(start).Seconds(),
		QualityBreakdown: Breakdown(t.candidates),
		Failures:         t.failures,
		Timestamp:        time.Now(),
	}
	if report.AllCandidates == nil {
		report.AllCandidates = []*Candidate{}
	}
	if report.Success {
		report.SuccessRate = 1
	}
	report.Recommendations = c.recommendations(report, exhausted)

	c.record(report)

	c.logger.Info("Quality control completed",
		"task", taskID,
		"success", report.Success,
		"candidates", len(report.AllCandidates),
		"failures", len(report.Failures),
		"elapsed", time.Since(start).Round(time.Millisecond))

	return report, ctx.Err()
}

// attempt generates and evaluates one candidate. It returns nil when the
// params were already tried or generation failed.
func (c *Controller) attempt(ctx context.Context, t *task, pass Pass, idx int, params voice.Params) *Candidate {
	id := candidateID(t.id, pass, idx)
	if t.seen(params) {
		c.logger.Debug("Skipping repeated parameters", "task", t.id, "candidate", id)
		metrics.RecordCandidate(string(pass), "duplicate")
		return nil
	}
	t.tried = append(t.tried, params)

	genStart := time.Now()
	path, err := t.synth(ctx, t.text, params.Clone())
	if err == nil {
		path, err = c.adopt(path, id)
	}
	genTime := time.Since(genStart)
	if err != nil {
		c.logger.Warn("Candidate generation failed", "task", t.id, "candidate", id, "err", err)
		t.failures = append(t.failures, newGenerationError(pass, id, err))
		metrics.RecordCandidate(string(pass), "failed")
		return nil
	}

	cand := c.evaluator.Evaluate(ctx, id, path, t.text, params, genTime)
	cand.Pass = pass
	cand.Index = idx
	t.candidates = append(t.candidates, cand)
	metrics.RecordCandidate(string(pass), "evaluated")

	c.logger.Info("Candidate evaluated", "task", t.id, "candidate", id, "score", fmt.Sprintf("%.3f", cand.OverallScore))
	return cand
}

func candidateID(taskID string, pass Pass, idx int) string {
	if pass == PassRetry {
		return fmt.Sprintf("%s_retry_%d", taskID, idx)
	}
	return fmt.Sprintf("%s_candidate_%d", taskID, idx)
}

// adopt moves a backend output into the work dir under a name unique to
// the candidate.
func (c *Controller) adopt(path, id string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("backend returned no audio path")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("backend output missing: %w", err)
	}
	if fi.IsDir() {
		return "", fmt.Errorf("backend output %s is a directory", path)
	}
	if c.cfg.WorkDir == "" {
		return path, nil
	}

	if err := os.MkdirAll(c.cfg.WorkDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(c.cfg.WorkDir, sanitize(id)+filepath.Ext(path))
	if dst == path {
		return path, nil
	}
	if err := os.Rename(path, dst); err == nil {
		return dst, nil
	}
	if err := copyFile(path, dst); err != nil {
		return "", fmt.Errorf("failed to adopt %s: %w", path, err)
	}
	os.Remove(path)
	return dst, nil
}

// release removes or archives every candidate file except best's.
func (c *Controller) release(t *task, best *Candidate) {
	for _, cand := range t.candidates {
		if cand == best {
			continue
		}
		if cand.AudioPath == "" || (best != nil && cand.AudioPath == best.AudioPath) {
			continue
		}
		if c.archive != nil {
			key := t.id + "/" + cand.ID
			err := c.archive.Store(key, cand.AudioPath)
			if err == nil {
				cand.Metadata["archived"] = key
				continue
			}
			c.logger.Warn("Failed to archive candidate", "candidate", cand.ID, "err", err)
		}
		if err := os.Remove(cand.AudioPath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("Failed to remove candidate", "path", cand.AudioPath, "err", err)
		}
		cand.Metadata["discarded"] = true
	}
}

// recommendations explains the outcome. exhausted is set when the retry
// pass ran out of budget without clearing the threshold.
func (c *Controller) recommendations(r *Report, exhausted bool) []string {
	var recs []string
	if len(r.AllCandidates) == 0 {
		return append(recs, "No candidates generated; check TTS backend.")
	}

	best := r.BestCandidate
	if !r.Success {
		recs = append(recs, "Consider adjusting voice parameters for better quality.")
	}
	if s, ok := Find(best.Scores, MetricTranscription); ok && s.Score < 0.8 {
		recs = append(recs, "Low transcription accuracy; try different voice settings or cleaner text.")
	}

	var sum float64
	var n int
	for _, m := range []Metric{MetricClarity, MetricTechnical} {
		if s, ok := Find(best.Scores, m); ok {
			sum += s.Score
			n++
		}
	}
	if n > 0 && sum/float64(n) < 0.7 {
		recs = append(recs, "Audio quality issues detected; review the audio processing chain.")
	}

	if exhausted || len(r.AllCandidates) >= c.cfg.MaxRetries {
		recs = append(recs, "max retries reached; consider reviewing text complexity or voice settings.")
	}
	return recs
}

func (c *Controller) record(r *Report) {
	status := "success"
	switch {
	case r.BestCandidate == nil:
		status = "no_candidates"
	case !r.Success:
		status = "below_threshold"
	}
	metrics.RecordTask(status, r.ProcessingTime)

	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.stats
	s.TotalTasks++
	if r.Success {
		s.SuccessfulTasks++
	} else {
		s.FailedTasks++
	}
	n := float64(s.TotalTasks)
	s.AvgCandidatesNeeded = (s.AvgCandidatesNeeded*(n-1) + float64(len(r.AllCandidates))) / n
	if r.BestCandidate != nil {
		c.scored++
		m := float64(c.scored)
		s.AvgQualityScore = (s.AvgQualityScore*(m-1) + r.BestCandidate.OverallScore) / m
	}
	s.SuccessRate = float64(s.SuccessfulTasks) / n
}

// Stats returns a snapshot of the controller statistics.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
