package quality

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/voicestudio/internal/archive"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// fakeBackend writes a small file per call into its own directory.
type fakeBackend struct {
	dir   string
	calls atomic.Int32
	fail  bool

	mu     sync.Mutex
	params []voice.Params
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{dir: t.TempDir()}
}

func (b *fakeBackend) Synthesize(_ context.Context, text string, p voice.Params) (string, error) {
	n := b.calls.Add(1)
	b.mu.Lock()
	b.params = append(b.params, p)
	b.mu.Unlock()
	if b.fail {
		return "", errors.New("backend exploded")
	}
	path := filepath.Join(b.dir, fmt.Sprintf("out_%d.wav", n))
	return path, os.WriteFile(path, []byte(text), 0o644)
}

// sequenceScorer returns a transcription score from a fixed sequence,
// repeating the last value.
func sequenceScorer(values ...float64) Scorer {
	var mu sync.Mutex
	var i int
	return ScorerFunc(func(context.Context, string, string) []Score {
		mu.Lock()
		defer mu.Unlock()
		v := values[len(values)-1]
		if i < len(values) {
			v = values[i]
		}
		i++
		return []Score{NewScore(MetricTranscription, v, nil)}
	})
}

func newTestController(t *testing.T, cfg Config, scorer Scorer, opts ...Option) *Controller {
	t.Helper()
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir()
	}
	return NewController(cfg, NewEvaluator(scorer, nil), opts...)
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

func checkInvariants(t *testing.T, r *Report, cfg Config) {
	t.Helper()

	assert.Equal(t, r.BestCandidate == nil, len(r.AllCandidates) == 0, "best is nil iff no candidates")
	if r.BestCandidate != nil {
		for _, c := range r.AllCandidates {
			assert.LessOrEqual(t, c.OverallScore, r.BestCandidate.OverallScore)
		}
	}
	assert.Equal(t, r.BestCandidate != nil && r.BestCandidate.OverallScore >= cfg.Threshold, r.Success)
	assert.LessOrEqual(t, len(r.AllCandidates), cfg.NumCandidates+cfg.MaxRetries)

	for i, c := range r.AllCandidates {
		assert.GreaterOrEqual(t, c.OverallScore, 0.0)
		assert.LessOrEqual(t, c.OverallScore, 1.0)
		for _, s := range c.Scores {
			assert.GreaterOrEqual(t, s.Score, 0.0)
			assert.LessOrEqual(t, s.Score, 1.0)
		}
		if c.OverallScore >= cfg.Threshold {
			assert.Equal(t, len(r.AllCandidates)-1, i, "no candidate may follow one above threshold")
		}
		for _, other := range r.AllCandidates[i+1:] {
			assert.False(t, c.VoiceParams.Equal(other.VoiceParams), "voice params repeated: %s and %s", c.ID, other.ID)
		}
	}
}

func TestGenerateHappyPath(t *testing.T) {
	cfg := Config{NumCandidates: 3, Threshold: 0.85, MaxRetries: 5}
	backend := newFakeBackend(t)
	c := newTestController(t, cfg, sequenceScorer(0.90))
	cfg = c.Config()

	base := voice.Params{VoiceID: "narrator"}
	r, err := c.Generate(context.Background(), "Hello, welcome to our demonstration.", base, backend.Synthesize, "s1")
	require.NoError(t, err)

	assert.Len(t, r.AllCandidates, 1)
	assert.True(t, r.Success)
	assert.Equal(t, 1, r.TotalAttempts)
	require.NotNil(t, r.BestCandidate)
	assert.True(t, r.BestCandidate.VoiceParams.Equal(base), "candidate 0 uses base params")
	assert.FileExists(t, r.AudioPath())
	assert.Equal(t, 1, countFiles(t, cfg.WorkDir))
	checkInvariants(t, r, cfg)
}

func TestGenerateEarlyExit(t *testing.T) {
	cfg := Config{NumCandidates: 5, Threshold: 0.85, MaxRetries: 5}
	backend := newFakeBackend(t)
	c := newTestController(t, cfg, sequenceScorer(0.70, 0.92, 0.99))
	cfg = c.Config()

	base := voice.Params{VoiceID: "narrator", Speed: voice.Float(1.0)}
	r, err := c.Generate(context.Background(), "text", base, backend.Synthesize, "s2")
	require.NoError(t, err)

	require.Len(t, r.AllCandidates, 2)
	assert.Equal(t, "s2_candidate_1", r.BestCandidate.ID)
	assert.InDelta(t, 0.92, r.BestCandidate.OverallScore, 1e-9)
	assert.True(t, r.Success)

	p := Perturber{}
	for i, cand := range r.AllCandidates {
		assert.True(t, cand.VoiceParams.Equal(p.Initial(base, i)), "candidate %d params", i)
	}

	// only the selected file survives
	assert.Equal(t, 1, countFiles(t, cfg.WorkDir))
	_, statErr := os.Stat(r.AllCandidates[0].AudioPath)
	assert.True(t, os.IsNotExist(statErr))
	checkInvariants(t, r, cfg)
}

func TestGenerateRetrySaturates(t *testing.T) {
	cfg := Config{NumCandidates: 3, Threshold: 0.95, MaxRetries: 6}
	backend := newFakeBackend(t)
	c := newTestController(t, cfg, sequenceScorer(0.60, 0.80, 0.75, 0.70))
	cfg = c.Config()

	r, err := c.Generate(context.Background(), "text", voice.Params{VoiceID: "narrator"}, backend.Synthesize, "s3")
	require.NoError(t, err)

	require.Len(t, r.AllCandidates, 6)
	assert.False(t, r.Success)
	assert.Equal(t, PassRetry, r.AllCandidates[3].Pass)
	assert.Equal(t, "s3_retry_0", r.AllCandidates[3].ID)
	assert.Equal(t, "s3_candidate_1", r.BestCandidate.ID)

	var found bool
	for _, rec := range r.Recommendations {
		if strings.Contains(rec, "max retries reached") {
			found = true
		}
	}
	assert.True(t, found, "recommendations = %v", r.Recommendations)
	assert.Equal(t, 1, countFiles(t, cfg.WorkDir))
	checkInvariants(t, r, cfg)
}

func TestGenerateRetryBudgetPastSchedule(t *testing.T) {
	cfg := Config{NumCandidates: 3, Threshold: 0.95, MaxRetries: 9}
	backend := newFakeBackend(t)
	c := newTestController(t, cfg, sequenceScorer(0.60, 0.70))
	cfg = c.Config()

	r, err := c.Generate(context.Background(), "text", voice.Params{VoiceID: "narrator"}, backend.Synthesize, "budget")
	require.NoError(t, err)

	// 3 initial + 6 retries, the retry that repeats the base params is skipped
	assert.Equal(t, int32(9), backend.calls.Load())
	require.Len(t, r.AllCandidates, 9)
	assert.False(t, r.Success)

	var found bool
	for _, rec := range r.Recommendations {
		if strings.Contains(rec, "max retries reached") {
			found = true
		}
	}
	assert.True(t, found, "recommendations = %v", r.Recommendations)
	checkInvariants(t, r, cfg)
}

func TestGenerateAllFail(t *testing.T) {
	cfg := Config{NumCandidates: 3, Threshold: 0.85, MaxRetries: 5}
	backend := newFakeBackend(t)
	backend.fail = true
	c := newTestController(t, cfg, sequenceScorer(0.9))
	cfg = c.Config()

	r, err := c.Generate(context.Background(), "text", voice.Params{}, backend.Synthesize, "s4")
	require.NoError(t, err)

	assert.Empty(t, r.AllCandidates)
	assert.Nil(t, r.BestCandidate)
	assert.False(t, r.Success)
	assert.NotEmpty(t, r.Failures)
	assert.Equal(t, len(r.Failures), r.TotalAttempts)
	assert.Equal(t, "", r.AudioPath())

	require.NotEmpty(t, r.Recommendations)
	assert.Contains(t, r.Recommendations[0], "check TTS backend")
	assert.Equal(t, 0, countFiles(t, cfg.WorkDir))
	checkInvariants(t, r, cfg)

	// every attempted parameter set is distinct
	for i := range backend.params {
		for j := i + 1; j < len(backend.params); j++ {
			assert.False(t, backend.params[i].Equal(backend.params[j]))
		}
	}
}

func TestGenerateMissingOutputIsFailure(t *testing.T) {
	cfg := Config{NumCandidates: 2, Threshold: 0.85, MaxRetries: 0}
	c := newTestController(t, cfg, sequenceScorer(0.9))

	synth := func(context.Context, string, voice.Params) (string, error) {
		return "/nonexistent/voicestudio/out.wav", nil
	}
	r, err := c.Generate(context.Background(), "text", voice.Params{}, synth, "missing")
	require.NoError(t, err)
	assert.Empty(t, r.AllCandidates)
	assert.Len(t, r.Failures, 2)
	assert.Contains(t, r.Failures[0].Message, "backend output missing")
}

func TestGenerateArchivesDiscardedCandidates(t *testing.T) {
	a, err := archive.New(t.TempDir(), 0, 3)
	require.NoError(t, err)
	defer a.Close()

	cfg := Config{NumCandidates: 3, Threshold: 0.85, MaxRetries: 3}
	backend := newFakeBackend(t)
	c := newTestController(t, cfg, sequenceScorer(0.5, 0.6, 0.7), WithArchive(a))
	cfg = c.Config()

	r, err := c.Generate(context.Background(), "text", voice.Params{}, backend.Synthesize, "keep")
	require.NoError(t, err)
	require.Len(t, r.AllCandidates, 3)

	assert.Equal(t, 1, countFiles(t, cfg.WorkDir))
	assert.Len(t, a.Entries(), 2)
	assert.Equal(t, "keep/keep_candidate_0", r.AllCandidates[0].Metadata["archived"])
}

func TestGenerateCancelled(t *testing.T) {
	cfg := Config{NumCandidates: 3, Threshold: 0.99, MaxRetries: 5}
	backend := newFakeBackend(t)
	c := newTestController(t, cfg, sequenceScorer(0.5))

	ctx, cancel := context.WithCancel(context.Background())
	synth := func(ctx context.Context, text string, p voice.Params) (string, error) {
		path, err := backend.Synthesize(ctx, text, p)
		cancel()
		return path, err
	}

	r, err := c.Generate(ctx, "text", voice.Params{}, synth, "cancel")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, r)
	assert.Len(t, r.AllCandidates, 1)
}

func TestControllerStatsConcurrent(t *testing.T) {
	cfg := Config{NumCandidates: 1, Threshold: 0.5, MaxRetries: 1}
	c := newTestController(t, cfg, sequenceScorer(0.9))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			backend := newFakeBackend(t)
			_, err := c.Generate(context.Background(), "text", voice.Params{}, backend.Synthesize, fmt.Sprintf("task_%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s := c.Stats()
	assert.Equal(t, 8, s.TotalTasks)
	assert.Equal(t, 8, s.SuccessfulTasks)
	assert.InDelta(t, 1.0, s.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0, s.AvgCandidatesNeeded, 1e-9)
	assert.InDelta(t, 0.9, s.AvgQualityScore, 1e-9)
}

func TestSaveReport(t *testing.T) {
	cfg := Config{NumCandidates: 2, Threshold: 0.85, MaxRetries: 2}
	backend := newFakeBackend(t)
	c := newTestController(t, cfg, sequenceScorer(0.4, 0.6))

	r, err := c.Generate(context.Background(), "text", voice.Params{VoiceID: "v"}, backend.Synthesize, "report")
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := SaveReport(r, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "quality_report_report.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"task_id\": \"report\"")

	loaded, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, r.TaskID, loaded.TaskID)
	assert.Len(t, loaded.AllCandidates, len(r.AllCandidates))
	assert.Equal(t, r.BestCandidate.ID, loaded.BestCandidate.ID)
}
