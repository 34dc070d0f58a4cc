package batch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/voicestudio/internal/audio"
	"github.com/dgnsrekt/voicestudio/internal/backend"
	"github.com/dgnsrekt/voicestudio/internal/effects"
	"github.com/dgnsrekt/voicestudio/internal/quality"
	"github.com/dgnsrekt/voicestudio/internal/script"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

const projectA = `{
  "project": {"title": "A"},
  "characters": [
    {"id": "hero", "name": "Alex", "suggested_voice": "alex_v1"},
    {"id": "villain", "name": "Vex"}
  ],
  "segments": [
    {"id": 1, "dialogues": [
      {"speaker": "hero", "text": "Hello there."},
      {"speaker": "villain", "text": "FAIL this line."}
    ]},
    {"id": 2, "dialogues": [
      {"speaker": "hero", "text": "Quiet thoughts.", "inner_voice": true},
      {"speaker": "hero", "text": "Darker thoughts.", "inner_voice": true, "inner_voice_type": "deep"}
    ]}
  ]
}`

const projectB = `{
  "project": {"title": "B"},
  "characters": [{"id": "hero", "name": "Alex"}],
  "segments": [{"id": 1, "dialogues": [{"speaker": "hero", "text": "Again."}]}]
}`

// copyEffects copies the input for every preset except deep, which fails.
type copyEffects struct {
	applied atomic.Int32
}

func (e *copyEffects) Apply(_ context.Context, input, output, preset string, _ *effects.Custom) error {
	if preset == effects.Deep {
		return errors.New("filter graph rejected")
	}
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(output)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	e.applied.Add(1)
	return err
}

func passingController(t *testing.T) *quality.Controller {
	t.Helper()
	scorer := quality.ScorerFunc(func(context.Context, string, string) []quality.Score {
		scores := make([]quality.Score, 0, len(quality.Metrics))
		for _, m := range quality.Metrics {
			scores = append(scores, quality.NewScore(m, 0.9, nil))
		}
		return scores
	})
	cfg := quality.Config{NumCandidates: 1, Threshold: 0.85, MaxRetries: 1, WorkDir: t.TempDir()}
	return quality.NewController(cfg, quality.NewEvaluator(scorer, nil))
}

// toneSynth renders tones and refuses any text containing FAIL.
func toneSynth(t *testing.T) quality.SynthesizeFunc {
	t.Helper()
	tone := backend.Func(backend.NewTone(t.TempDir()))
	return func(ctx context.Context, text string, p voice.Params) (string, error) {
		if strings.Contains(text, "FAIL") {
			return "", errors.New("engine refused text")
		}
		return tone(ctx, text, p)
	}
}

func writeProjects(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestProcessJob(t *testing.T) {
	src := writeProjects(t, map[string]string{"a.json": projectA, "b.json": projectB})
	out := t.TempDir()

	fx := &copyEffects{}
	p := NewProcessor(passingController(t), WithEffects(fx), WithWorkers(3))

	job, err := p.CreateJob(src, out, voice.Params{Speed: voice.Float(1)}, Options{Concatenate: true, SaveReports: true})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status())
	assert.True(t, strings.HasPrefix(job.ID, "batch_"))

	var calls atomic.Int32
	var lastPercent atomic.Value
	res := p.ProcessJob(context.Background(), job, toneSynth(t), func(done, total int, percent float64) {
		calls.Add(1)
		if done == total {
			lastPercent.Store(percent)
		}
	})

	assert.Equal(t, 5, res.FilesProcessed+res.FilesFailed, "every unit is accounted for")
	assert.Equal(t, 4, res.FilesProcessed)
	assert.Equal(t, 1, res.FilesFailed)
	assert.False(t, res.Success)
	require.Len(t, res.ErrorMessages, 1)
	assert.Contains(t, res.ErrorMessages[0], "s1_d2_villain")
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, 100.0, lastPercent.Load())

	assert.Equal(t, StatusFailed, job.Status())
	assert.Equal(t, 1.0, job.Progress())
	assert.NotNil(t, job.Info().CompletedAt)

	for _, name := range []string{
		"a/s1_d1_hero.wav",
		"a/s2_d1_hero_inner_light.wav",
		"a/s2_d2_hero.wav",
		"a/segment_1_complete.wav",
		"a/segment_2_complete.wav",
		"a/" + FinalName,
		"b/s1_d1_hero.wav",
		"b/" + FinalName,
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.NoFileExists(t, filepath.Join(out, "a", "s2_d1_hero.wav"), "plain clip replaced by the effect")
	assert.Equal(t, int32(1), fx.applied.Load())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "deep")
	assert.Len(t, res.CompositeFiles, 5)

	reports, err := filepath.Glob(filepath.Join(out, "a", "quality_report_*.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 4, "reports are written for failed units too")

	assert.Equal(t, 0.8, res.PerformanceMetrics.Efficiency)
}

func TestProcessJobMapping(t *testing.T) {
	src := writeProjects(t, map[string]string{"a.json": projectA, "b.json": projectB})
	p := NewProcessor(passingController(t))

	job, err := p.CreateJob(src, t.TempDir(), voice.Params{}, Options{})
	require.NoError(t, err)
	res := p.ProcessJob(context.Background(), job, toneSynth(t), nil)
	assert.Equal(t, 3, res.PerformanceMetrics.CharactersMerged)

	m := job.Mapping()
	require.NotNil(t, m)
	a, b := job.Files[0].Path, job.Files[1].Path
	heroA, ok := m.Resolve(a, "hero")
	require.True(t, ok)
	heroB, ok := m.Resolve(b, "hero")
	require.True(t, ok)
	assert.NotEqual(t, heroA, heroB, "same id in two projects stays distinct")

	c, ok := m.Character(heroA)
	require.True(t, ok)
	assert.Equal(t, "hero", c.OriginalID)
	assert.Equal(t, "a.json", c.SourceFile)
}

func TestCreateJobNoWork(t *testing.T) {
	p := NewProcessor(passingController(t))
	_, err := p.CreateJob(t.TempDir(), t.TempDir(), voice.Params{}, Options{})
	assert.ErrorIs(t, err, ErrNoWork)
}

func TestProcessJobCancelled(t *testing.T) {
	src := writeProjects(t, map[string]string{"b.json": projectB})
	p := NewProcessor(passingController(t))
	job, err := p.CreateJob(src, t.TempDir(), voice.Params{}, Options{Concatenate: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.ProcessJob(ctx, job, toneSynth(t), nil)

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.FilesFailed)
	assert.Empty(t, res.CompositeFiles)
	assert.Equal(t, StatusFailed, job.Status())
}

func TestProcessJobAbortedAccountsForUnits(t *testing.T) {
	src := writeProjects(t, map[string]string{"a.json": projectA, "b.json": projectB})
	// no loader: concatenation blows up after every unit has run
	p := NewProcessor(passingController(t), WithConcatenator(&audio.Concatenator{}), WithWorkers(2))
	job, err := p.CreateJob(src, t.TempDir(), voice.Params{}, Options{Concatenate: true})
	require.NoError(t, err)

	res := p.ProcessJob(context.Background(), job, toneSynth(t), func(int, int, float64) {
		panic("progress display crashed")
	})

	assert.False(t, res.Success)
	assert.Equal(t, 5, res.FilesProcessed+res.FilesFailed, "every unit is accounted for")
	assert.Equal(t, 1, res.FilesFailed)
	assert.Len(t, res.OutputFiles, res.FilesProcessed)
	require.NotEmpty(t, res.ErrorMessages)
	assert.Contains(t, res.ErrorMessages[len(res.ErrorMessages)-1], "batch aborted")
	assert.Equal(t, StatusFailed, job.Status())
}

// cancelledGenerator selects a candidate and then reports that the task
// was cancelled.
type cancelledGenerator struct {
	dir   string
	paths []string
}

func (g *cancelledGenerator) Generate(_ context.Context, text string, _ voice.Params, _ quality.SynthesizeFunc, taskID string) (*quality.Report, error) {
	path := filepath.Join(g.dir, taskID+".wav")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return nil, err
	}
	g.paths = append(g.paths, path)
	best := &quality.Candidate{ID: taskID, AudioPath: path}
	return &quality.Report{TaskID: taskID, BestCandidate: best, AllCandidates: []*quality.Candidate{best}}, context.Canceled
}

func TestProcessJobCancelledRemovesSelection(t *testing.T) {
	src := writeProjects(t, map[string]string{"b.json": projectB})
	out := t.TempDir()
	gen := &cancelledGenerator{dir: t.TempDir()}
	p := NewProcessor(gen)
	job, err := p.CreateJob(src, out, voice.Params{}, Options{})
	require.NoError(t, err)

	res := p.ProcessJob(context.Background(), job, nil, nil)

	assert.Equal(t, 1, res.FilesFailed)
	require.Len(t, gen.paths, 1)
	assert.NoFileExists(t, gen.paths[0], "selected clip left behind in the work dir")
	assert.NoFileExists(t, filepath.Join(out, "s1_d1_hero.wav"))
}

func TestRegistry(t *testing.T) {
	src := writeProjects(t, map[string]string{"b.json": projectB})
	p := NewProcessor(passingController(t), WithWorkers(2))

	job, err := p.CreateJob(src, t.TempDir(), voice.Params{}, Options{})
	require.NoError(t, err)
	got, ok := p.Job(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)
	assert.Equal(t, 1, p.Summary().ActiveJobs)

	res := p.ProcessJob(context.Background(), job, toneSynth(t), nil)
	require.True(t, res.Success)
	assert.Equal(t, StatusCompleted, job.Status())
	assert.Equal(t, 2, res.PerformanceMetrics.ParallelWorkers)
	assert.Equal(t, 1.0, res.PerformanceMetrics.Efficiency)

	_, ok = p.Job(job.ID)
	assert.True(t, ok, "finished jobs stay queryable")

	s := p.Summary()
	assert.Equal(t, 0, s.ActiveJobs)
	assert.Equal(t, 1, s.CompletedJobs)
	assert.Equal(t, 1, s.TotalJobsProcessed)
	assert.Equal(t, 1, s.TotalFilesProcessed)
	assert.Equal(t, 1.0, s.SuccessRate)
	assert.Equal(t, 2, s.MaxWorkers)

	_, ok = p.Job("batch_missing")
	assert.False(t, ok)
}

func TestUnitParams(t *testing.T) {
	shared := voice.Params{VoiceID: "base", Speed: voice.Float(1), Temperature: voice.Float(0.7)}
	c := script.Character{ID: "hero", SuggestedVoice: "alex_v1", VoiceSettings: map[string]any{"temperature": 0.5}}
	d := script.Dialogue{Speaker: "hero", Text: "x", Emotion: "calm", VoiceParams: map[string]any{"speed": 1.2}}

	got, err := unitParams(shared, c, d)
	require.NoError(t, err)
	assert.Equal(t, "alex_v1", got.VoiceID)
	assert.Equal(t, 1.2, *got.Speed)
	assert.Equal(t, 0.5, *got.Temperature)
	assert.Equal(t, "calm", got.Extra["emotion"])
	assert.Equal(t, 1.0, *shared.Speed, "shared settings are not mutated")

	_, err = unitParams(shared, script.Character{ID: "x", VoiceSettings: map[string]any{"speed": "fast"}}, script.Dialogue{})
	assert.Error(t, err)
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"hero":        "hero",
		"Dr. Who":     "Dr._Who",
		"a/b":         "a_b",
		"  ":          "unknown",
		"Zoë":         "Zoë",
		"merged_char": "merged_char",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeName(in), in)
	}
}
