// Package batch drives quality-controlled generation across every dialogue
// of a set of script projects with a bounded worker pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/voicestudio/internal/audio"
	"github.com/dgnsrekt/voicestudio/internal/effects"
	"github.com/dgnsrekt/voicestudio/internal/metrics"
	"github.com/dgnsrekt/voicestudio/internal/project"
	"github.com/dgnsrekt/voicestudio/internal/quality"
	"github.com/dgnsrekt/voicestudio/internal/utils"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// MaxDefaultWorkers caps the default pool size.
const MaxDefaultWorkers = 8

// FinalName is the file name of a project's full concatenation.
const FinalName = "final_complete_audio.wav"

// ErrNoWork is returned when a source directory holds no usable projects.
var ErrNoWork = errors.New("no valid project files found")

// ProgressFunc receives (done, total, percent) after each unit. It is
// called from worker goroutines and must be safe for concurrent use.
type ProgressFunc func(done, total int, percent float64)

// Generator runs one quality-controlled task. quality.Controller is the
// production implementation.
type Generator interface {
	Generate(ctx context.Context, text string, base voice.Params, synth quality.SynthesizeFunc, taskID string) (*quality.Report, error)
}

// Effects applies inner voice presets.
type Effects interface {
	Apply(ctx context.Context, input, output, preset string, custom *effects.Custom) error
}

// DefaultWorkers is min(8, NumCPU).
func DefaultWorkers() int {
	return min(MaxDefaultWorkers, runtime.NumCPU())
}

// Processor creates and runs batch jobs and keeps a registry of them.
type Processor struct {
	generator Generator
	detector  *project.Detector
	matcher   *project.Matcher
	effects   Effects
	concat    *audio.Concatenator
	workers   int
	logger    *log.Logger

	mu        sync.Mutex
	active    map[string]*Job
	history   []*Job
	stats     Stats
	succeeded int
}

// Option configures a Processor.
type Option func(*Processor)

// WithWorkers sets the pool size.
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithEffects enables inner voice effects.
func WithEffects(e Effects) Option {
	return func(p *Processor) { p.effects = e }
}

// WithConcatenator sets the concatenation stage.
func WithConcatenator(c *audio.Concatenator) Option {
	return func(p *Processor) { p.concat = c }
}

// WithDetector replaces the project detector.
func WithDetector(d *project.Detector) Option {
	return func(p *Processor) { p.detector = d }
}

// WithMatcher replaces the character matcher.
func WithMatcher(m *project.Matcher) Option {
	return func(p *Processor) { p.matcher = m }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor returns a processor generating through gen.
func NewProcessor(gen Generator, opts ...Option) *Processor {
	p := &Processor{
		generator: gen,
		matcher:   project.NewMatcher(project.PolicyDistinct, 0),
		concat:    audio.NewConcatenator(audio.NewLoader(nil)),
		workers:   DefaultWorkers(),
		logger:    log.Default(),
		active:    make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.detector == nil {
		p.detector = project.NewDetector(p.logger)
	}
	return p
}

// CreateJob detects project files under sourceDir and registers a pending
// job. It fails with ErrNoWork when nothing parseable is found.
func (p *Processor) CreateJob(sourceDir, outputDir string, settings voice.Params, opts Options) (*Job, error) {
	files, err := p.detector.Detect(sourceDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoWork, sourceDir)
	}

	id := fmt.Sprintf("batch_%s_%s", time.Now().Format("20060102_150405"), uuid.NewString()[:8])
	job := newJob(id, files, outputDir, settings, opts)

	p.mu.Lock()
	p.active[id] = job
	p.mu.Unlock()

	p.logger.Info("Created batch job", "job", id, "files", len(files), "output", outputDir)
	return job, nil
}

// Job looks up a job by id, active or finished.
func (p *Processor) Job(id string) (*Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.active[id]; ok {
		return j, true
	}
	for _, j := range p.history {
		if j.ID == id {
			return j, true
		}
	}
	return nil, false
}

// Summary reports totals across finished jobs and the registry size.
func (p *Processor) Summary() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Summary{
		Stats:         p.stats,
		ActiveJobs:    len(p.active),
		CompletedJobs: len(p.history),
		MaxWorkers:    p.workers,
	}
}

// tally accumulates unit outcomes under its own lock.
type tally struct {
	mu        sync.Mutex
	done      int
	processed int
	failed    int
	outputs   []string
	errors    []string
	warnings  []string
}

// ProcessJob runs every unit of job. Unit failures are recorded and never
// stop the batch; the returned Result always accounts for every unit.
// Cancelling ctx fails the remaining units and the job.
func (p *Processor) ProcessJob(ctx context.Context, job *Job, synth quality.SynthesizeFunc, progress ProgressFunc) (res *Result) {
	start := time.Now()
	job.start()

	workers := p.workers
	if job.Options.Workers > 0 {
		workers = job.Options.Workers
	}

	var total int
	t := &tally{}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Batch job aborted", "job", job.ID, "panic", r)
			t.mu.Lock()
			res = &Result{
				JobID:           job.ID,
				FilesProcessed:  t.processed,
				FilesFailed:     total - t.processed,
				TotalAudioFiles: len(t.outputs),
				OutputFiles:     t.outputs,
				ProcessingTime:  time.Since(start).Seconds(),
				ErrorMessages:   append(t.errors, fmt.Sprintf("batch aborted: %v", r)),
				Warnings:        t.warnings,
			}
			t.mu.Unlock()
		}
		job.finish(res.Success)
		p.record(job, res)
	}()

	mapping := p.matcher.Merge(job.Files)
	job.setMapping(mapping)
	units := enumerate(job, mapping)
	total = len(units)

	for _, dir := range projectDirs(job.OutputDir, job.Files) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Result{
				JobID:          job.ID,
				FilesFailed:    total,
				ProcessingTime: time.Since(start).Seconds(),
				ErrorMessages:  []string{fmt.Sprintf("failed to create output directory: %v", err)},
			}
		}
	}

	p.logger.Info("Processing batch job", "job", job.ID, "units", total, "workers", workers, "characters", len(mapping.Characters))

	outputs := make([]string, total)

	var g errgroup.Group
	g.SetLimit(workers)
	for _, u := range units {
		u := u
		g.Go(func() error {
			out, warning, err := p.runUnit(ctx, job, u, synth)
			metrics.RecordUnit(err == nil)

			t.mu.Lock()
			if err != nil {
				t.failed++
				t.errors = append(t.errors, fmt.Sprintf("%s: %v", u.label(), err))
			} else {
				t.processed++
				t.outputs = append(t.outputs, out)
				outputs[u.index] = out
			}
			if warning != "" {
				t.warnings = append(t.warnings, warning)
			}
			t.done++
			done := t.done
			t.mu.Unlock()

			job.setProgress(float64(done) / float64(total))
			p.notify(progress, done, total)
			if err != nil {
				p.logger.Warn("Unit failed", "job", job.ID, "unit", u.label(), "err", err)
			}
			return nil
		})
	}
	g.Wait()

	res = &Result{
		JobID:           job.ID,
		Success:         t.failed == 0 && ctx.Err() == nil,
		FilesProcessed:  t.processed,
		FilesFailed:     t.failed,
		TotalAudioFiles: len(t.outputs),
		OutputFiles:     t.outputs,
		ErrorMessages:   t.errors,
		Warnings:        t.warnings,
	}

	if job.Options.Concatenate && ctx.Err() == nil {
		composites, errs := p.concatenate(ctx, job, units, outputs)
		res.CompositeFiles = composites
		res.ErrorMessages = append(res.ErrorMessages, errs...)
	}

	res.ProcessingTime = time.Since(start).Seconds()
	res.PerformanceMetrics = Performance{
		CharactersMerged: len(mapping.Characters),
		ParallelWorkers:  workers,
	}
	if res.ProcessingTime > 0 {
		res.PerformanceMetrics.FilesPerSecond = float64(t.processed) / res.ProcessingTime
	}
	if total > 0 {
		res.PerformanceMetrics.Efficiency = float64(t.processed) / float64(total)
	}

	p.logger.Info("Batch job finished", "job", job.ID, "processed", t.processed, "failed", t.failed, "seconds", res.ProcessingTime)
	return res
}

// notify runs the caller's progress callback. A panicking callback is
// logged and does not take the worker down.
func (p *Processor) notify(progress ProgressFunc, done, total int) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Progress callback failed", "panic", r)
		}
	}()
	progress(done, total, 100*float64(done)/float64(total))
}

// runUnit generates one dialogue, moves the selected clip into place and
// applies its inner voice effect. A failed effect keeps the plain clip and
// is reported as a warning.
func (p *Processor) runUnit(ctx context.Context, job *Job, u *unit, synth quality.SynthesizeFunc) (output, warning string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	metrics.BatchUnitsInFlight.Inc()
	defer metrics.BatchUnitsInFlight.Dec()
	defer func() {
		if r := recover(); r != nil {
			output, warning, err = "", "", fmt.Errorf("unit aborted: %v", r)
		}
	}()

	params, err := unitParams(job.VoiceSettings, u.character, u.line)
	if err != nil {
		return "", "", err
	}

	taskID := fmt.Sprintf("%s_%s", strings.TrimPrefix(job.ID, "batch_"), u.name())
	if len(job.Files) > 1 {
		taskID = fmt.Sprintf("%s_%s", taskID, filepath.Base(u.dir))
	}

	report, err := p.generator.Generate(ctx, u.line.Text, params, synth, taskID)
	if err != nil {
		if report != nil && report.BestCandidate != nil {
			_ = os.Remove(report.AudioPath())
		}
		return "", "", err
	}
	if report.BestCandidate == nil {
		p.saveReport(job, report, u.dir)
		return "", "", fmt.Errorf("no usable audio: %s", strings.Join(report.Recommendations, " "))
	}

	ext := filepath.Ext(report.AudioPath())
	if ext == "" {
		ext = ".wav"
	}
	output = filepath.Join(u.dir, u.name()+ext)
	if err := utils.MoveFile(report.AudioPath(), output); err != nil {
		return "", "", fmt.Errorf("failed to place output: %w", err)
	}
	report.BestCandidate.AudioPath = output

	if u.line.InnerVoice {
		output, warning = p.innerVoice(ctx, job, u, output, ext)
		report.BestCandidate.AudioPath = output
	}
	p.saveReport(job, report, u.dir)
	return output, warning, nil
}

func (p *Processor) innerVoice(ctx context.Context, job *Job, u *unit, plain, ext string) (string, string) {
	preset := u.line.InnerVoiceType
	if preset == "" {
		preset = job.Options.DefaultInnerVoice
	}
	if preset == "" {
		preset = effects.Light
	}
	if p.effects == nil {
		return plain, fmt.Sprintf("%s: inner voice %s skipped, effects disabled", u.label(), preset)
	}

	var custom *effects.Custom
	if c := u.line.InnerVoiceParams; c != nil {
		custom = &effects.Custom{Delay: c.Delay, Decay: c.Decay, Gain: c.Gain}
	}

	out := filepath.Join(u.dir, u.name()+"_inner_"+preset+ext)
	if err := p.effects.Apply(ctx, plain, out, preset, custom); err != nil {
		return plain, fmt.Sprintf("%s: inner voice %s not applied: %v", u.label(), preset, err)
	}
	if err := os.Remove(plain); err != nil {
		p.logger.Debug("Failed to remove plain clip", "path", plain, "err", err)
	}
	return out, ""
}

func (p *Processor) saveReport(job *Job, r *quality.Report, dir string) {
	if !job.Options.SaveReports {
		return
	}
	if _, err := quality.SaveReport(r, dir); err != nil {
		p.logger.Warn("Failed to save quality report", "task", r.TaskID, "err", err)
	}
}

// concatenate joins each segment's clips in dialogue order, then each
// project's segments into the final track. Segments without clips are
// skipped.
func (p *Processor) concatenate(ctx context.Context, job *Job, units []*unit, outputs []string) ([]string, []string) {
	type key struct {
		dir     string
		segment int
	}
	clips := make(map[key][]string)
	var dirs []string
	seenDir := make(map[string]bool)
	for _, u := range units {
		if !seenDir[u.dir] {
			seenDir[u.dir] = true
			dirs = append(dirs, u.dir)
		}
		if out := outputs[u.index]; out != "" {
			k := key{u.dir, u.segment}
			clips[k] = append(clips[k], out)
		}
	}

	var composites, errs []string
	for _, dir := range dirs {
		var segments []int
		for k := range clips {
			if k.dir == dir {
				segments = append(segments, k.segment)
			}
		}
		sort.Ints(segments)

		var segmentFiles []string
		for _, s := range segments {
			out := filepath.Join(dir, fmt.Sprintf("segment_%d_complete.wav", s))
			if _, err := p.concat.Concatenate(ctx, clips[key{dir, s}], out); err != nil {
				errs = append(errs, fmt.Sprintf("segment %d in %s: %v", s, dir, err))
				continue
			}
			segmentFiles = append(segmentFiles, out)
		}

		final := filepath.Join(dir, FinalName)
		_, err := p.concat.Concatenate(ctx, segmentFiles, final)
		switch {
		case errors.Is(err, audio.ErrNoInput):
		case err != nil:
			errs = append(errs, fmt.Sprintf("final track in %s: %v", dir, err))
		default:
			segmentFiles = append(segmentFiles, final)
		}
		composites = append(composites, segmentFiles...)
	}
	return composites, errs
}

func (p *Processor) record(job *Job, res *Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.active, job.ID)
	p.history = append(p.history, job)

	p.stats.TotalJobsProcessed++
	p.stats.TotalFilesProcessed += res.FilesProcessed
	p.stats.TotalProcessingTime += res.ProcessingTime
	if res.Success {
		p.succeeded++
	}
	p.stats.SuccessRate = float64(p.succeeded) / float64(p.stats.TotalJobsProcessed)
}
