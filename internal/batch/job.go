package batch

import (
	"sync"
	"time"

	"github.com/dgnsrekt/voicestudio/internal/project"
	"github.com/dgnsrekt/voicestudio/internal/voice"
)

// Status is the lifecycle state of a job.
type Status string

// Job states.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Options tune how a job is processed.
type Options struct {
	// Workers overrides the processor's pool size when positive.
	Workers int `json:"workers,omitempty"`

	// SaveReports writes quality_report_<task>.json next to each clip.
	SaveReports bool `json:"save_reports"`

	// Concatenate builds segment and final composites after all units.
	Concatenate bool `json:"concatenate"`

	// DefaultInnerVoice is the preset used when a dialogue asks for an
	// inner voice without naming one.
	DefaultInnerVoice string `json:"default_inner_voice,omitempty"`
}

// Job is one batch run over a set of project files.
type Job struct {
	ID            string          `json:"job_id"`
	Files         []*project.File `json:"project_files"`
	OutputDir     string          `json:"output_directory"`
	VoiceSettings voice.Params    `json:"voice_settings"`
	Options       Options         `json:"processing_options"`
	CreatedAt     time.Time       `json:"created_at"`

	mu          sync.Mutex
	status      Status
	progress    float64
	startedAt   time.Time
	completedAt time.Time
	mapping     *project.Mapping
}

// Info is a point-in-time copy of a job's state.
type Info struct {
	ID          string     `json:"job_id"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"`
	Files       int        `json:"files"`
	OutputDir   string     `json:"output_directory"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newJob(id string, files []*project.File, outputDir string, settings voice.Params, opts Options) *Job {
	return &Job{
		ID:            id,
		Files:         files,
		OutputDir:     outputDir,
		VoiceSettings: settings,
		Options:       opts,
		CreatedAt:     time.Now(),
		status:        StatusPending,
	}
}

// Status returns the current state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Progress returns completion in [0, 1].
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Mapping returns the character mapping built when the job ran.
func (j *Job) Mapping() *project.Mapping {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.mapping
}

// Info snapshots the job.
func (j *Job) Info() Info {
	j.mu.Lock()
	defer j.mu.Unlock()

	info := Info{
		ID:        j.ID,
		Status:    j.status,
		Progress:  j.progress,
		Files:     len(j.Files),
		OutputDir: j.OutputDir,
		CreatedAt: j.CreatedAt,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		info.StartedAt = &t
	}
	if !j.completedAt.IsZero() {
		t := j.completedAt
		info.CompletedAt = &t
	}
	return info
}

func (j *Job) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusRunning
	j.startedAt = time.Now()
}

func (j *Job) setMapping(m *project.Mapping) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.mapping = m
}

func (j *Job) setProgress(p float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = p
}

func (j *Job) finish(success bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusFailed
	if success {
		j.status = StatusCompleted
	}
	j.progress = 1
	j.completedAt = time.Now()
}
