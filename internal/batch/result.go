package batch

// Performance holds throughput figures for one job.
type Performance struct {
	FilesPerSecond   float64 `json:"files_per_second"`
	CharactersMerged int     `json:"characters_merged"`
	ParallelWorkers  int     `json:"parallel_workers"`
	Efficiency       float64 `json:"efficiency"`
}

// Result is the terminal outcome of a job.
type Result struct {
	JobID           string   `json:"job_id"`
	Success         bool     `json:"success"`
	FilesProcessed  int      `json:"files_processed"`
	FilesFailed     int      `json:"files_failed"`
	TotalAudioFiles int      `json:"total_audio_files"`
	ProcessingTime  float64  `json:"processing_time"`
	OutputFiles     []string `json:"output_files"`

	// CompositeFiles are the segment and final concatenations.
	CompositeFiles []string `json:"composite_files,omitempty"`

	ErrorMessages []string `json:"error_messages"`

	// Warnings record degraded but successful units, such as an inner
	// voice effect that could not be applied.
	Warnings []string `json:"warnings,omitempty"`

	PerformanceMetrics Performance `json:"performance_metrics"`
}

// Stats aggregates every job a processor has finished.
type Stats struct {
	TotalJobsProcessed  int     `json:"total_jobs_processed"`
	TotalFilesProcessed int     `json:"total_files_processed"`
	TotalProcessingTime float64 `json:"total_processing_time"`
	SuccessRate         float64 `json:"success_rate"`
}

// Summary is Stats plus the registry state.
type Summary struct {
	Stats
	ActiveJobs    int `json:"active_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	MaxWorkers    int `json:"max_workers"`
}
