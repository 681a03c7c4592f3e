// Package batch models conversion jobs and the queue that drives them.
// A Job is one source root plus its settings, tracked from scan to
// terminal state; the Manager owns all job mutation.
package batch

import (
	"fmt"
	"path/filepath"

	"heiconv/internal/scanner"
	"heiconv/internal/task"
)

// Status is the lifecycle state of a batch job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusScanning   Status = "scanning"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Settings are the conversion options applied to every file in a job.
type Settings struct {
	Quality          int
	DeleteSource     bool
	PreserveMetadata bool

	// OutputDir is the output root; empty means alongside each source
	// file. PreserveFolderStructure mirrors the source sub-tree under
	// OutputDir instead of flattening.
	OutputDir               string
	PreserveFolderStructure bool
}

// DefaultSettings mirror the application defaults.
func DefaultSettings() Settings {
	return Settings{
		Quality:                 85,
		PreserveMetadata:        true,
		PreserveFolderStructure: true,
	}
}

// Validate rejects settings that would produce invalid tasks.
func (s Settings) Validate() error {
	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("quality must be between 0 and 100, got %d", s.Quality)
	}
	return nil
}

// Job is one batch conversion job. Fields are mutated only by the
// Manager under its lock; treat a Job obtained from the Manager as
// read-only.
type Job struct {
	ID       string
	Root     string
	Status   Status
	Settings Settings

	// ScanResult is nil until the job has been scanned.
	ScanResult *scanner.Result

	TotalFiles     int
	ProcessedFiles int
	Successful     int
	Failed         int

	Results []task.Result
}

// ProgressPercent reports processed/total as 0-100.
func (j *Job) ProgressPercent() float64 {
	if j.TotalFiles == 0 {
		return 0
	}
	return float64(j.ProcessedFiles) / float64(j.TotalFiles) * 100
}

// IsComplete reports whether the job reached a terminal state.
func (j *Job) IsComplete() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// IsActive reports whether the job is scanning or processing.
func (j *Job) IsActive() bool {
	return j.Status == StatusScanning || j.Status == StatusProcessing
}

// DisplayName is a short label for queue listings.
func (j *Job) DisplayName() string {
	return fmt.Sprintf("%s (%d files)", filepath.Base(j.Root), j.TotalFiles)
}

// Summary returns a human-readable progress report.
func (j *Job) Summary() string {
	return fmt.Sprintf("Batch: %s\nStatus: %s\nProgress: %d/%d (%.1f%%)\nSuccessful: %d\nFailed: %d",
		j.Root, j.Status, j.ProcessedFiles, j.TotalFiles, j.ProgressPercent(), j.Successful, j.Failed)
}
