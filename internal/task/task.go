// Package task defines the value types exchanged between the batch
// manager, the worker pool, and the conversion adapter: one Task per
// input file and one Result per attempted conversion.
package task

import (
	"fmt"
	"path/filepath"
)

// Task describes a single file conversion. Tasks are immutable values,
// created fresh per file and consumed once by the adapter.
type Task struct {
	InputPath        string
	OutputPath       string
	Quality          int
	DeleteSource     bool
	PreserveMetadata bool
}

// New validates the parameters and builds a Task. Quality must lie in
// [0,100]; anything else is a construction error, so an invalid task
// can never reach a worker.
func New(inputPath, outputPath string, quality int, deleteSource, preserveMetadata bool) (Task, error) {
	if quality < 0 || quality > 100 {
		return Task{}, fmt.Errorf("quality must be between 0 and 100, got %d", quality)
	}
	return Task{
		InputPath:        inputPath,
		OutputPath:       outputPath,
		Quality:          quality,
		DeleteSource:     deleteSource,
		PreserveMetadata: preserveMetadata,
	}, nil
}

// InputFilename returns the base name of the input file.
func (t Task) InputFilename() string {
	return filepath.Base(t.InputPath)
}

// OutputFilename returns the base name of the output file.
func (t Task) OutputFilename() string {
	return filepath.Base(t.OutputPath)
}
