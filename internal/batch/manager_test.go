package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heiconv/internal/task"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func scannedJob(t *testing.T, m *Manager, settings Settings, files ...string) (*Job, string) {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		writeFile(t, filepath.Join(root, f))
	}
	job, err := m.AddJob(root, settings)
	require.NoError(t, err)
	_, err = m.ScanJob(job, nil)
	require.NoError(t, err)
	return job, root
}

func collect(seq func(func(task.Task) bool)) []task.Task {
	var out []task.Task
	seq(func(t task.Task) bool {
		out = append(out, t)
		return true
	})
	return out
}

func TestAddJobValidatesSettings(t *testing.T) {
	m := NewManager()

	job, err := m.AddJob("/photos", DefaultSettings())
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusQueued, job.Status)

	_, err = m.AddJob("/photos", Settings{Quality: 150})
	require.Error(t, err)
}

func TestQueueOperations(t *testing.T) {
	m := NewManager()
	a, _ := m.AddJob("/a", DefaultSettings())
	b, _ := m.AddJob("/b", DefaultSettings())
	c, _ := m.AddJob("/c", DefaultSettings())

	assert.True(t, m.RemoveJob(b.ID))
	assert.False(t, m.RemoveJob(b.ID))
	assert.Equal(t, a, m.Job(a.ID))
	assert.Nil(t, m.Job("missing"))

	last := m.RemoveLastJob()
	require.NotNil(t, last)
	assert.Equal(t, c.ID, last.ID)

	assert.Len(t, m.Jobs(), 1)
	assert.Equal(t, 1, m.ClearAllJobs())
	assert.Nil(t, m.RemoveLastJob())
}

func TestClearCompletedJobs(t *testing.T) {
	m := NewManager()
	a, _ := m.AddJob("/a", DefaultSettings())
	m.AddJob("/b", DefaultSettings())

	a.Status = StatusCompleted

	assert.Equal(t, 1, m.ClearCompletedJobs())
	assert.Len(t, m.QueuedJobs(), 1)
}

func TestNextJob(t *testing.T) {
	m := NewManager()
	assert.Nil(t, m.NextJob())

	a, _ := m.AddJob("/a", DefaultSettings())
	b, _ := m.AddJob("/b", DefaultSettings())

	got := m.NextJob()
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.ID, m.CurrentJob().ID)

	a.Status = StatusCompleted
	assert.Equal(t, b.ID, m.NextJob().ID)

	b.Status = StatusCancelled
	assert.Nil(t, m.NextJob())
}

func TestScanJob(t *testing.T) {
	m := NewManager()
	job, _ := scannedJob(t, m, DefaultSettings(), "a.heic", "sub/b.heic", "skip.txt")

	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, 2, job.TotalFiles)
	require.NotNil(t, job.ScanResult)
	assert.Equal(t, 2, job.ScanResult.EligibleCount())
}

func TestScanJobRejectsActiveJob(t *testing.T) {
	m := NewManager()
	job, _ := m.AddJob(t.TempDir(), DefaultSettings())
	m.MarkProcessing(job)

	_, err := m.ScanJob(job, nil)
	require.Error(t, err)
}

func TestScanJobMissingRootFailsJob(t *testing.T) {
	m := NewManager()
	job, _ := m.AddJob(filepath.Join(t.TempDir(), "missing"), DefaultSettings())

	_, err := m.ScanJob(job, nil)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, job.Status)
}

func TestGenerateTasksRequiresScan(t *testing.T) {
	m := NewManager()
	job, _ := m.AddJob("/never-scanned", DefaultSettings())

	_, err := m.GenerateTasks(job)
	require.Error(t, err)
}

func TestGenerateTasksPreservesStructure(t *testing.T) {
	m := NewManager()
	settings := DefaultSettings()
	settings.OutputDir = filepath.Join(t.TempDir(), "out")

	job, root := scannedJob(t, m, settings, filepath.Join("sub", "a.heic"))

	seq, err := m.GenerateTasks(job)
	require.NoError(t, err)
	tasks := collect(seq)
	require.Len(t, tasks, 1)

	want := filepath.Join(settings.OutputDir, "sub", "a.jpg")
	assert.Equal(t, want, tasks[0].OutputPath)
	assert.Equal(t, filepath.Join(root, "sub", "a.heic"), tasks[0].InputPath)
}

func TestGenerateTasksFlattens(t *testing.T) {
	m := NewManager()
	settings := DefaultSettings()
	settings.OutputDir = filepath.Join(t.TempDir(), "out")
	settings.PreserveFolderStructure = false

	job, _ := scannedJob(t, m, settings, filepath.Join("sub", "a.heic"))

	seq, err := m.GenerateTasks(job)
	require.NoError(t, err)
	tasks := collect(seq)
	require.Len(t, tasks, 1)

	assert.Equal(t, filepath.Join(settings.OutputDir, "a.jpg"), tasks[0].OutputPath)
}

func TestGenerateTasksAlongsideSource(t *testing.T) {
	m := NewManager()
	job, root := scannedJob(t, m, DefaultSettings(), filepath.Join("sub", "a.heic"))

	seq, err := m.GenerateTasks(job)
	require.NoError(t, err)
	tasks := collect(seq)
	require.Len(t, tasks, 1)

	assert.Equal(t, filepath.Join(root, "sub", "a.jpg"), tasks[0].OutputPath)
}

func TestGenerateTasksIdempotentCount(t *testing.T) {
	m := NewManager()
	job, _ := scannedJob(t, m, DefaultSettings(), "a.heic", "b.heic", "c.heic")

	for i := 0; i < 2; i++ {
		seq, err := m.GenerateTasks(job)
		require.NoError(t, err)
		assert.Len(t, collect(seq), job.TotalFiles)
	}
}

func TestUpdateProgress(t *testing.T) {
	m := NewManager()
	job, _ := scannedJob(t, m, DefaultSettings(), "a.heic", "b.heic", "c.heic")
	m.MarkProcessing(job)

	results := []task.Result{
		{Success: true, InputPath: "a.heic"},
		{Success: false, InputPath: "b.heic", Error: "decode failed"},
		{Success: true, InputPath: "c.heic"},
	}

	for i, r := range results {
		m.UpdateProgress(job, r)
		assert.Equal(t, i+1, job.ProcessedFiles)
		assert.Equal(t, job.ProcessedFiles, job.Successful+job.Failed)
	}

	// A batch with failures still completes.
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 2, job.Successful)
	assert.Equal(t, 1, job.Failed)
	assert.Len(t, job.Results, 3)
	assert.InDelta(t, 100.0, job.ProgressPercent(), 1e-9)
}

func TestMarkCancelledDoesNotOverrideTerminal(t *testing.T) {
	m := NewManager()
	job, _ := m.AddJob("/a", DefaultSettings())

	job.Status = StatusCompleted
	m.MarkCancelled(job)
	assert.Equal(t, StatusCompleted, job.Status)

	job.Status = StatusProcessing
	m.MarkCancelled(job)
	assert.Equal(t, StatusCancelled, job.Status)
}

func TestTotalStats(t *testing.T) {
	m := NewManager()
	a, _ := scannedJob(t, m, DefaultSettings(), "a.heic", "b.heic")
	m.MarkProcessing(a)
	m.UpdateProgress(a, task.Result{Success: true})
	m.UpdateProgress(a, task.Result{Success: false, Error: "boom"})

	b, _ := scannedJob(t, m, DefaultSettings(), "c.heic")

	stats := m.TotalStats()
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, 1, stats.QueuedJobs)
	assert.Equal(t, 3, stats.TotalFiles)
	assert.Equal(t, 2, stats.ProcessedFiles)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)

	_ = b
}
