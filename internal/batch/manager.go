package batch

import (
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"heiconv/internal/converter"
	"heiconv/internal/scanner"
	"heiconv/internal/task"
)

// Manager holds the job queue and advances jobs through their
// lifecycle. All collaborators share one Manager by reference; there is
// no process-wide state.
type Manager struct {
	mu      sync.Mutex
	jobs    []*Job
	current *Job
}

// NewManager returns an empty job queue.
func NewManager() *Manager {
	return &Manager{}
}

// AddJob appends a new queued job for root. Settings are validated here
// so the task generator can never yield an invalid task.
func (m *Manager) AddJob(root string, settings Settings) (*Job, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	job := &Job{
		ID:       uuid.NewString(),
		Root:     root,
		Status:   StatusQueued,
		Settings: settings,
	}

	m.mu.Lock()
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()

	slog.Info("added batch job", "job", job.ID, "root", root)
	return job, nil
}

// Job returns the job with the given id, or nil.
func (m *Manager) Job(id string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// RemoveJob drops a job from the queue. Returns false when no job with
// that id exists.
func (m *Manager) RemoveJob(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.jobs[:0]
	removed := false
	for _, j := range m.jobs {
		if j.ID == id {
			removed = true
			continue
		}
		kept = append(kept, j)
	}
	m.jobs = kept

	if removed {
		slog.Info("removed batch job", "job", id)
	}
	return removed
}

// RemoveLastJob pops the most recently added job, or returns nil when
// the queue is empty.
func (m *Manager) RemoveLastJob() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.jobs) == 0 {
		return nil
	}
	job := m.jobs[len(m.jobs)-1]
	m.jobs = m.jobs[:len(m.jobs)-1]
	slog.Info("removed last batch job", "job", job.ID)
	return job
}

// ClearCompletedJobs removes every job in a terminal state and returns
// how many were removed.
func (m *Manager) ClearCompletedJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.jobs[:0]
	for _, j := range m.jobs {
		if !j.IsComplete() {
			kept = append(kept, j)
		}
	}
	removed := len(m.jobs) - len(kept)
	m.jobs = kept

	if removed > 0 {
		slog.Info("cleared completed jobs", "count", removed)
	}
	return removed
}

// ClearAllJobs empties the queue and returns how many jobs it held.
func (m *Manager) ClearAllJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := len(m.jobs)
	m.jobs = nil
	m.current = nil
	return removed
}

// NextJob returns the first job still queued and marks it current, or
// nil when no queued jobs remain. Jobs run one at a time; tasks within
// a job run in parallel.
func (m *Manager) NextJob() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.Status == StatusQueued {
			m.current = j
			return j
		}
	}
	return nil
}

// CurrentJob returns the job most recently handed out by NextJob.
func (m *Manager) CurrentJob() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ScanJob runs the scanner over the job's root, storing the result and
// the total file count. The job is Scanning for the duration of the
// call and returns to Queued afterwards. Jobs that are active or
// already terminal cannot be scanned.
func (m *Manager) ScanJob(job *Job, onProgress scanner.ProgressFunc) (*scanner.Result, error) {
	m.mu.Lock()
	if job.Status != StatusQueued {
		m.mu.Unlock()
		return nil, fmt.Errorf("job %s cannot be scanned in status %s", job.ID, job.Status)
	}
	job.Status = StatusScanning
	m.mu.Unlock()

	slog.Info("scanning job", "job", job.ID, "root", job.Root)
	result, err := scanner.Scan(job.Root, onProgress)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		job.Status = StatusFailed
		return nil, err
	}

	job.ScanResult = result
	job.TotalFiles = result.EligibleCount()
	job.Status = StatusQueued

	slog.Info("scan complete", "job", job.ID, "eligible", job.TotalFiles)
	return result, nil
}

// GenerateTasks returns a lazy, single-pass sequence of conversion
// tasks for a scanned job. One task is materialized at a time to bound
// memory on very large batches. Fails if the job has not been scanned.
func (m *Manager) GenerateTasks(job *Job) (iter.Seq[task.Task], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ScanResult == nil {
		return nil, fmt.Errorf("job %s has not been scanned yet", job.ID)
	}

	// Totals always reflect the actual task list.
	job.TotalFiles = len(job.ScanResult.Files)
	files := job.ScanResult.Files
	settings := job.Settings
	root := job.Root

	return func(yield func(task.Task) bool) {
		for _, input := range files {
			outDir := ""
			if settings.OutputDir != "" {
				if settings.PreserveFolderStructure {
					rel, err := filepath.Rel(root, filepath.Dir(input))
					if err != nil {
						rel = "."
					}
					outDir = filepath.Join(settings.OutputDir, rel)
				} else {
					outDir = settings.OutputDir
				}
			}

			t, err := task.New(
				input,
				converter.DeriveOutputPath(input, outDir),
				settings.Quality,
				settings.DeleteSource,
				settings.PreserveMetadata,
			)
			if err != nil {
				// Settings were validated at AddJob; an invalid task
				// here would be a programming error.
				slog.Error("skipping invalid task", "input", input, "error", err)
				continue
			}

			if !yield(t) {
				return
			}
		}
	}, nil
}

// MarkProcessing moves a scanned, queued job into Processing.
func (m *Manager) MarkProcessing(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = StatusProcessing
}

// MarkCancelled moves a job into the Cancelled terminal state unless it
// already reached a terminal state.
func (m *Manager) MarkCancelled(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !job.IsComplete() {
		job.Status = StatusCancelled
	}
}

// UpdateProgress records one conversion result against a job: the
// processed counter always advances, the success or failure tally
// advances with it, and the job completes once every file has been
// processed. Files that failed do not keep a batch from completing.
func (m *Manager) UpdateProgress(job *Job, result task.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.ProcessedFiles++
	if result.Success {
		job.Successful++
	} else {
		job.Failed++
	}
	job.Results = append(job.Results, result)

	if job.ProcessedFiles >= job.TotalFiles && !job.IsComplete() {
		job.Status = StatusCompleted
		slog.Info("job completed", "job", job.ID, "successful", job.Successful, "failed", job.Failed)
	}
}

// FinishIfDrained completes a processing job whose work has fully
// drained. Needed for jobs that produce no tasks at all.
func (m *Manager) FinishIfDrained(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.Status == StatusProcessing && job.ProcessedFiles >= job.TotalFiles {
		job.Status = StatusCompleted
	}
}

// Jobs returns a snapshot of the queue in insertion order.
func (m *Manager) Jobs() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Job, len(m.jobs))
	copy(out, m.jobs)
	return out
}

// QueuedJobs returns jobs still waiting to run.
func (m *Manager) QueuedJobs() []*Job {
	return m.filter(func(j *Job) bool { return j.Status == StatusQueued })
}

// ActiveJobs returns jobs currently scanning or processing.
func (m *Manager) ActiveJobs() []*Job {
	return m.filter(func(j *Job) bool { return j.IsActive() })
}

// CompletedJobs returns jobs in a terminal state.
func (m *Manager) CompletedJobs() []*Job {
	return m.filter(func(j *Job) bool { return j.IsComplete() })
}

func (m *Manager) filter(keep func(*Job) bool) []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for _, j := range m.jobs {
		if keep(j) {
			out = append(out, j)
		}
	}
	return out
}

// Stats aggregates counters across all known jobs.
type Stats struct {
	TotalJobs     int
	QueuedJobs    int
	ActiveJobs    int
	CompletedJobs int

	TotalFiles     int
	ProcessedFiles int
	Successful     int
	Failed         int

	// SuccessRate is successful/processed in [0,1]; 0 when nothing has
	// been processed.
	SuccessRate float64
}

// TotalStats sums progress across every job in the queue.
func (m *Manager) TotalStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	s.TotalJobs = len(m.jobs)
	for _, j := range m.jobs {
		switch {
		case j.Status == StatusQueued:
			s.QueuedJobs++
		case j.IsActive():
			s.ActiveJobs++
		case j.IsComplete():
			s.CompletedJobs++
		}
		s.TotalFiles += j.TotalFiles
		s.ProcessedFiles += j.ProcessedFiles
		s.Successful += j.Successful
		s.Failed += j.Failed
	}
	if s.ProcessedFiles > 0 {
		s.SuccessRate = float64(s.Successful) / float64(s.ProcessedFiles)
	}
	return s
}
