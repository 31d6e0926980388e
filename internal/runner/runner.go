// Package runner executes and tracks pollable background jobs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/beastmp/job-tracking/internal/metrics"
	"github.com/beastmp/job-tracking/internal/model"
)

// ErrJobNotFound is returned when a job id is unknown or the job has
// aged out of the retention window.
var ErrJobNotFound = errors.New("job not found")

// gcInterval is how often terminal jobs are checked against the
// retention window.
const gcInterval = 30 * time.Second

// Task is the body of a background job. It receives a context that is
// cancelled when the job is cancelled or the runner shuts down, and a
// reporter for progress updates. The returned value becomes the job's
// result; a returned error fails the job.
type Task func(ctx context.Context, rep *Reporter) (any, error)

type jobEntry struct {
	job    model.BackgroundJob
	cancel context.CancelFunc
}

// Runner owns the lifecycle of every background job: it starts them,
// records their progress, catches their failures, and garbage-collects
// them after a retention window once terminal. Jobs run concurrently
// and unbounded; serialization concerns belong to the task bodies.
type Runner struct {
	retention time.Duration
	log       zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*jobEntry

	wg      sync.WaitGroup
	stopCh  chan struct{}
	running bool
}

// New creates a runner that keeps terminal jobs visible for the given
// retention window.
func New(retention time.Duration, log zerolog.Logger) *Runner {
	return &Runner{
		retention: retention,
		log:       log,
		jobs:      make(map[string]*jobEntry),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the garbage-collection loop.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go r.janitor()
}

// Stop cancels all running jobs and waits for them to finish, or until
// ctx expires.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		close(r.stopCh)
		r.running = false
	}
	for _, entry := range r.jobs {
		if !entry.job.Status.Terminal() {
			entry.cancel()
		}
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create enqueues a job of the given type and returns its id without
// waiting on the task.
func (r *Runner) Create(jobType model.JobType, task Task) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	entry := &jobEntry{
		job: model.BackgroundJob{
			ID:        id,
			Type:      jobType,
			Status:    model.JobQueued,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}

	r.mu.Lock()
	r.jobs[id] = entry
	r.mu.Unlock()

	metrics.JobsStarted.WithLabelValues(string(jobType)).Inc()
	r.log.Info().
		Str("job_id", id).
		Str("type", string(jobType)).
		Msg("background job created")

	r.wg.Add(1)
	go r.run(ctx, id, task)

	return id
}

// GetStatus returns a snapshot of the job, or ErrJobNotFound.
func (r *Runner) GetStatus(id string) (model.BackgroundJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[id]
	if !ok {
		return model.BackgroundJob{}, ErrJobNotFound
	}
	return entry.job, nil
}

// ListActive returns queued and processing jobs plus terminal jobs still
// inside the retention window, ordered by start time.
func (r *Runner) ListActive() []model.BackgroundJob {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	jobs := make([]model.BackgroundJob, 0, len(r.jobs))
	for _, entry := range r.jobs {
		if entry.job.Status.Terminal() && entry.job.EndedAt.Before(cutoff) {
			continue
		}
		jobs = append(jobs, entry.job)
	}
	r.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.Before(jobs[j].StartedAt)
	})
	return jobs
}

// Cancel requests a best-effort stop. A queued job fails immediately; a
// processing job is signaled through its context and fails at its next
// checkpoint. Cancelling a terminal job is a no-op.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}

	switch entry.job.Status {
	case model.JobQueued:
		entry.cancel()
		r.finishLocked(entry, nil, errors.New("job cancelled"))
	case model.JobProcessing:
		entry.cancel()
	}

	return nil
}

// run drives one job from queued to a terminal state. Panics in the
// task are caught here so a failed task can never take the runner down.
func (r *Runner) run(ctx context.Context, id string, task Task) {
	defer r.wg.Done()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("job_id", id).
				Interface("panic", rec).
				Msg("background job panicked")
			r.finish(id, nil, fmt.Errorf("internal error: %v", rec))
		}
	}()

	if !r.markProcessing(id) {
		// Cancelled while still queued.
		return
	}

	result, err := task(ctx, &Reporter{runner: r, jobID: id})
	r.finish(id, result, err)
}

// markProcessing moves a queued job to processing. It reports false when
// the job is already terminal.
func (r *Runner) markProcessing(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[id]
	if !ok || entry.job.Status != model.JobQueued {
		return false
	}

	entry.job.Status = model.JobProcessing
	return true
}

// finish moves a job to completed or failed. A job already terminal is
// left untouched.
func (r *Runner) finish(id string, result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[id]
	if !ok {
		return
	}
	r.finishLocked(entry, result, err)
}

func (r *Runner) finishLocked(entry *jobEntry, result any, err error) {
	if entry.job.Status.Terminal() {
		return
	}

	now := time.Now().UTC()
	entry.job.EndedAt = &now

	if err != nil {
		entry.job.Status = model.JobFailed
		entry.job.Error = err.Error()
	} else {
		entry.job.Status = model.JobCompleted
		entry.job.Progress = 100
		entry.job.Result = result
	}
	entry.cancel()

	jobType := string(entry.job.Type)
	metrics.JobsFinished.WithLabelValues(jobType, string(entry.job.Status)).Inc()
	metrics.JobDuration.WithLabelValues(jobType).
		Observe(now.Sub(entry.job.StartedAt).Seconds())

	evt := r.log.Info()
	if err != nil {
		evt = r.log.Warn().Err(err)
	}
	evt.Str("job_id", entry.job.ID).
		Str("type", jobType).
		Str("status", string(entry.job.Status)).
		Msg("background job finished")
}

// setProgress applies a progress update. Progress never decreases and
// only moves while the job is processing.
func (r *Runner) setProgress(id string, progress int, message string) {
	if progress > 100 {
		progress = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.jobs[id]
	if !ok || entry.job.Status != model.JobProcessing {
		return
	}

	if progress > entry.job.Progress {
		entry.job.Progress = progress
	}
	if message != "" {
		entry.job.Message = message
	}
}

// janitor drops terminal jobs once they age past the retention window.
func (r *Runner) janitor() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *Runner) collect() {
	cutoff := time.Now().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, entry := range r.jobs {
		if entry.job.Status.Terminal() && entry.job.EndedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

// Reporter publishes progress for one running job. Task bodies hold the
// only references; progress from a finished job is discarded.
type Reporter struct {
	runner *Runner
	jobID  string
}

// Progress records the current completion percentage and step
// description.
func (rep *Reporter) Progress(progress int, message string) {
	rep.runner.setProgress(rep.jobID, progress, message)
}
