// Package jobs runs admin-triggered maintenance work in the background and
// tracks its outcome in memory. Job history lives for the process lifetime
// only; admin triggers are rare and low-volume.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Job is a snapshot of one background run.
type Job struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	State      State      `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Runner struct {
	log *zap.Logger

	mu   sync.Mutex
	jobs map[string]Job
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{log: log, jobs: make(map[string]Job)}
}

// Start launches fn in the background and returns the new job's id. The
// job runs on its own context: an admin trigger outlives the HTTP request
// that started it.
func (r *Runner) Start(name string, fn func(ctx context.Context) error) string {
	id := uuid.NewString()
	job := Job{ID: id, Name: name, State: StateRunning, StartedAt: time.Now()}
	r.mu.Lock()
	r.jobs[id] = job
	r.mu.Unlock()

	go func() {
		err := fn(context.Background())
		now := time.Now()

		r.mu.Lock()
		job := r.jobs[id]
		job.FinishedAt = &now
		if err != nil {
			job.State = StateFailed
			job.Error = err.Error()
		} else {
			job.State = StateSucceeded
		}
		r.jobs[id] = job
		r.mu.Unlock()

		if err != nil {
			r.log.Error("background job failed",
				zap.String("job", name), zap.String("id", id), zap.Error(err))
			return
		}
		r.log.Info("background job finished",
			zap.String("job", name), zap.String("id", id))
	}()

	return id
}

// Status returns the job snapshot for id.
func (r *Runner) Status(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}
