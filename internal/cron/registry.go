package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one loyalty maintenance task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// entry pairs a job with its cadence and the time it last started.
type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds jobs and decides which are due.
type Registry struct {
	entries []*entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register schedules job to run every interval. Names must be unique since
// they key the job's lock and metrics.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}
	for _, e := range r.entries {
		if e.job.Name() == job.Name() {
			return fmt.Errorf("job %s already registered", job.Name())
		}
	}
	r.entries = append(r.entries, &entry{job: job, every: every})
	return nil
}

// Due returns the entries whose interval has elapsed at now, in registration
// order. Jobs that never ran are always due.
func (r *Registry) Due(now time.Time) []*entry {
	var due []*entry
	for _, e := range r.entries {
		if e.lastRun.IsZero() || !now.Before(e.lastRun.Add(e.every)) {
			due = append(due, e)
		}
	}
	return due
}

// Names lists registered job names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.job.Name())
	}
	return names
}
