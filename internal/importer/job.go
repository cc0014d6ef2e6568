package importer

import (
	"context"
	"sync/atomic"

	"github.com/conorfennell/blunderfix/internal/domain"
)

// JobState is the lifecycle state of an import job.
type JobState string

const (
	JobRunning   JobState = "running"
	JobDone      JobState = "done"
	JobError     JobState = "error"
	JobCancelled JobState = "cancelled"
)

// Progress is an immutable snapshot of a job. A new snapshot is published
// for every change; pollers never see a partially updated one.
type Progress struct {
	JobID         string        `json:"job_id"`
	State         JobState      `json:"state"`
	Source        domain.Source `json:"source"`
	Username      string        `json:"username"`
	Phase         string        `json:"phase"`
	Message       string        `json:"message"`
	Done          int           `json:"done"`
	Total         int           `json:"total"`
	Imported      int           `json:"imported"`
	Skipped       int           `json:"skipped"`
	ArchivesDone  int           `json:"archives_done"`
	ArchivesTotal int           `json:"archives_total"`
	Error         *string       `json:"error"`
}

// Terminal reports whether the job has finished.
func (p Progress) Terminal() bool { return p.State != JobRunning }

// job is written by its own goroutine only and read by any number of pollers.
type job struct {
	progress atomic.Pointer[Progress]
	cancel   context.CancelFunc
	done     chan struct{}
}

func newJob(p Progress, cancel context.CancelFunc) *job {
	j := &job{cancel: cancel, done: make(chan struct{})}
	j.progress.Store(&p)
	return j
}

func (j *job) snapshot() Progress { return *j.progress.Load() }

// update publishes a modified copy of the current snapshot.
func (j *job) update(fn func(p *Progress)) {
	next := j.snapshot()
	fn(&next)
	j.progress.Store(&next)
}
