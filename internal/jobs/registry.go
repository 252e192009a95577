package jobs

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/subhasta/internal/common"
	"github.com/ternarybob/subhasta/internal/models"
)

// Registry is the in-memory job table. All reads hand out deep clones so
// callers can never mutate registry state behind the lock, and all writes
// go through Update so the terminal-state and progress invariants hold in
// one place.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*models.Job
	order  []string
	logger arbor.ILogger

	// invoked after every successful mutation, outside the lock
	notify func()
}

func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		jobs:   make(map[string]*models.Job),
		order:  make([]string, 0),
		logger: logger,
	}
}

// SetNotify installs a hook invoked after every successful mutation
// (create, update, delete). Used to push live status to subscribers.
func (r *Registry) SetNotify(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = fn
}

func (r *Registry) notifyChange() {
	r.mu.RLock()
	fn := r.notify
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Create registers a new pending job for the given source. Options are
// merged over the source defaults into a fresh map. Unknown sources
// return models.ErrInvalidSource.
func (r *Registry) Create(source models.SourceType, options map[string]interface{}) (*models.Job, error) {
	merged, err := models.MergeOptions(source, options)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()

	id := common.NewJobID()
	for r.jobs[id] != nil {
		id = common.NewJobID()
	}

	job := &models.Job{
		ID:        id,
		Source:    source,
		Status:    models.JobStatusPending,
		Message:   "Job queued",
		Options:   merged,
		Progress:  0,
		StartedAt: time.Now().UTC(),
	}

	r.jobs[id] = job
	r.order = append(r.order, id)
	clone := job.Clone()
	r.mu.Unlock()

	r.logger.Info().
		Str("job_id", id).
		Str("source", string(source)).
		Msg("Job created")

	r.notifyChange()
	return clone, nil
}

// Get returns a clone of the job, or models.ErrNotFound.
func (r *Registry) Get(id string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return job.Clone(), nil
}

// List returns clones of all jobs in creation order.
func (r *Registry) List() []*models.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Job, 0, len(r.order))
	for _, id := range r.order {
		if job, ok := r.jobs[id]; ok {
			out = append(out, job.Clone())
		}
	}
	return out
}

// Update applies fn to the stored job under the write lock and returns
// the resulting clone. Jobs already in a terminal state are frozen: the
// mutation is skipped and the stored state returned unchanged. Progress
// never moves backwards.
func (r *Registry) Update(id string, fn func(*models.Job)) (*models.Job, error) {
	r.mu.Lock()

	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return nil, models.ErrNotFound
	}

	if job.IsTerminal() {
		clone := job.Clone()
		r.mu.Unlock()
		r.logger.Debug().
			Str("job_id", id).
			Str("status", string(job.Status)).
			Msg("Ignoring update to terminal job")
		return clone, nil
	}

	prevProgress := job.Progress
	fn(job)
	if job.Progress < prevProgress {
		job.Progress = prevProgress
	}
	if job.Progress > 100 {
		job.Progress = 100
	}

	clone := job.Clone()
	r.mu.Unlock()

	r.notifyChange()
	return clone, nil
}

// Delete removes the job from the registry, terminal or not. The caller
// is responsible for cleaning up any stored results.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()

	if _, ok := r.jobs[id]; !ok {
		r.mu.Unlock()
		return models.ErrNotFound
	}
	delete(r.jobs, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Info().Str("job_id", id).Msg("Job deleted")
	r.notifyChange()
	return nil
}

// Count returns the number of registered jobs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
