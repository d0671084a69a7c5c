package runner

import (
	"sort"
	"sync"
)

// Registry is the in-memory table of live jobs, owned by one Runner
// instance. It is the only shared mutable state in the runner; every
// access goes through the embedded lock so a listing never observes a
// partially inserted record. Nothing is persisted: a process restart
// loses all job state.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Insert adds a fully constructed job record.
func (r *Registry) Insert(job *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.Name] = job
}

// Get returns the job record for name, if present.
func (r *Registry) Get(name string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	return job, ok
}

// Remove deletes the entry for name and returns the removed record.
func (r *Registry) Remove(name string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[name]
	if ok {
		delete(r.jobs, name)
	}
	return job, ok
}

// List returns a snapshot of all job records ordered by creation time.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreationTimestamp.Equal(jobs[j].CreationTimestamp) {
			return jobs[i].Name < jobs[j].Name
		}
		return jobs[i].CreationTimestamp.Before(jobs[j].CreationTimestamp)
	})
	return jobs
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
