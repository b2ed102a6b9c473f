package capture

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultRegistrySize is how many jobs a Registry keeps.
const DefaultRegistrySize = 100

// Registry keeps the most recent capture jobs in memory, oldest evicted
// first. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	limit int
	jobs  map[string]Job
	order []string
}

// NewRegistry returns a Registry holding at most size jobs.
func NewRegistry(size int) *Registry {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	return &Registry{limit: size, jobs: make(map[string]Job)}
}

// NewID returns a fresh job id.
func (r *Registry) NewID() string {
	return uuid.NewString()
}

// Record stores or replaces the snapshot for j.ID. Jobs without an id are ignored.
func (r *Registry) Record(j Job) {
	if j.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[j.ID]; !exists {
		r.order = append(r.order, j.ID)
		for len(r.order) > r.limit {
			delete(r.jobs, r.order[0])
			r.order = r.order[1:]
		}
	}
	r.jobs[j.ID] = j
}

// Get returns the latest snapshot for id.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// List returns retained jobs, most recently started last.
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id])
	}
	return out
}

// Active returns the number of retained jobs that have not finished.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, j := range r.jobs {
		if !j.Stage.Terminal() {
			n++
		}
	}
	return n
}
