package job

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Iron-Ham/flixbridge/internal/errors"
)

// Registry maps job ids to jobs. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	jobs   map[string]Job
	now    func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// StartAfter makes the first assigned id n+1. A bridge passes the last id of
// the previous session so ids stay unique across restarts.
func StartAfter(n uint64) RegistryOption {
	return func(r *Registry) {
		r.nextID = n
	}
}

// NewRegistry creates an empty registry whose first id is "1" unless
// StartAfter says otherwise.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		jobs: make(map[string]Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register assigns a fresh id to j, stores a copy and returns the id.
// Ids are assigned under the same lock as insertion, so registration order
// equals id order.
func (r *Registry) Register(j Job) (string, error) {
	if !j.Kind.Valid() {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidKind, j.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	j.ID = strconv.FormatUint(r.nextID, 10)
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = r.now()
	}
	j.Payload = slices.Clone(j.Payload)
	r.jobs[j.ID] = j
	return j.ID, nil
}

// Lookup returns the job registered under id.
func (r *Registry) Lookup(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// Forget removes id. Forgetting an unknown id is a no-op.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// LastID returns the most recently assigned id as a number, 0 if none.
func (r *Registry) LastID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextID
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
