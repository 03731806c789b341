package job

import (
	"encoding/json"
	"time"
)

// Job is a single unit of work requested of the compiler.
type Job struct {
	ID         string
	Kind       Kind
	Payload    json.RawMessage // kind-specific JSON object, may be empty
	EnqueuedAt time.Time
}

// New creates an unregistered job.
func New(kind Kind, payload json.RawMessage) Job {
	return Job{Kind: kind, Payload: payload}
}

// Lane returns the lane implied by the job's kind.
func (j Job) Lane() Lane {
	return j.Kind.Lane()
}
