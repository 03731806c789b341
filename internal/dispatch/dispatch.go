package dispatch

import (
	"encoding/json"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/protocol"
)

// Status is the outcome of a job.
type Status = protocol.Status

const (
	StatusSuccess = protocol.StatusSuccess
	StatusFailure = protocol.StatusFailure
)

// Result is what a waiting caller receives. A failure carries either the
// compiler's error payload in Data or a bridge error in Err.
type Result struct {
	Status Status
	Data   json.RawMessage
	Err    error
}

// OK reports whether the job succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess && r.Err == nil
}

// Callback receives the result of one job.
type Callback func(Result)

// Dispatcher routes replies to registered callbacks.
type Dispatcher struct {
	registry *job.Registry
	logger   *logging.Logger
	bus      *event.Bus

	mu      sync.Mutex
	pending map[string]Callback
}

// New creates a Dispatcher. When registry is non-nil, every reply also
// removes its job from the registry.
func New(registry *job.Registry, opts ...Option) *Dispatcher {
	cfg := &config{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	return &Dispatcher{
		registry: registry,
		logger:   cfg.logger.WithComponent("dispatcher"),
		bus:      cfg.bus,
		pending:  make(map[string]Callback),
	}
}

// RegisterOnce installs cb for id. Registering an id again replaces the
// previous callback, which will then never run.
func (d *Dispatcher) RegisterOnce(id string, cb Callback) {
	if cb == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.pending[id]; exists {
		d.logger.Debug("replacing callback", "job_id", id)
	}
	d.pending[id] = cb
}

// Unregister removes the callback for id. It reports whether one was present.
func (d *Dispatcher) Unregister(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[id]
	delete(d.pending, id)
	return ok
}

// Await registers a one-shot channel for id. The channel receives exactly one
// Result if the job resolves and is never closed.
func (d *Dispatcher) Await(id string) <-chan Result {
	ch := make(chan Result, 1)
	d.RegisterOnce(id, func(r Result) { ch <- r })
	return ch
}

// OnMessage handles one decoded reply. Unknown ids are not an error.
func (d *Dispatcher) OnMessage(resp protocol.Response) {
	d.mu.Lock()
	cb, ok := d.pending[resp.ID]
	delete(d.pending, resp.ID)
	d.mu.Unlock()

	if d.registry != nil {
		d.registry.Forget(resp.ID)
	}

	if !ok {
		d.logger.Debug("discarding reply with no registered callback",
			"job_id", resp.ID,
			"status", string(resp.Status),
		)
		return
	}

	d.invoke(resp.ID, cb, Result{Status: resp.Status, Data: resp.Result})
	if d.bus != nil {
		d.bus.Publish(event.NewJobResolvedEvent(resp.ID, resp.Success()))
	}
}

// Reject removes the callback for id and invokes it once with a failure
// carrying err. It reports whether a callback was present.
func (d *Dispatcher) Reject(id string, err error) bool {
	d.mu.Lock()
	cb, ok := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()

	if !ok {
		return false
	}
	d.invoke(id, cb, Result{Status: StatusFailure, Err: err})
	return true
}

// RejectAll removes every pending callback and invokes each once with a
// failure carrying err. It returns the number of callbacks rejected.
func (d *Dispatcher) RejectAll(err error) int {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]Callback)
	d.mu.Unlock()

	ids := slices.Sorted(maps.Keys(pending))
	for _, id := range ids {
		d.invoke(id, pending[id], Result{Status: StatusFailure, Err: err})
		if d.registry != nil {
			d.registry.Forget(id)
		}
	}
	if len(ids) > 0 {
		d.logger.Info("rejected pending callbacks", "count", len(ids), "error", err)
	}
	return len(ids)
}

// Pending returns the number of registered callbacks.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// invoke runs cb, logging a panic instead of letting it reach the read loop.
func (d *Dispatcher) invoke(id string, cb Callback, r Result) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("callback panicked",
				"job_id", id,
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(r)
}
