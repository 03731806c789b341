package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/flixbridge/internal/dispatch"
	"github.com/Iron-Ham/flixbridge/internal/errors"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/protocol"
)

// Sender delivers an encoded request. transport.Transport implements it.
type Sender interface {
	Send(ctx context.Context, msg []byte) error
}

// Correlator tracks completion callbacks. dispatch.Dispatcher implements it.
type Correlator interface {
	RegisterOnce(id string, cb dispatch.Callback)
	Unregister(id string) bool
	Reject(id string, err error) bool
}

// Snapshot is a copy of the queued job ids.
type Snapshot struct {
	Priority []string
	Normal   []string
}

// Scheduler is the two-lane, single-worker job queue.
type Scheduler struct {
	registry *job.Registry
	sender   Sender
	cfg      *config
	logger   *logging.Logger

	mu             sync.Mutex
	priority       []string
	normal         []string
	pendingCheck   string                         // queued, not yet dequeued check
	checkCallbacks map[string][]dispatch.Callback // callers joined to a check
	started        bool
	stopped        bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler. registry and sender must be non-nil.
func New(registry *job.Registry, sender Sender, opts ...Option) *Scheduler {
	if registry == nil {
		panic("scheduler: registry must not be nil")
	}
	if sender == nil {
		panic("scheduler: sender must not be nil")
	}

	cfg := &config{
		logger:    logging.NopLogger(),
		fs:        afero.NewOsFs(),
		followUps: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}

	return &Scheduler{
		registry:       registry,
		sender:         sender,
		cfg:            cfg,
		logger:         cfg.logger.WithComponent("scheduler"),
		checkCallbacks: make(map[string][]dispatch.Callback),
		wake:           make(chan struct{}, 1),
	}
}

// Start launches the worker. Jobs enqueued earlier are drained immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler: %w", errors.ErrSessionClosed)
	}
	if s.started {
		return fmt.Errorf("scheduler: already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
	s.signal()
	return nil
}

// Stop terminates the worker and discards jobs that were never sent.
// It waits for an in-flight send to return and is safe to call multiple times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	discarded := len(s.priority) + len(s.normal)
	s.priority = nil
	s.normal = nil
	s.pendingCheck = ""
	s.mu.Unlock()

	if discarded > 0 {
		s.logger.Info("discarded unsent jobs", "count", discarded)
	}
}

// Enqueue registers j, queues it in the lane implied by its kind and wakes
// the worker. It returns the job id.
func (s *Scheduler) Enqueue(j job.Job, opts ...EnqueueOption) (string, error) {
	var eo enqueueConfig
	for _, opt := range opts {
		opt(&eo)
	}
	if eo.callback != nil && s.cfg.correlator == nil {
		return "", fmt.Errorf("scheduler: callback requires a correlator")
	}
	if !j.Kind.Valid() {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidKind, j.Kind)
	}

	var events []event.Event

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return "", fmt.Errorf("scheduler: %w", errors.ErrSessionClosed)
	}

	if j.Kind == job.KindCheck && s.cfg.followUps && s.pendingCheck != "" {
		id := s.pendingCheck
		if eo.callback != nil {
			s.checkCallbacks[id] = append(s.checkCallbacks[id], eo.callback)
		}
		s.mu.Unlock()
		s.logger.Debug("joined pending check", "job_id", id)
		return id, nil
	}

	id, err := s.pushLocked(j, eo.callback)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	events = append(events, event.NewJobEnqueuedEvent(id, j.Kind.String(), j.Lane().String()))

	if j.Kind.ChangesFileSet() && s.cfg.followUps && s.pendingCheck == "" {
		checkID, err := s.pushLocked(job.New(job.KindCheck, nil), nil)
		if err != nil {
			s.logger.Error("failed to schedule follow-up check", "error", err)
		} else {
			events = append(events, event.NewJobEnqueuedEvent(checkID, job.KindCheck.String(), job.LaneNormal.String()))
		}
	}
	s.signal()
	s.mu.Unlock()

	for _, ev := range events {
		s.publish(ev)
	}
	return id, nil
}

// EnqueueFollowUp queues work chained from a completion callback.
func (s *Scheduler) EnqueueFollowUp(j job.Job) (string, error) {
	return s.Enqueue(j)
}

// pushLocked registers j and appends it to its lane. Callers hold s.mu.
func (s *Scheduler) pushLocked(j job.Job, cb dispatch.Callback) (string, error) {
	id, err := s.registry.Register(j)
	if err != nil {
		return "", err
	}

	if j.Kind == job.KindCheck && s.cfg.followUps {
		s.pendingCheck = id
		if cb != nil {
			s.checkCallbacks[id] = append(s.checkCallbacks[id], cb)
		}
		if s.cfg.correlator != nil {
			s.cfg.correlator.RegisterOnce(id, s.fanOut(id))
		}
	} else if cb != nil {
		s.cfg.correlator.RegisterOnce(id, cb)
	}

	if j.Lane() == job.LanePriority {
		s.priority = append(s.priority, id)
	} else {
		s.normal = append(s.normal, id)
	}
	s.logger.Debug("job enqueued", "job_id", id, "kind", j.Kind.String(), "lane", j.Lane().String())
	return id, nil
}

// fanOut delivers a check result to every caller that joined it.
func (s *Scheduler) fanOut(id string) dispatch.Callback {
	return func(r dispatch.Result) {
		s.mu.Lock()
		cbs := s.checkCallbacks[id]
		delete(s.checkCallbacks, id)
		s.mu.Unlock()
		for _, cb := range cbs {
			cb(r)
		}
	}
}

// signal wakes the worker without blocking.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued jobs per lane.
func (s *Scheduler) Pending() (priority, normal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.priority), len(s.normal)
}

// Snapshot returns a copy of the queued ids.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Priority: slices.Clone(s.priority),
		Normal:   slices.Clone(s.normal),
	}
}

// run is the worker loop. It sleeps until Enqueue signals new work, then
// drains both lanes before sleeping again.
func (s *Scheduler) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		s.drain()
	}
}

// drain delivers queued jobs until both lanes are empty.
func (s *Scheduler) drain() {
	for s.ctx.Err() == nil {
		j, ok := s.next()
		if !ok {
			return
		}
		s.deliver(j)
	}
}

// next pops the head of the priority lane, else the normal lane. Ids whose
// job was forgotten while queued are skipped.
func (s *Scheduler) next() (job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		var id string
		switch {
		case len(s.priority) > 0:
			id, s.priority = s.priority[0], s.priority[1:]
		case len(s.normal) > 0:
			id, s.normal = s.normal[0], s.normal[1:]
		default:
			return job.Job{}, false
		}
		if id == s.pendingCheck {
			s.pendingCheck = ""
		}
		if j, ok := s.registry.Lookup(id); ok {
			return j, true
		}
		s.logger.Debug("skipping forgotten job", "job_id", id)
	}
}

// deliver resolves, encodes and sends one job. Jobs whose payload cannot be
// built are dropped and their caller fails. A send that exhausts its retries
// leaves the job registered; only the failure handler and the bus hear of it.
func (s *Scheduler) deliver(j job.Job) {
	log := s.logger.WithJob(j.ID, j.Kind.String())

	payload, err := s.resolvePayload(j)
	if err != nil {
		s.drop(log, j, err)
		return
	}
	msg, err := protocol.EncodeRequest(j.ID, j.Kind.String(), payload)
	if err != nil {
		s.drop(log, j, errors.NewJobError("encode request", err).WithJob(j.ID, j.Kind.String()))
		return
	}

	if err := s.sender.Send(s.ctx, msg); err != nil {
		if s.ctx.Err() != nil {
			return
		}
		log.Warn("delivery failed", "error", err, "retryable", errors.IsRetryable(err))
		s.publish(event.NewJobDeliveryFailedEvent(j.ID, j.Kind.String(), err.Error()))
		if s.cfg.onFailure != nil {
			s.cfg.onFailure(j.ID, err)
		}
		return
	}

	log.Debug("job sent", "bytes", len(msg))
	s.publish(event.NewJobSentEvent(j.ID, j.Kind.String()))
}

// resolvePayload fills in the source text of add-uri jobs that omit it.
func (s *Scheduler) resolvePayload(j job.Job) (json.RawMessage, error) {
	if j.Kind != job.KindAddURI || protocol.HasSource(j.Payload) {
		return j.Payload, nil
	}

	uri := protocol.PayloadURI(j.Payload)
	path, err := uriToPath(uri)
	if err != nil {
		return nil, errors.NewJobError("resolve "+uri, fmt.Errorf("%w: %w", errors.ErrPayloadRead, err)).
			WithJob(j.ID, j.Kind.String())
	}
	src, err := afero.ReadFile(s.cfg.fs, path)
	if err != nil {
		return nil, errors.NewJobError("read "+path, fmt.Errorf("%w: %w", errors.ErrPayloadRead, err)).
			WithJob(j.ID, j.Kind.String())
	}
	return protocol.WithSource(j.Payload, string(src))
}

// drop forgets a job that cannot be sent and fails its caller, if any.
func (s *Scheduler) drop(log *logging.Logger, j job.Job, err error) {
	log.Error("dropping job", "error", err)
	s.registry.Forget(j.ID)
	if s.cfg.correlator != nil {
		s.cfg.correlator.Reject(j.ID, err)
	}
	s.publish(event.NewJobDroppedEvent(j.ID, j.Kind.String(), err.Error()))
}

func (s *Scheduler) publish(ev event.Event) {
	if s.cfg.bus != nil {
		s.cfg.bus.Publish(ev)
	}
}

// uriToPath converts a file:// URI to a local path. Bare paths pass through.
func uriToPath(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("payload has no uri")
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "file":
		return u.Path, nil
	case "":
		return uri, nil
	default:
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
}
