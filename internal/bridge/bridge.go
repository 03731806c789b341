package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/flixbridge/internal/dispatch"
	"github.com/Iron-Ham/flixbridge/internal/errors"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/scheduler"
	"github.com/Iron-Ham/flixbridge/internal/session"
	"github.com/Iron-Ham/flixbridge/internal/transport"
)

// Bridge owns the current compiler session and the result slots of every
// job submitted through it.
type Bridge struct {
	cfg         Config
	logger      *logging.Logger
	bus         *event.Bus
	clock       transport.Clock
	sessionOpts []session.Option
	now         func() time.Time

	// lifeMu serializes Start, Stop, Restart and supervisor restarts.
	lifeMu       sync.Mutex
	startOpts    session.StartOptions
	gen          uint64 // bumped whenever the session is replaced
	restartCount int
	startedAt    time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	restarts chan restartRequest

	mu      sync.Mutex
	sess    *session.Session
	failed  bool
	waiters map[string]*waiter
	files   fileSet
}

type restartRequest struct {
	sessionID string
	reason    string
}

// waiter is the result slot for one id. refs counts the enqueues that
// share it, which is more than one only for coalesced checks.
type waiter struct {
	once   sync.Once
	done   chan struct{}
	result dispatch.Result
	refs   int
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

func (w *waiter) resolve(r dispatch.Result) {
	w.once.Do(func() {
		w.result = r
		close(w.done)
	})
}

// New creates a bridge with no session.
func New(cfg Config, opts ...Option) *Bridge {
	o := &options{
		logger: logging.NopLogger(),
		clock:  transport.RealClock(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}
	if o.clock == nil {
		o.clock = transport.RealClock()
	}

	return &Bridge{
		cfg:         cfg.withDefaults(),
		logger:      o.logger,
		bus:         o.bus,
		clock:       o.clock,
		sessionOpts: o.sessionOpts,
		now:         time.Now,
		restarts:    make(chan restartRequest, 4),
		waiters:     make(map[string]*waiter),
		files:       make(fileSet),
	}
}

// Start launches a session, tearing down any current one first. The
// supervisor goroutine is started on the first call and runs until Stop.
//
// opts.WorkspaceFiles seeds the file set. From then on the bridge tracks it
// through the add and remove jobs it is given, and every replacement session
// starts from the tracked set.
func (b *Bridge) Start(ctx context.Context, opts session.StartOptions) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.cancel == nil {
		b.ctx, b.cancel = context.WithCancel(context.WithoutCancel(ctx))
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.supervise()
		}()
	}

	b.startOpts = opts
	b.mu.Lock()
	b.files = newFileSet(opts.WorkspaceFiles)
	b.mu.Unlock()
	b.resetRestartsLocked()
	return b.startLocked(ctx)
}

// Restart replaces the current session with a fresh one using the storage
// path of the last Start and the tracked file set.
func (b *Bridge) Restart(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.cancel == nil {
		return errors.NewSessionError("restart", errors.ErrNotStarted)
	}
	b.resetRestartsLocked()
	return b.startLocked(ctx)
}

// Stop stops the supervisor and tears down the session. Pending results are
// rejected with ErrSessionClosed. It is safe to call multiple times, and
// Start may be called again afterwards.
func (b *Bridge) Stop() {
	b.lifeMu.Lock()
	cancel := b.cancel
	b.lifeMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	b.wg.Wait()

	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	b.cancel = nil

	b.mu.Lock()
	s := b.sess
	b.mu.Unlock()
	if s != nil {
		s.Stop()
	}
	b.logger.Info("bridge stopped")
}

func (b *Bridge) resetRestartsLocked() {
	b.restartCount = 0
	b.mu.Lock()
	b.failed = false
	b.mu.Unlock()
}

// startLocked replaces the current session. Callers hold lifeMu.
func (b *Bridge) startLocked(ctx context.Context) error {
	b.mu.Lock()
	prev := b.sess
	startOpts := b.startOpts
	startOpts.WorkspaceFiles = b.files.list()
	b.mu.Unlock()

	var lastID uint64
	if prev != nil {
		prev.Stop()
		lastID = prev.Registry().LastID()
	}

	id := uuid.NewString()
	opts := append([]session.Option{
		session.WithLogger(b.logger),
		session.WithEventBus(b.bus),
	}, b.sessionOpts...)
	opts = append(opts,
		session.WithSessionID(id),
		session.WithRegistry(job.NewRegistry(job.StartAfter(lastID))),
		session.WithCrashHandler(func(reason string) { b.requestRestart(id, reason) }),
		session.WithDeliveryFailureHandler(b.deliveryFailed),
	)

	s, err := session.New(b.cfg.Session, opts...)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sess = s
	b.mu.Unlock()
	b.gen++

	if err := s.Start(ctx, startOpts); err != nil {
		return err
	}
	b.startedAt = b.now()
	return nil
}

// requestRestart is the session crash handler. It runs on session
// goroutines and must not block.
func (b *Bridge) requestRestart(sessionID, reason string) {
	select {
	case b.restarts <- restartRequest{sessionID: sessionID, reason: reason}:
	default:
		b.logger.Warn("restart request dropped", "session_id", sessionID, "reason", reason)
	}
}

func (b *Bridge) supervise() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case req := <-b.restarts:
			b.handleCrash(req)
		}
	}
}

// handleCrash tears down the crashed session and starts a replacement,
// backing off between attempts until one succeeds or the budget runs out.
func (b *Bridge) handleCrash(req restartRequest) {
	b.lifeMu.Lock()
	b.mu.Lock()
	s := b.sess
	b.mu.Unlock()
	if s == nil || s.ID() != req.sessionID {
		b.lifeMu.Unlock()
		b.logger.Debug("ignoring crash of replaced session", "session_id", req.sessionID)
		return
	}
	if b.now().Sub(b.startedAt) > b.cfg.ResetWindow {
		b.restartCount = 0
	}
	gen := b.gen
	s.Stop()
	b.lifeMu.Unlock()

	reason := req.reason
	for {
		b.lifeMu.Lock()
		if b.gen != gen {
			b.lifeMu.Unlock()
			return
		}
		b.restartCount++
		attempt := b.restartCount
		if b.cfg.MaxRestarts < 0 || attempt > b.cfg.MaxRestarts {
			b.mu.Lock()
			b.failed = true
			b.mu.Unlock()
			b.lifeMu.Unlock()
			b.logger.Error("compiler restart limit reached",
				"max_restarts", b.cfg.MaxRestarts,
				"reason", reason,
			)
			return
		}
		b.lifeMu.Unlock()

		backoff := CalculateBackoff(attempt, b.cfg.RestartBackoff, b.cfg.MaxBackoff, backoffMultiplier)
		b.logger.Warn("restarting compiler",
			"attempt", attempt,
			"backoff", backoff,
			"reason", reason,
		)
		if b.bus != nil {
			b.bus.Publish(event.NewSessionRestartingEvent(attempt, backoff, reason))
		}

		select {
		case <-b.ctx.Done():
			return
		case <-b.clock.After(backoff):
		}

		b.lifeMu.Lock()
		if b.gen != gen {
			b.lifeMu.Unlock()
			return
		}
		err := b.startLocked(b.ctx)
		gen = b.gen
		b.lifeMu.Unlock()
		if err == nil {
			b.logger.Info("compiler restarted", "attempt", attempt)
			return
		}
		b.logger.Error("compiler restart failed", "attempt", attempt, "error", err)
		reason = err.Error()
	}
}

// active returns the session new jobs go to.
func (b *Bridge) active() (*session.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sess == nil {
		return nil, errors.NewSessionError("enqueue", errors.ErrNotStarted)
	}
	if b.failed {
		return nil, errors.NewSessionError("compiler restart limit reached", errors.ErrSessionClosed).
			WithSessionID(b.sess.ID())
	}
	return b.sess, nil
}

// Enqueue submits a job whose result can be collected with AwaitResult.
// Slots stay until awaited or forgotten.
func (b *Bridge) Enqueue(ctx context.Context, kind job.Kind, payload json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s, err := b.active()
	if err != nil {
		b.track(kind, payload, err)
		return "", err
	}

	w := newWaiter()
	id, err := s.Enqueue(job.New(kind, payload), scheduler.WithCallback(w.resolve))
	b.track(kind, payload, err)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	if existing, ok := b.waiters[id]; ok {
		// Joined a pending check; both callbacks fire with the same result.
		existing.refs++
	} else {
		w.refs = 1
		b.waiters[id] = w
	}
	b.mu.Unlock()
	return id, nil
}

// Notify submits a job whose result nobody waits for.
func (b *Bridge) Notify(ctx context.Context, kind job.Kind, payload json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s, err := b.active()
	if err != nil {
		b.track(kind, payload, err)
		return "", err
	}
	id, err := s.Enqueue(job.New(kind, payload))
	b.track(kind, payload, err)
	return id, err
}

// track records a file membership change. A change rejected only because
// the session is down is still recorded, so the replacement session picks
// it up.
func (b *Bridge) track(kind job.Kind, payload json.RawMessage, err error) {
	if err != nil && !errors.Is(err, errors.ErrSessionClosed) {
		return
	}
	b.mu.Lock()
	b.files.apply(kind, payload)
	b.mu.Unlock()
}

// Files returns the tracked workspace file set as sorted URIs.
func (b *Bridge) Files() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.files.list()
}

// deliveryFailed fails the slot of a job the transport could not send.
// The dispatcher keeps the job's callback, so the slot simply ignores a
// reply that arrives later.
func (b *Bridge) deliveryFailed(id string, err error) {
	b.mu.Lock()
	w, ok := b.waiters[id]
	b.mu.Unlock()
	if !ok {
		return
	}
	b.logger.Warn("job could not be delivered", "job_id", id, "error", err)
	w.resolve(dispatch.Result{Status: dispatch.StatusFailure, Err: err})
}

// AwaitResult blocks until the job resolves or ctx is done. A job resolves
// at most once; awaiting it again returns ErrUnknownCorrelationID. When ctx
// ends first the slot is kept and a later call can still collect it.
//
// A failure reported by the compiler is returned as a Result with
// StatusFailure and a nil error. A non-nil error means the bridge gave up
// on the job.
func (b *Bridge) AwaitResult(ctx context.Context, id string) (dispatch.Result, error) {
	b.mu.Lock()
	w, ok := b.waiters[id]
	b.mu.Unlock()
	if !ok {
		return dispatch.Result{}, errors.NewJobError("await result", errors.ErrUnknownCorrelationID).WithJob(id, "")
	}

	select {
	case <-w.done:
	case <-ctx.Done():
		return dispatch.Result{}, fmt.Errorf("await job %s: %w", id, ctx.Err())
	}

	b.mu.Lock()
	if b.waiters[id] == w {
		w.refs--
		if w.refs <= 0 {
			delete(b.waiters, id)
		}
	}
	b.mu.Unlock()
	return w.result, w.result.Err
}

// Forget releases one caller's claim on the result slot for id. A slot
// shared by joined checks stays until its last caller forgets or collects
// it; only then is the reply discarded. It reports whether a slot existed.
func (b *Bridge) Forget(id string) bool {
	b.mu.Lock()
	w, ok := b.waiters[id]
	if ok {
		w.refs--
		if w.refs > 0 {
			b.mu.Unlock()
			return true
		}
		delete(b.waiters, id)
	}
	s := b.sess
	b.mu.Unlock()

	if s != nil {
		s.Dispatcher().Unregister(id)
	}
	return ok
}

// Request enqueues a job and waits for it, bounded by the configured request
// timeout. On timeout the slot is forgotten.
func (b *Bridge) Request(ctx context.Context, kind job.Kind, payload json.RawMessage) (dispatch.Result, error) {
	id, err := b.Enqueue(ctx, kind, payload)
	if err != nil {
		return dispatch.Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	res, err := b.AwaitResult(ctx, id)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.Forget(id)
	}
	return res, err
}

// Pending returns the number of result slots not yet collected.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.waiters)
}

// Running reports whether the current session is up.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	s := b.sess
	b.mu.Unlock()
	return s != nil && s.Running()
}

// Failed reports whether the supervisor gave up restarting the compiler.
func (b *Bridge) Failed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed
}

// Address returns the endpoint of the current session.
func (b *Bridge) Address() string {
	b.mu.Lock()
	s := b.sess
	b.mu.Unlock()
	if s == nil {
		return ""
	}
	return s.Address()
}

// SessionID returns the id of the current session, empty before Start.
func (b *Bridge) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sess == nil {
		return ""
	}
	return b.sess.ID()
}
