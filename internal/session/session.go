package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/flixbridge/internal/dispatch"
	"github.com/Iron-Ham/flixbridge/internal/errors"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/protocol"
	"github.com/Iron-Ham/flixbridge/internal/scheduler"
	"github.com/Iron-Ham/flixbridge/internal/transport"
)

// endpointPattern finds the socket address in the compiler's startup output.
var endpointPattern = regexp.MustCompile(`ws://[^\s'"]+`)

// StartOptions are the per-start inputs.
type StartOptions struct {
	StoragePath    string   // compiler storage directory, holds the jar
	WorkspaceFiles []string // file:// URIs or paths of sources, packages and jars
}

type state int

const (
	stateIdle state = iota
	stateStarting
	stateRunning
	stateStopped
)

// Session is one compiler process plus its transport.
type Session struct {
	id       string
	cfg      Config
	crashRe  *regexp.Regexp
	launcher Launcher
	logger   *logging.Logger
	bus      *event.Bus
	onCrash  func(string)

	registry   *job.Registry
	dispatcher *dispatch.Dispatcher
	transport  *transport.Transport
	scheduler  *scheduler.Scheduler

	mu      sync.Mutex
	state   state
	crashed bool
	address string
	proc    Process
	lock    *Lock
	exited  chan struct{}

	readers conc.WaitGroup
	wg      conc.WaitGroup
}

// New creates an idle session. It fails only on an invalid crash pattern.
func New(cfg Config, opts ...Option) (*Session, error) {
	o := &options{
		logger:   logging.NopLogger(),
		launcher: ExecLauncher{},
		fs:       afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.NopLogger()
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	if o.registry == nil {
		o.registry = job.NewRegistry()
	}

	cfg = cfg.withDefaults()
	crashRe, err := regexp.Compile(cfg.CrashPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid crash pattern %q: %w", cfg.CrashPattern, err)
	}

	logger := o.logger.WithSession(o.sessionID)
	s := &Session{
		id:       o.sessionID,
		cfg:      cfg,
		crashRe:  crashRe,
		launcher: o.launcher,
		logger:   logger.WithComponent("session"),
		bus:      o.bus,
		onCrash:  o.onCrash,
		registry: o.registry,
		exited:   make(chan struct{}),
	}

	s.dispatcher = dispatch.New(s.registry,
		dispatch.WithLogger(logger),
		dispatch.WithEventBus(o.bus),
	)
	topts := append([]transport.Option{
		transport.WithLogger(logger),
		transport.WithEventBus(o.bus),
	}, o.transportOptions...)
	s.transport = transport.New(s.dispatcher.OnMessage, topts...)
	s.scheduler = scheduler.New(s.registry, s.transport,
		scheduler.WithLogger(logger),
		scheduler.WithEventBus(o.bus),
		scheduler.WithCorrelator(s.dispatcher),
		scheduler.WithFs(o.fs),
		scheduler.WithDeliveryFailureHandler(o.onDeliveryFail),
	)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Address returns the compiler endpoint once the session is running.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Running reports whether Start succeeded and Stop has not been called.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// Registry returns the session's job registry.
func (s *Session) Registry() *job.Registry { return s.registry }

// Dispatcher returns the session's reply dispatcher.
func (s *Session) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Scheduler returns the session's job queue.
func (s *Session) Scheduler() *scheduler.Scheduler { return s.scheduler }

// Transport returns the session's transport.
func (s *Session) Transport() *transport.Transport { return s.transport }

// Enqueue submits a job to the session's scheduler.
func (s *Session) Enqueue(j job.Job, opts ...scheduler.EnqueueOption) (string, error) {
	return s.scheduler.Enqueue(j, opts...)
}

// Start launches the compiler and blocks until it is ready or has failed.
// On failure the session is stopped and cannot be started again.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	s.mu.Lock()
	switch s.state {
	case stateStarting, stateRunning:
		s.mu.Unlock()
		return errors.NewSessionError("start", errors.ErrSessionActive).WithSessionID(s.id)
	case stateStopped:
		s.mu.Unlock()
		return errors.NewSessionError("start", errors.ErrSessionClosed).WithSessionID(s.id)
	}
	s.state = stateStarting
	s.mu.Unlock()

	if err := s.start(ctx, opts); err != nil {
		s.Stop()
		return err
	}
	return nil
}

func (s *Session) start(ctx context.Context, opts StartOptions) error {
	storage := opts.StoragePath
	if storage == "" {
		storage = "."
	}

	lock, err := AcquireLock(storage, s.id, s.logger)
	if err != nil {
		return errors.NewSessionError("lock storage", err).WithSessionID(s.id)
	}
	s.mu.Lock()
	s.lock = lock
	s.mu.Unlock()

	jar := s.cfg.Jar
	if !filepath.IsAbs(jar) {
		jar = filepath.Join(storage, jar)
	}
	spec := LaunchSpec{Java: s.cfg.Java, Jar: jar, Port: s.cfg.Port, Dir: storage}

	s.logger.Info("launching compiler", "java", spec.Java, "jar", spec.Jar, "port", spec.Port)
	proc, err := s.launcher.Launch(ctx, spec)
	if err != nil {
		return errors.NewSessionError("launch compiler", fmt.Errorf("%w: %w", errors.ErrSubprocessCrash, err)).
			WithSessionID(s.id)
	}
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	endpoint := make(chan string, 1)
	s.readers.Go(func() { s.scanStdout(proc.Stdout(), endpoint) })
	s.readers.Go(func() { s.scanStderr(proc.Stderr()) })
	s.wg.Go(func() {
		s.readers.Wait()
		err := proc.Wait()
		close(s.exited)
		s.handleExit(err)
	})

	address, err := s.awaitEndpoint(ctx, endpoint)
	if err != nil {
		return err
	}

	if err := s.transport.Open(ctx, address, nil, s.handleTransportClose); err != nil {
		return errors.NewSessionError("open transport", err).WithSessionID(s.id)
	}
	if err := s.scheduler.Start(context.WithoutCancel(ctx)); err != nil {
		return errors.NewSessionError("start scheduler", err).WithSessionID(s.id)
	}

	s.mu.Lock()
	s.state = stateRunning
	s.address = address
	s.mu.Unlock()

	s.logger.Info("session ready", "address", address)
	s.publish(event.NewSessionReadyEvent(s.id, address))

	// An exit during startup was ignored; report it now that we are running.
	select {
	case <-s.exited:
		s.crash("compiler exited during startup")
		return nil
	default:
	}

	s.addWorkspaceFiles(opts.WorkspaceFiles)
	return nil
}

func (s *Session) awaitEndpoint(ctx context.Context, endpoint <-chan string) (string, error) {
	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case address := <-endpoint:
		return address, nil
	case <-s.exited:
		return "", errors.NewSessionError("compiler exited before becoming ready", errors.ErrSubprocessCrash).
			WithSessionID(s.id)
	case <-timer.C:
		return "", errors.NewSessionError(
			fmt.Sprintf("no endpoint after %s", s.cfg.ReadyTimeout),
			fmt.Errorf("%w: %w", errors.ErrSubprocessCrash, errors.ErrReadyTimeout),
		).WithSessionID(s.id)
	case <-ctx.Done():
		return "", errors.NewSessionError("waiting for compiler", ctx.Err()).WithSessionID(s.id)
	}
}

// addWorkspaceFiles queues the add request matching each file's extension.
func (s *Session) addWorkspaceFiles(files []string) {
	added := 0
	for _, f := range files {
		add, _, ok := job.FileKinds(f)
		if !ok {
			s.logger.Debug("skipping workspace file", "file", f)
			continue
		}
		if _, err := s.scheduler.Enqueue(job.New(add, protocol.URIPayload(FileURI(f)))); err != nil {
			s.logger.Warn("failed to queue workspace file", "file", f, "error", err)
			continue
		}
		added++
	}
	s.logger.Info("queued workspace files", "count", added)
}

func (s *Session) scanStdout(r io.Reader, endpoint chan<- string) {
	found := false
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Debug("compiler stdout", "line", line)
		if found {
			continue
		}
		if addr := endpointPattern.FindString(line); addr != "" {
			found = true
			endpoint <- addr
		}
	}
}

func (s *Session) scanStderr(r io.Reader) {
	scanner := newLineScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		s.logger.Warn("compiler stderr", "line", line)
		if s.crashRe.MatchString(line) {
			s.crash("stderr: " + line)
		}
	}
}

const maxLineSize = 1024 * 1024

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

func (s *Session) handleExit(err error) {
	s.logger.Debug("compiler exited", "error", err)
	reason := "compiler exited"
	if err != nil {
		reason = fmt.Sprintf("compiler exited: %v", err)
	}
	s.crash(reason)
}

func (s *Session) handleTransportClose(err error) {
	if err == nil {
		return
	}
	s.crash(fmt.Sprintf("connection lost: %v", err))
}

// crash reports a failure of a running session once.
func (s *Session) crash(reason string) {
	s.mu.Lock()
	if s.state != stateRunning || s.crashed {
		s.mu.Unlock()
		return
	}
	s.crashed = true
	s.mu.Unlock()

	s.logger.Error("compiler crashed", "reason", reason)
	s.publish(event.NewSessionCrashedEvent(s.id, reason))
	if s.onCrash != nil {
		s.onCrash(reason)
	}
}

// Stop tears the session down. It is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == stateStopped {
		s.mu.Unlock()
		return
	}
	s.state = stateStopped
	proc, lock := s.proc, s.lock
	s.mu.Unlock()

	s.scheduler.Stop()
	rejected := s.dispatcher.RejectAll(
		errors.NewSessionError("session stopped", errors.ErrSessionClosed).WithSessionID(s.id),
	)
	if err := s.transport.Close(); err != nil {
		s.logger.Debug("transport close", "error", err)
	}
	if proc != nil {
		if err := proc.Kill(); err != nil {
			s.logger.Debug("kill compiler", "error", err)
		}
		s.wg.Wait()
	}
	if err := lock.Release(); err != nil {
		s.logger.Warn("failed to release storage lock", "error", err)
	}

	s.logger.Info("session stopped", "rejected", rejected)
	s.publish(event.NewSessionStoppedEvent(s.id, rejected))
}

func (s *Session) publish(ev event.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// FileURI returns f as a file:// URI. Values that already carry a scheme are
// returned unchanged.
func FileURI(f string) string {
	if u, err := url.Parse(f); err == nil && u.Scheme != "" {
		return f
	}
	abs, err := filepath.Abs(f)
	if err != nil {
		abs = f
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}
