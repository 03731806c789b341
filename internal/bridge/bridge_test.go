package bridge

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Iron-Ham/flixbridge/internal/dispatch"
	bridgeerrors "github.com/Iron-Ham/flixbridge/internal/errors"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/session"
	"github.com/Iron-Ham/flixbridge/internal/testutil"
	"github.com/Iron-Ham/flixbridge/internal/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeLauncher hands out fake processes that announce the fake compiler.
type fakeLauncher struct {
	announce string

	mu    sync.Mutex
	procs []*testutil.FakeProcess
}

func (l *fakeLauncher) Launch(_ context.Context, _ session.LaunchSpec) (session.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := testutil.NewFakeProcess()
	l.procs = append(l.procs, p)
	go p.Println(l.announce)
	return p, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) proc(i int) *testutil.FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

type harness struct {
	fc       *testutil.FakeCompiler
	launcher *fakeLauncher
	clock    *testutil.FakeClock
	bus      *event.Bus
	storage  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fc := testutil.NewFakeCompiler(t, true)
	return &harness{
		fc:       fc,
		launcher: &fakeLauncher{announce: fc.ListenLine()},
		clock:    testutil.NewFakeClock(),
		bus:      event.NewBus(nil),
		storage:  t.TempDir(),
	}
}

func (h *harness) newBridge(t *testing.T, cfg Config) *Bridge {
	t.Helper()
	b := New(cfg,
		WithEventBus(h.bus),
		WithClock(h.clock),
		WithSessionOptions(
			session.WithLauncher(h.launcher),
			session.WithTransportOptions(transport.WithRetryInterval(10*time.Millisecond)),
		),
	)
	t.Cleanup(b.Stop)
	return b
}

func (h *harness) start(t *testing.T, b *Bridge) {
	t.Helper()
	if err := b.Start(context.Background(), session.StartOptions{StoragePath: h.storage}); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func TestBridge_Request(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	res, err := b.Request(context.Background(), job.KindVersion, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !res.OK() || !strings.Contains(string(res.Data), "api/version") {
		t.Errorf("result = %+v (%s)", res, res.Data)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", b.Pending())
	}
}

func TestBridge_CompilerFailureIsAResult(t *testing.T) {
	h := newHarness(t)
	h.fc.FailKind(string(job.KindHover))
	b := h.newBridge(t, Config{})
	h.start(t, b)

	res, err := b.Request(context.Background(), job.KindHover, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if res.OK() || res.Status != dispatch.StatusFailure {
		t.Errorf("result = %+v, want failure status", res)
	}
}

func TestBridge_AwaitResultResolvesOnce(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	id, err := b.Enqueue(context.Background(), job.KindVersion, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := b.AwaitResult(context.Background(), id); err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if _, err := b.AwaitResult(context.Background(), id); !errors.Is(err, bridgeerrors.ErrUnknownCorrelationID) {
		t.Errorf("second AwaitResult = %v, want ErrUnknownCorrelationID", err)
	}
}

func TestBridge_AwaitResultUnknownID(t *testing.T) {
	b := New(Config{})
	_, err := b.AwaitResult(context.Background(), "404")
	if !errors.Is(err, bridgeerrors.ErrUnknownCorrelationID) {
		t.Errorf("AwaitResult = %v, want ErrUnknownCorrelationID", err)
	}
}

func TestBridge_AwaitTimeoutKeepsSlot(t *testing.T) {
	h := newHarness(t)
	h.fc.SetAutoReply(false)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	id, err := b.Enqueue(context.Background(), job.KindHover, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.fc.Next(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.AwaitResult(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("AwaitResult = %v, want DeadlineExceeded", err)
	}

	h.fc.Reply(id, "success", map[string]string{"late": "yes"})
	res, err := b.AwaitResult(context.Background(), id)
	if err != nil {
		t.Fatalf("AwaitResult after reply: %v", err)
	}
	if !strings.Contains(string(res.Data), "late") {
		t.Errorf("Data = %s", res.Data)
	}
}

func TestBridge_Forget(t *testing.T) {
	h := newHarness(t)
	h.fc.SetAutoReply(false)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	id, err := b.Enqueue(context.Background(), job.KindHover, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.fc.Next(t)

	if !b.Forget(id) {
		t.Error("Forget reported no slot")
	}
	if b.Forget(id) {
		t.Error("second Forget reported a slot")
	}
	// A late reply lands on the unknown-id path.
	h.fc.Reply(id, "success", nil)
	if _, err := b.AwaitResult(context.Background(), id); !errors.Is(err, bridgeerrors.ErrUnknownCorrelationID) {
		t.Errorf("AwaitResult = %v, want ErrUnknownCorrelationID", err)
	}
}

func TestBridge_RequestTimeoutForgets(t *testing.T) {
	h := newHarness(t)
	h.fc.SetAutoReply(false)
	b := h.newBridge(t, Config{RequestTimeout: 20 * time.Millisecond})
	h.start(t, b)

	if _, err := b.Request(context.Background(), job.KindHover, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Request = %v, want DeadlineExceeded", err)
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", b.Pending())
	}
}

func TestBridge_ForgetSharedSlot(t *testing.T) {
	b := New(Config{})
	b.waiters["5"] = &waiter{done: make(chan struct{}), refs: 2}

	if !b.Forget("5") {
		t.Fatal("first Forget reported no slot")
	}
	if b.Pending() != 1 {
		t.Fatalf("Pending = %d, want the slot kept for the other caller", b.Pending())
	}
	if !b.Forget("5") {
		t.Error("second Forget reported no slot")
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", b.Pending())
	}
	if b.Forget("5") {
		t.Error("third Forget reported a slot")
	}
}

func TestBridge_ForgetJoinedCheck(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{})
	h.start(t, b)
	ctx := context.Background()

	// Keep the worker busy so the second check finds the first still queued.
	for attempt := 0; attempt < 5; attempt++ {
		for i := 0; i < 200; i++ {
			if _, err := b.Notify(ctx, job.KindHover, nil); err != nil {
				t.Fatalf("Notify: %v", err)
			}
		}
		first, err := b.Enqueue(ctx, job.KindCheck, nil)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		second, err := b.Enqueue(ctx, job.KindCheck, nil)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}

		if first != second {
			for _, id := range []string{first, second} {
				if _, err := b.AwaitResult(ctx, id); err != nil {
					t.Fatalf("AwaitResult(%s): %v", id, err)
				}
			}
			h.fc.Drain()
			continue
		}

		if !b.Forget(first) {
			t.Fatal("Forget reported no slot")
		}
		res, err := b.AwaitResult(ctx, first)
		if err != nil {
			t.Fatalf("AwaitResult after the other caller forgot: %v", err)
		}
		if !strings.Contains(string(res.Data), string(job.KindCheck)) {
			t.Errorf("Data = %s", res.Data)
		}
		if b.Pending() != 0 {
			t.Errorf("Pending = %d, want 0", b.Pending())
		}
		return
	}
	t.Skip("checks never coalesced")
}

func TestBridge_DeliveryFailureFailsWaiter(t *testing.T) {
	h := newHarness(t)
	h.fc.SetAutoReply(false)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	id, err := b.Enqueue(context.Background(), job.KindHover, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.fc.Next(t)

	b.deliveryFailed(id, bridgeerrors.NewTransportError("send", bridgeerrors.ErrTransportNotReady).WithAttempts(4))

	res, err := b.AwaitResult(context.Background(), id)
	if !errors.Is(err, bridgeerrors.ErrTransportNotReady) {
		t.Fatalf("AwaitResult = %v, want ErrTransportNotReady", err)
	}
	if res.Status != dispatch.StatusFailure {
		t.Errorf("Status = %v, want failure", res.Status)
	}

	// The reply still reaches the dispatcher and is dropped by the resolved slot.
	b.mu.Lock()
	d := b.sess.Dispatcher()
	b.mu.Unlock()
	h.fc.Reply(id, "success", nil)
	testutil.Eventually(t, 2*time.Second, func() bool { return d.Pending() == 0 }, "late reply consumed")
	if b.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", b.Pending())
	}
}

func TestBridge_Notify(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	id, err := b.Notify(context.Background(), job.KindVersion, nil)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if id == "" {
		t.Error("Notify returned empty id")
	}
	if b.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", b.Pending())
	}
}

func TestBridge_NotStarted(t *testing.T) {
	b := New(Config{})
	ctx := context.Background()

	if _, err := b.Enqueue(ctx, job.KindCheck, nil); !errors.Is(err, bridgeerrors.ErrNotStarted) {
		t.Errorf("Enqueue = %v, want ErrNotStarted", err)
	}
	if _, err := b.Notify(ctx, job.KindCheck, nil); !errors.Is(err, bridgeerrors.ErrNotStarted) {
		t.Errorf("Notify = %v, want ErrNotStarted", err)
	}
	if err := b.Restart(ctx); !errors.Is(err, bridgeerrors.ErrNotStarted) {
		t.Errorf("Restart = %v, want ErrNotStarted", err)
	}
	b.Stop()
}

func TestBridge_EnqueueCanceledContext(t *testing.T) {
	b := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Enqueue(ctx, job.KindCheck, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Enqueue = %v, want Canceled", err)
	}
}

func TestBridge_StopRejectsPending(t *testing.T) {
	h := newHarness(t)
	h.fc.SetAutoReply(false)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	id, err := b.Enqueue(context.Background(), job.KindHover, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.fc.Next(t)

	b.Stop()
	b.Stop()

	res, err := b.AwaitResult(context.Background(), id)
	if !errors.Is(err, bridgeerrors.ErrSessionClosed) || res.OK() {
		t.Errorf("AwaitResult = %+v, %v; want ErrSessionClosed", res, err)
	}
	if b.Running() {
		t.Error("Running after Stop")
	}
}

func TestBridge_RestartKeepsIDsIncreasing(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	first, err := b.Enqueue(context.Background(), job.KindVersion, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	oldSession := b.SessionID()

	if err := b.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if b.SessionID() == oldSession {
		t.Error("Restart kept the old session")
	}
	if h.launcher.count() != 2 {
		t.Errorf("launches = %d, want 2", h.launcher.count())
	}

	second, err := b.Enqueue(context.Background(), job.KindVersion, nil)
	if err != nil {
		t.Fatalf("Enqueue after restart: %v", err)
	}
	if mustAtoi(t, second) <= mustAtoi(t, first) {
		t.Errorf("id after restart = %s, want greater than %s", second, first)
	}
}

func TestBridge_CrashRestartsWithBackoff(t *testing.T) {
	h := newHarness(t)
	h.fc.SetAutoReply(false)

	restarting := make(chan event.SessionRestartingEvent, 4)
	h.bus.Subscribe(event.TypeSessionRestarting, func(e event.Event) {
		restarting <- e.(event.SessionRestartingEvent)
	})

	b := h.newBridge(t, Config{RestartBackoff: time.Second})
	h.start(t, b)

	id, err := b.Enqueue(context.Background(), job.KindHover, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.fc.Next(t)
	crashed := b.SessionID()

	h.launcher.proc(0).Exit(errors.New("exit status 1"))

	ev := testutil.Receive(t, restarting, 2*time.Second)
	if ev.Attempt != 1 || ev.Backoff != time.Second {
		t.Errorf("restarting event = %+v, want attempt 1 after 1s", ev)
	}
	if _, err := b.AwaitResult(context.Background(), id); !errors.Is(err, bridgeerrors.ErrSessionClosed) {
		t.Errorf("pending job = %v, want ErrSessionClosed", err)
	}

	h.clock.BlockUntil(t, 1)
	if h.launcher.count() != 1 {
		t.Fatalf("restarted before backoff elapsed")
	}
	h.clock.Advance(time.Second)

	testutil.Eventually(t, 2*time.Second, func() bool {
		return b.Running() && b.SessionID() != crashed
	}, "replacement session running")
	if h.launcher.count() != 2 {
		t.Errorf("launches = %d, want 2", h.launcher.count())
	}
}

func TestBridge_RestartLimit(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{MaxRestarts: 1})
	h.start(t, b)

	h.launcher.proc(0).Exit(errors.New("exit status 1"))
	h.clock.BlockUntil(t, 1)
	h.clock.Advance(time.Second)
	testutil.Eventually(t, 2*time.Second, func() bool {
		return h.launcher.count() == 2 && b.Running()
	}, "first restart")

	h.launcher.proc(1).Exit(errors.New("exit status 1"))
	testutil.Eventually(t, 2*time.Second, b.Failed, "supervisor gave up")

	if _, err := b.Enqueue(context.Background(), job.KindCheck, nil); !errors.Is(err, bridgeerrors.ErrSessionClosed) {
		t.Errorf("Enqueue = %v, want ErrSessionClosed", err)
	}

	// A manual restart clears the failure.
	if err := b.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if b.Failed() {
		t.Error("Failed after manual Restart")
	}
}

func TestBridge_RestartsDisabled(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{MaxRestarts: -1})
	h.start(t, b)

	h.launcher.proc(0).Exit(errors.New("exit status 1"))
	testutil.Eventually(t, 2*time.Second, b.Failed, "supervisor gave up")
	if h.launcher.count() != 1 {
		t.Errorf("launches = %d, want 1", h.launcher.count())
	}
}

func TestBridge_StaleCrashIgnored(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	b.handleCrash(restartRequest{sessionID: "replaced", reason: "old"})

	if !b.Running() {
		t.Error("stale crash stopped the current session")
	}
	if h.launcher.count() != 1 {
		t.Errorf("launches = %d, want 1", h.launcher.count())
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.attempt), func(t *testing.T) {
			if got := CalculateBackoff(tt.attempt, time.Second, 30*time.Second, 2); got != tt.want {
				t.Errorf("CalculateBackoff(%d) = %s, want %s", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %s", cfg.RequestTimeout)
	}
	if cfg.MaxRestarts != DefaultMaxRestarts {
		t.Errorf("MaxRestarts = %d", cfg.MaxRestarts)
	}

	cfg = Config{MaxRestarts: -1, RestartBackoff: time.Minute, MaxBackoff: time.Second}.withDefaults()
	if cfg.MaxRestarts != -1 {
		t.Errorf("MaxRestarts = %d, want -1 kept", cfg.MaxRestarts)
	}
	if cfg.MaxBackoff != time.Minute {
		t.Errorf("MaxBackoff = %s, want raised to RestartBackoff", cfg.MaxBackoff)
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	if err != nil {
		t.Fatalf("id %q is not numeric: %v", s, err)
	}
	return n
}
