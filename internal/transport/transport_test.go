package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	bridgeerrors "github.com/Iron-Ham/flixbridge/internal/errors"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/protocol"
	"github.com/Iron-Ham/flixbridge/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	return testutil.Receive(t, ch, 2*time.Second)
}

func TestTransport_OpenSendReceive(t *testing.T) {
	fc := testutil.NewFakeCompiler(t, true)

	replies := make(chan protocol.Response, 1)
	tr := New(func(r protocol.Response) { replies <- r })
	defer tr.Close()

	opened := make(chan struct{}, 1)
	if err := tr.Open(context.Background(), fc.URL(), func() { opened <- struct{}{} }, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, opened)

	if !tr.IsOpen() || tr.IsClosed() {
		t.Fatalf("state = %v, want open", tr.State())
	}

	msg, _ := protocol.EncodeRequest("1", "lsp/check", nil)
	if err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := string(fc.Next(t)); got != string(msg) {
		t.Errorf("server received %s, want %s", got, msg)
	}

	resp := waitFor(t, replies)
	if resp.ID != "1" || !resp.Success() {
		t.Errorf("reply = %+v", resp)
	}
	if tr.Sent() != 1 {
		t.Errorf("Sent = %d, want 1", tr.Sent())
	}
}

func TestTransport_CloseIdempotent(t *testing.T) {
	fc := testutil.NewFakeCompiler(t, false)

	closed := make(chan error, 2)
	tr := New(nil)
	if err := tr.Open(context.Background(), fc.URL(), nil, func(err error) { closed <- err }); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if !tr.IsClosed() || tr.State() != StateClosed {
		t.Errorf("state = %v, want closed", tr.State())
	}

	if err := waitFor(t, closed); err != nil {
		t.Errorf("onClose after local Close = %v, want nil", err)
	}
	select {
	case <-closed:
		t.Error("onClose fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransport_CloseWhenNeverOpened(t *testing.T) {
	tr := New(nil)
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if tr.State() != StateClosed {
		t.Errorf("state = %v", tr.State())
	}
}

func TestTransport_OpenTwiceFails(t *testing.T) {
	fc := testutil.NewFakeCompiler(t, false)
	tr := New(nil)
	defer tr.Close()

	if err := tr.Open(context.Background(), fc.URL(), nil, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tr.Open(context.Background(), fc.URL(), nil, nil); err == nil {
		t.Error("second Open should fail while open")
	}
}

func TestTransport_DialFailure(t *testing.T) {
	fc := testutil.NewFakeCompiler(t, false)
	url := fc.URL()
	fc.Close()

	closed := make(chan error, 1)
	tr := New(nil, WithDialTimeout(500*time.Millisecond))
	err := tr.Open(context.Background(), url, nil, func(err error) { closed <- err })
	if err == nil {
		t.Fatal("Open should fail against a stopped server")
	}
	var te *bridgeerrors.TransportError
	if !errors.As(err, &te) || te.Op != "open" {
		t.Errorf("err = %v, want TransportError{Op: open}", err)
	}
	if tr.State() != StateClosed {
		t.Errorf("state = %v, want closed", tr.State())
	}
	if waitFor(t, closed) == nil {
		t.Error("onClose should receive the dial error")
	}
}

func TestTransport_SendRetryBound(t *testing.T) {
	clock := testutil.NewFakeClock()
	tr := New(nil, WithClock(clock), WithMaxRetries(3), WithRetryInterval(time.Second))

	result := make(chan error, 1)
	go func() {
		result <- tr.Send(context.Background(), []byte(`{"id":"1"}`))
	}()

	for i := range 3 {
		clock.BlockUntil(t, 1)
		select {
		case err := <-result:
			t.Fatalf("Send returned after %d intervals: %v", i, err)
		default:
		}
		clock.Advance(time.Second)
	}

	err := waitFor(t, result)
	if !errors.Is(err, bridgeerrors.ErrTransportNotReady) {
		t.Fatalf("err = %v, want ErrTransportNotReady", err)
	}
	var te *bridgeerrors.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *TransportError", err)
	}
	if te.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4 (one try plus three retries)", te.Attempts)
	}
	if tr.Sent() != 0 {
		t.Errorf("Sent = %d, want 0", tr.Sent())
	}
}

func TestTransport_SendZeroRetries(t *testing.T) {
	tr := New(nil, WithClock(testutil.NewFakeClock()), WithMaxRetries(0))
	err := tr.Send(context.Background(), []byte(`{}`))
	if !errors.Is(err, bridgeerrors.ErrTransportNotReady) {
		t.Errorf("err = %v, want ErrTransportNotReady", err)
	}
}

func TestTransport_SendSucceedsOnceOpened(t *testing.T) {
	fc := testutil.NewFakeCompiler(t, false)
	clock := testutil.NewFakeClock()
	tr := New(nil, WithClock(clock))
	defer tr.Close()

	result := make(chan error, 1)
	go func() {
		result <- tr.Send(context.Background(), []byte(`{"id":"9","request":"lsp/check"}`))
	}()

	clock.BlockUntil(t, 1)
	if err := tr.Open(context.Background(), fc.URL(), nil, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	clock.Advance(time.Second)

	if err := waitFor(t, result); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := string(fc.Next(t)); got != `{"id":"9","request":"lsp/check"}` {
		t.Errorf("server received %s", got)
	}
}

func TestTransport_SendHonorsContext(t *testing.T) {
	tr := New(nil, WithClock(testutil.NewFakeClock()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tr.Send(ctx, []byte(`{}`)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTransport_DropsUndecodableMessages(t *testing.T) {
	fc := testutil.NewFakeCompiler(t, false)

	replies := make(chan protocol.Response, 4)
	tr := New(func(r protocol.Response) { replies <- r })
	defer tr.Close()

	opened := make(chan struct{}, 1)
	if err := tr.Open(context.Background(), fc.URL(), func() { opened <- struct{}{} }, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	waitFor(t, opened)

	// The server learns about the client on upgrade; send once it is registered.
	if err := tr.Send(context.Background(), []byte(`{"id":"0","request":"api/version"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	fc.Next(t)

	fc.WriteRaw(`not json`)
	fc.WriteRaw(`{"id":"2","status":"weird"}`)
	fc.WriteRaw(`{"id":"3","status":"failure","result":"bad"}`)

	resp := waitFor(t, replies)
	if resp.ID != "3" || resp.Status != protocol.StatusFailure {
		t.Errorf("reply = %+v, want id 3 failure", resp)
	}
	if !tr.IsOpen() {
		t.Error("decode failures must not close the transport")
	}
}

func TestTransport_PeerDisconnect(t *testing.T) {
	fc := testutil.NewFakeCompiler(t, false)
	bus := event.NewBus(nil)
	events := make(chan event.Event, 4)
	bus.Subscribe(event.TypeTransportClosed, func(e event.Event) { events <- e })

	closed := make(chan error, 1)
	tr := New(nil, WithEventBus(bus))
	defer tr.Close()

	if err := tr.Open(context.Background(), fc.URL(), nil, func(err error) { closed <- err }); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tr.Send(context.Background(), []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	fc.Next(t)

	fc.DropClients()

	if waitFor(t, closed) == nil {
		t.Error("onClose should carry the read error")
	}
	ev := waitFor(t, events).(event.TransportClosedEvent)
	if ev.Error == "" {
		t.Error("transport.closed event should carry the error")
	}
	if tr.State() != StateClosed {
		t.Errorf("state = %v, want closed", tr.State())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:  "closed",
		StateOpening: "opening",
		StateOpen:    "open",
		State(9):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
