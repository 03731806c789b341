package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Iron-Ham/flixbridge/internal/errors"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/protocol"
)

// State is the connection state.
type State int32

// Connection states. A transport starts closed, moves to opening when a dial
// begins and to open once the socket is up. Close and read errors return it
// to closed.
const (
	// StateClosed means no socket exists. Send fails fast with
	// ErrTransportNotReady.
	StateClosed State = iota
	// StateOpening means a dial is in progress. A second Open is rejected.
	StateOpening
	// StateOpen means the socket is up and the read loop is running.
	StateOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MessageHandler receives every decoded reply. It runs on the read loop
// goroutine and must not call Close.
type MessageHandler func(protocol.Response)

const closeGracePeriod = time.Second

// Transport is the WebSocket connection to the compiler.
type Transport struct {
	handler MessageHandler
	cfg     *config
	logger  *logging.Logger
	dialer  *websocket.Dialer

	state atomic.Int32
	sent  atomic.Uint64

	mu       sync.Mutex // guards the fields below and state transitions
	conn     *websocket.Conn
	address  string
	readDone chan struct{}
	onClose  func(error)

	writeMu sync.Mutex
}

// New creates a closed Transport. handler may be nil, in which case inbound
// messages are decoded and discarded.
func New(handler MessageHandler, opts ...Option) *Transport {
	cfg := newConfig(opts)
	return &Transport{
		handler: handler,
		cfg:     cfg,
		logger:  cfg.logger.WithComponent("transport"),
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.dialTimeout},
	}
}

// State returns the current connection state.
func (t *Transport) State() State { return State(t.state.Load()) }

// IsOpen reports whether the socket is open.
func (t *Transport) IsOpen() bool { return t.State() == StateOpen }

// IsClosed reports whether the socket is not open.
func (t *Transport) IsClosed() bool { return !t.IsOpen() }

// Sent returns the number of messages written since creation.
func (t *Transport) Sent() uint64 { return t.sent.Load() }

// Address returns the address of the current or last connection.
func (t *Transport) Address() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.address
}

// Open dials address and starts the read loop. onOpen runs on its own
// goroutine once the socket is open. onClose runs on its own goroutine when
// the connection ends, with nil after a local Close and the cause otherwise,
// including a failed dial. Either callback may be nil.
func (t *Transport) Open(ctx context.Context, address string, onOpen func(), onClose func(error)) error {
	t.mu.Lock()
	if t.State() != StateClosed {
		state := t.State()
		t.mu.Unlock()
		return fmt.Errorf("transport: cannot open while %s", state)
	}
	t.state.Store(int32(StateOpening))
	t.address = address
	t.onClose = onClose
	t.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.dialTimeout)
	conn, _, err := t.dialer.DialContext(dialCtx, address, nil)
	cancel()
	if err != nil {
		t.mu.Lock()
		if t.State() == StateOpening {
			t.state.Store(int32(StateClosed))
		}
		t.onClose = nil
		t.mu.Unlock()

		t.logger.Warn("dial failed", "address", address, "error", err)
		t.publishClosed(address, err)
		if onClose != nil {
			go onClose(err)
		}
		return errors.NewTransportError("open", err).WithAddress(address)
	}

	t.mu.Lock()
	if t.State() != StateOpening {
		// Close ran while we were dialing.
		t.mu.Unlock()
		_ = conn.Close()
		return errors.NewTransportError("open", errors.ErrTransportClosed).WithAddress(address)
	}
	done := make(chan struct{})
	t.conn = conn
	t.readDone = done
	t.state.Store(int32(StateOpen))
	t.mu.Unlock()

	go t.readLoop(conn, done)

	t.logger.Info("transport opened", "address", address)
	if t.cfg.bus != nil {
		t.cfg.bus.Publish(event.NewTransportOpenedEvent(address))
	}
	if onOpen != nil {
		go onOpen()
	}
	return nil
}

// Close releases the socket. It is safe to call at any time and more than
// once; the transport is Closed afterwards.
func (t *Transport) Close() error {
	return t.shutdown(nil)
}

// shutdown closes the current connection and reports cause to onClose.
func (t *Transport) shutdown(cause error) error {
	t.mu.Lock()
	conn, done, onClose, address := t.conn, t.readDone, t.onClose, t.address
	t.conn = nil
	t.readDone = nil
	t.onClose = nil
	t.state.Store(int32(StateClosed))
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	t.writeMu.Unlock()

	err := conn.Close()
	<-done

	t.logger.Info("transport closed", "address", address, "sent", t.Sent())
	t.publishClosed(address, cause)
	if onClose != nil {
		go onClose(cause)
	}
	return err
}

// Send writes msg, retrying while the socket is not open. It makes one
// attempt plus up to MaxRetries retries, each preceded by RetryInterval, and
// then fails with a TransportError wrapping errors.ErrTransportNotReady.
// A write error on an open socket closes the transport.
func (t *Transport) Send(ctx context.Context, msg []byte) error {
	for attempt := 1; ; attempt++ {
		if t.IsOpen() {
			err := t.write(msg)
			if err == nil {
				t.sent.Add(1)
				return nil
			}
			t.logger.Warn("write failed, closing transport", "attempt", attempt, "error", err)
			_ = t.shutdown(err)
		}

		if attempt > t.cfg.maxRetries {
			t.logger.Warn("transport not ready, giving up", "attempts", attempt)
			return errors.NewTransportError("send", errors.ErrTransportNotReady).
				WithAddress(t.Address()).
				WithAttempts(attempt)
		}

		t.logger.Debug("transport not ready, retrying",
			"attempt", attempt,
			"retry_interval", t.cfg.retryInterval.String(),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.cfg.clock.After(t.cfg.retryInterval):
		}
	}
}

// write sends one text frame. Frames are serialized by writeMu.
func (t *Transport) write(msg []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// readLoop decodes inbound text frames until the connection fails. Binary
// frames are skipped and undecodable ones are logged and dropped.
func (t *Transport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			t.handleDisconnect(conn, err)
			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		resp, err := protocol.DecodeResponse(data)
		if err != nil {
			t.logger.Warn("dropping undecodable message", "error", err, "bytes", len(data))
			continue
		}
		if t.handler != nil {
			t.handler(resp)
		}
	}
}

// handleDisconnect runs on the read loop when the peer goes away. A
// connection already released by shutdown is ignored.
func (t *Transport) handleDisconnect(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	onClose, address := t.onClose, t.address
	t.conn = nil
	t.readDone = nil
	t.onClose = nil
	t.state.Store(int32(StateClosed))
	t.mu.Unlock()

	_ = conn.Close()
	t.logger.Warn("connection lost", "address", address, "error", cause)
	t.publishClosed(address, cause)
	if onClose != nil {
		go onClose(cause)
	}
}

func (t *Transport) publishClosed(address string, cause error) {
	if t.cfg.bus == nil {
		return
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	t.cfg.bus.Publish(event.NewTransportClosedEvent(address, msg))
}
