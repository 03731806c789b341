package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FakeCompiler is a WebSocket server standing in for the compiler. It
// records every request and, when auto-reply is on, answers each one with a
// success reply echoing the request tag.
type FakeCompiler struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	received chan []byte

	mu        sync.Mutex
	conns     []*websocket.Conn
	autoReply bool
	failKinds map[string]bool
}

// NewFakeCompiler starts a server that is shut down when the test ends.
func NewFakeCompiler(t *testing.T, autoReply bool) *FakeCompiler {
	t.Helper()
	fc := &FakeCompiler{
		received:  make(chan []byte, 256),
		autoReply: autoReply,
		failKinds: make(map[string]bool),
	}
	fc.srv = httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(fc.Close)
	return fc
}

// URL returns the ws:// endpoint.
func (fc *FakeCompiler) URL() string {
	return "ws" + strings.TrimPrefix(fc.srv.URL, "http")
}

// FailKind makes auto-replies for kind report failure.
func (fc *FakeCompiler) FailKind(kind string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.failKinds[kind] = true
}

// SetAutoReply toggles automatic replies.
func (fc *FakeCompiler) SetAutoReply(on bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.autoReply = on
}

func (fc *FakeCompiler) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := fc.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fc.mu.Lock()
	fc.conns = append(fc.conns, conn)
	fc.mu.Unlock()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fc.received <- msg

		fc.mu.Lock()
		auto := fc.autoReply
		fail := fc.failKinds[gjson.GetBytes(msg, "request").String()]
		fc.mu.Unlock()
		if auto {
			status := "success"
			if fail {
				status = "failure"
			}
			fc.Reply(gjson.GetBytes(msg, "id").String(), status, map[string]string{
				"echo": gjson.GetBytes(msg, "request").String(),
			})
		}
	}
}

// Reply sends a reply for id to every client.
func (fc *FakeCompiler) Reply(id, status string, result any) {
	raw, _ := sjson.Set(`{}`, "id", id)
	raw, _ = sjson.Set(raw, "status", status)
	if result != nil {
		raw, _ = sjson.Set(raw, "result", result)
	}
	fc.WriteRaw(raw)
}

// WriteRaw sends raw to every connected client.
func (fc *FakeCompiler) WriteRaw(raw string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for _, c := range fc.conns {
		_ = c.WriteMessage(websocket.TextMessage, []byte(raw))
	}
}

// Clients returns the number of connections accepted so far and still held.
func (fc *FakeCompiler) Clients() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.conns)
}

// DropClients closes every server-side connection.
func (fc *FakeCompiler) DropClients() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for _, c := range fc.conns {
		_ = c.Close()
	}
	fc.conns = nil
}

// Close drops all clients and stops the server. It is safe to call twice.
func (fc *FakeCompiler) Close() {
	fc.DropClients()
	fc.srv.Close()
}

// Next returns the next request, failing the test after two seconds.
func (fc *FakeCompiler) Next(t *testing.T) []byte {
	t.Helper()
	return Receive(t, fc.received, 2*time.Second)
}

// Drain discards every request received so far.
func (fc *FakeCompiler) Drain() {
	for {
		select {
		case <-fc.received:
		default:
			return
		}
	}
}

// NextRequests returns the "request" tags of the next n requests.
func (fc *FakeCompiler) NextRequests(t *testing.T, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for range n {
		out = append(out, gjson.GetBytes(fc.Next(t), "request").String())
	}
	return out
}

// ListenLine is the line the compiler prints once it accepts connections.
func (fc *FakeCompiler) ListenLine() string {
	return fmt.Sprintf("Listen on %s\n", fc.URL())
}
