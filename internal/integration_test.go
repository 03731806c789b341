// Package internal contains integration tests that verify the bridge, the
// workspace watcher and the event bus work together against a compiler.
package internal

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Iron-Ham/flixbridge/internal/bridge"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/session"
	"github.com/Iron-Ham/flixbridge/internal/testutil"
	"github.com/Iron-Ham/flixbridge/internal/transport"
	"github.com/Iron-Ham/flixbridge/internal/watcher"
)

type launcher struct{ announce string }

func (l launcher) Launch(_ context.Context, _ session.LaunchSpec) (session.Process, error) {
	p := testutil.NewFakeProcess()
	go p.Println(l.announce)
	return p, nil
}

type recorder struct {
	mu    sync.Mutex
	types []string
}

func (r *recorder) record(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.EventType())
}

func (r *recorder) seen(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.types, eventType)
}

// TestWorkspaceToCompiler follows files from disk to the compiler: the
// initial scan, a change picked up by the watcher, then a check.
func TestWorkspaceToCompiler(t *testing.T) {
	fc := testutil.NewFakeCompiler(t, true)
	workspace := testutil.SetupWorkspace(t, map[string]string{
		"Main.flix":   "def main(): Unit = ()",
		"lib/dep.jar": "jar",
	})

	bus := event.NewBus(nil)
	rec := &recorder{}
	bus.SubscribeAll(rec.record)

	b := bridge.New(bridge.Config{},
		bridge.WithEventBus(bus),
		bridge.WithSessionOptions(
			session.WithLauncher(launcher{announce: fc.ListenLine()}),
			session.WithTransportOptions(transport.WithRetryInterval(10*time.Millisecond)),
		),
	)
	defer b.Stop()

	ctx := context.Background()
	files, err := watcher.Discover(ctx, []string{workspace})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if err := b.Start(ctx, session.StartOptions{StoragePath: t.TempDir(), WorkspaceFiles: files}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	initial := fc.NextRequests(t, 3)
	if !slices.Equal(initial, []string{"api/addUri", "api/addJar", "lsp/check"}) {
		t.Errorf("initial requests = %v", initial)
	}

	w, err := watcher.New(workspace, b, watcher.WithDebounce(10*time.Millisecond), watcher.WithEventBus(bus))
	if err != nil {
		t.Fatalf("watcher.New: %v", err)
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("watcher.Start: %v", err)
	}

	path := testutil.WriteFile(t, workspace, "src/Util.flix", "def f(): Int32 = 1")
	msg := fc.Next(t)
	if gjson.GetBytes(msg, "request").String() != "api/addUri" ||
		gjson.GetBytes(msg, "uri").String() != session.FileURI(path) {
		t.Errorf("watcher request = %s", msg)
	}

	res, err := b.Request(ctx, job.KindCheck, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !res.OK() || gjson.GetBytes(res.Data, "echo").String() != "lsp/check" {
		t.Errorf("result = %+v", res)
	}

	for _, typ := range []string{event.TypeSessionReady, event.TypeJobSent, event.TypeJobResolved, event.TypeWorkspaceChanged} {
		testutil.Eventually(t, 2*time.Second, func() bool { return rec.seen(typ) }, "event "+typ)
	}
}
