package bridge

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	bridgeerrors "github.com/Iron-Ham/flixbridge/internal/errors"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/protocol"
	"github.com/Iron-Ham/flixbridge/internal/session"
	"github.com/Iron-Ham/flixbridge/internal/testutil"
)

func TestFileSet(t *testing.T) {
	fs := newFileSet([]string{"/ws/a.flix", "file:///ws/lib.jar", "/ws/README.md"})
	want := []string{"file:///ws/a.flix", "file:///ws/lib.jar"}
	if got := fs.list(); !slices.Equal(got, want) {
		t.Fatalf("list = %v, want %v", got, want)
	}

	fs.apply(job.KindAddPkg, protocol.URIPayload("file:///ws/dep.fpkg"))
	fs.apply(job.KindRemURI, protocol.URIPayload("file:///ws/a.flix"))
	fs.apply(job.KindHover, protocol.URIPayload("file:///ws/b.flix"))
	fs.apply(job.KindAddURI, nil)

	want = []string{"file:///ws/dep.fpkg", "file:///ws/lib.jar"}
	if got := fs.list(); !slices.Equal(got, want) {
		t.Errorf("list = %v, want %v", got, want)
	}
}

// awaitFileRequest reads the next request and checks its tag and uri.
func awaitFileRequest(t *testing.T, fc *testutil.FakeCompiler, kind job.Kind, uri string) {
	t.Helper()
	msg := fc.Next(t)
	if gjson.GetBytes(msg, "request").String() != string(kind) || gjson.GetBytes(msg, "uri").String() != uri {
		t.Fatalf("request = %s, want %s for %s", msg, kind, uri)
	}
}

func TestBridge_CrashRestartUsesTrackedFiles(t *testing.T) {
	h := newHarness(t)
	ws := testutil.SetupWorkspace(t, map[string]string{
		"a.flix": "def a(): Int32 = 1",
		"b.flix": "def b(): Int32 = 2",
	})
	aURI := session.FileURI(filepath.Join(ws, "a.flix"))
	bURI := session.FileURI(filepath.Join(ws, "b.flix"))

	b := h.newBridge(t, Config{})
	ctx := context.Background()
	if err := b.Start(ctx, session.StartOptions{
		StoragePath:    h.storage,
		WorkspaceFiles: []string{filepath.Join(ws, "a.flix")},
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := b.Notify(ctx, job.KindAddURI, protocol.URIPayload(bURI)); err != nil {
		t.Fatalf("Notify add: %v", err)
	}
	if _, err := b.Notify(ctx, job.KindRemURI, protocol.URIPayload(aURI)); err != nil {
		t.Fatalf("Notify remove: %v", err)
	}
	// The reply to a later normal-lane job means every file change was sent.
	if _, err := b.Request(ctx, job.KindVersion, nil); err != nil {
		t.Fatalf("Request: %v", err)
	}
	h.fc.Drain()

	if got := b.Files(); !slices.Equal(got, []string{bURI}) {
		t.Fatalf("Files = %v, want [%s]", got, bURI)
	}

	crashed := b.SessionID()
	h.launcher.proc(0).Exit(errors.New("exit status 1"))
	h.clock.BlockUntil(t, 1)
	h.clock.Advance(time.Second)
	testutil.Eventually(t, 2*time.Second, func() bool {
		return b.Running() && b.SessionID() != crashed
	}, "replacement session running")

	awaitFileRequest(t, h.fc, job.KindAddURI, bURI)
	if got := gjson.GetBytes(h.fc.Next(t), "request").String(); got != string(job.KindCheck) {
		t.Errorf("request after file set = %s, want %s", got, job.KindCheck)
	}
}

func TestBridge_ChangesWhileFailedReachManualRestart(t *testing.T) {
	h := newHarness(t)
	ws := testutil.SetupWorkspace(t, map[string]string{"c.flix": "def c(): Int32 = 3"})
	cURI := session.FileURI(filepath.Join(ws, "c.flix"))

	b := h.newBridge(t, Config{MaxRestarts: -1})
	h.start(t, b)

	h.launcher.proc(0).Exit(errors.New("exit status 1"))
	testutil.Eventually(t, 2*time.Second, b.Failed, "supervisor gave up")

	ctx := context.Background()
	if _, err := b.Notify(ctx, job.KindAddURI, protocol.URIPayload(cURI)); !errors.Is(err, bridgeerrors.ErrSessionClosed) {
		t.Fatalf("Notify = %v, want ErrSessionClosed", err)
	}
	if got := b.Files(); !slices.Equal(got, []string{cURI}) {
		t.Fatalf("Files = %v, want [%s]", got, cURI)
	}

	h.fc.Drain()
	if err := b.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	awaitFileRequest(t, h.fc, job.KindAddURI, cURI)
}

func TestBridge_StartResetsTrackedFiles(t *testing.T) {
	h := newHarness(t)
	b := h.newBridge(t, Config{})
	h.start(t, b)

	ctx := context.Background()
	if _, err := b.Notify(ctx, job.KindAddJar, protocol.URIPayload("file:///missing/lib.jar")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(b.Files()) != 1 {
		t.Fatalf("Files = %v, want one jar", b.Files())
	}

	h.start(t, b)
	if len(b.Files()) != 0 {
		t.Errorf("Files after Start = %v, want empty", b.Files())
	}
}
