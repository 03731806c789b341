package testutil

import (
	"errors"
	"io"
	"sync"
)

// ErrKilled is returned by FakeProcess.Wait after Kill.
var ErrKilled = errors.New("signal: killed")

// FakeProcess is a scripted compiler process. Tests write to its stdout and
// stderr and decide when it exits. It satisfies session.Process.
type FakeProcess struct {
	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	once   sync.Once
	exited chan struct{}
	err    error

	mu     sync.Mutex
	killed bool
}

// NewFakeProcess returns a running process.
func NewFakeProcess() *FakeProcess {
	p := &FakeProcess{exited: make(chan struct{})}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	return p
}

func (p *FakeProcess) Stdout() io.Reader { return p.stdoutR }
func (p *FakeProcess) Stderr() io.Reader { return p.stderrR }

// Println writes a line to stdout. It blocks until the line is read.
func (p *FakeProcess) Println(line string) {
	_, _ = io.WriteString(p.stdoutW, line+"\n")
}

// Eprintln writes a line to stderr. It blocks until the line is read.
func (p *FakeProcess) Eprintln(line string) {
	_, _ = io.WriteString(p.stderrW, line+"\n")
}

// Exit terminates the process with err.
func (p *FakeProcess) Exit(err error) {
	p.once.Do(func() {
		p.err = err
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		close(p.exited)
	})
}

// Kill terminates the process as if signalled.
func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(ErrKilled)
	return nil
}

// Killed reports whether Kill was called.
func (p *FakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Wait blocks until the process exits.
func (p *FakeProcess) Wait() error {
	<-p.exited
	return p.err
}

// Exited returns a channel closed when the process exits.
func (p *FakeProcess) Exited() <-chan struct{} { return p.exited }
