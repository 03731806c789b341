package session

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

// LaunchSpec describes how to start the compiler.
type LaunchSpec struct {
	Java string // java executable
	Jar  string // path to the compiler jar
	Port int    // port for the language server socket
	Dir  string // working directory
}

// Args returns the command line arguments passed to Java.
func (s LaunchSpec) Args() []string {
	return []string{"-jar", s.Jar, "--lsp", strconv.Itoa(s.Port)}
}

// Process is a running compiler.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits. Callers finish reading Stdout and
	// Stderr first.
	Wait() error
	Kill() error
}

// Launcher starts compiler processes.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher starts the compiler with os/exec.
type ExecLauncher struct{}

// Launch starts "java -jar <jar> --lsp <port>". The process outlives ctx;
// it ends only through Kill or by exiting on its own.
func (ExecLauncher) Launch(_ context.Context, spec LaunchSpec) (Process, error) {
	cmd := exec.Command(spec.Java, spec.Args()...)
	cmd.Dir = spec.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Java, err)
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
