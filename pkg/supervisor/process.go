//go:build linux

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"
	"k8s.io/utils/clock"
)

// Command describes a child process to launch.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string

	// Stdout and Stderr receive the child's output; nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Path, c.Args)
}

// Process is a launched child. A reaper goroutine waits on it, so liveness
// checks never block.
type Process struct {
	name    string
	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}
	exitErr error

	clock  clock.Clock
	logger *slog.Logger
}

type OptionFn func(*Process)

func WithClock(c clock.Clock) OptionFn {
	return func(p *Process) {
		p.clock = c
	}
}

func WithLogger(logger *slog.Logger) OptionFn {
	return func(p *Process) {
		p.logger = logger.With("service", "supervisor")
	}
}

// Launch starts c. Cancelling ctx sends SIGTERM to the child.
func Launch(ctx context.Context, c Command, opts ...OptionFn) (*Process, error) {
	if c.Path == "" {
		return nil, ErrEmptyPath
	}
	p := &Process{
		name:   c.Path,
		done:   make(chan struct{}),
		clock:  clock.RealClock{},
		logger: slog.Default().With("service", "supervisor"),
	}
	for _, opt := range opts {
		opt(p)
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGTERM)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start %s: %w", c.Path, err)
	}
	p.cmd = cmd
	p.started = p.clock.Now()
	p.logger.Debug("process started", "command", c.String(), "pid", cmd.Process.Pid)

	go func() {
		p.exitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// PID returns the process id, 0 if the process was never started.
func (p *Process) PID() int {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Started returns the launch time.
func (p *Process) Started() time.Time { return p.started }

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Alive reports whether the process has not exited yet.
func (p *Process) Alive() bool {
	if p == nil || p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the error from Wait. It is only meaningful after Done is
// closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// ExitCode returns the exit code, -1 while running or when killed by a
// signal.
func (p *Process) ExitCode() int {
	if p.cmd == nil || p.Alive() || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Wait blocks until the process is reaped or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	if p.done == nil {
		return ErrNotStarted
	}
	select {
	case <-p.done:
		return p.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Terminate sends SIGTERM and waits until the process is reaped.
func (p *Process) Terminate() error { return p.signalAndWait(unix.SIGTERM) }

// Interrupt sends SIGINT and waits until the process is reaped.
func (p *Process) Interrupt() error { return p.signalAndWait(unix.SIGINT) }

// Kill sends SIGKILL and waits until the process is reaped.
func (p *Process) Kill() error { return p.signalAndWait(unix.SIGKILL) }

// Stop sends SIGTERM, waits up to grace for the process to exit and then
// kills it.
func (p *Process) Stop(grace time.Duration) error {
	return p.Shutdown(context.Background(), grace)
}

// Shutdown sends SIGTERM and kills the process once grace has passed or ctx
// is done, whichever comes first. It returns after the process is reaped.
func (p *Process) Shutdown(ctx context.Context, grace time.Duration) error {
	if err := p.signal(unix.SIGTERM); err != nil {
		return err
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("shutdown cancelled, killing", "pid", p.PID())
	case <-p.clock.After(grace):
		p.logger.Warn("process ignored SIGTERM, killing", "pid", p.PID(), "grace", grace)
	}
	return p.Kill()
}

func (p *Process) signalAndWait(sig unix.Signal) error {
	if err := p.signal(sig); err != nil {
		return err
	}
	<-p.done
	return nil
}

func (p *Process) signal(sig unix.Signal) error {
	if p.done == nil {
		return ErrNotStarted
	}
	if !p.Alive() {
		return nil
	}
	err := unix.Kill(p.PID(), sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("supervisor: signal %s to %d: %w", unix.SignalName(sig), p.PID(), err)
	}
	p.logger.Debug("signal sent", "pid", p.PID(), "signal", unix.SignalName(sig))
	return nil
}
