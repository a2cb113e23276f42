package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
)

// Sentinel errors for the adapter failure model. Subprocess failures carry
// exit code and stderr through *Error instead.
var (
	// ErrSourceMissing reports that the source video path does not exist.
	ErrSourceMissing = errors.New("ffmpeg: source file missing")
	// ErrNotProbable reports that ffprobe produced no usable duration.
	ErrNotProbable = errors.New("ffmpeg: stream not probable")
	// ErrParseFailed reports unparseable tool output.
	ErrParseFailed = errors.New("ffmpeg: parse failed")
)

// Runner executes ffmpeg and ffprobe subprocesses. All launches wait for a
// slot in a bounded pool so that at most Concurrency renders run at once;
// callers suspend only at the subprocess boundary.
type Runner struct {
	Bin      string
	ProbeBin string

	sem   chan struct{}
	inUse atomic.Int64
}

// NewRunner returns a Runner bounded to the given concurrency. Zero or
// negative means unbounded (used by tests).
func NewRunner(concurrency int) *Runner {
	r := &Runner{Bin: "ffmpeg", ProbeBin: "ffprobe"}
	if concurrency > 0 {
		r.sem = make(chan struct{}, concurrency)
	}
	return r
}

// InUse reports the number of currently running subprocesses.
func (r *Runner) InUse() int {
	return int(r.inUse.Load())
}

func (r *Runner) acquire(ctx context.Context) error {
	if r.sem == nil {
		r.inUse.Add(1)
		return nil
	}
	select {
	case r.sem <- struct{}{}:
		r.inUse.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) release() {
	r.inUse.Add(-1)
	if r.sem != nil {
		<-r.sem
	}
}

// Process represents a running subprocess with lifecycle management.
type Process struct {
	cmd      *exec.Cmd
	pid      int
	done     chan struct{}
	err      error
	stderr   bytes.Buffer
	progress chan<- Progress
	release  func()
}

// PID returns the process ID, or 0 if not started.
func (p *Process) PID() int {
	return p.pid
}

// Wait blocks until the process completes and returns any error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Kill sends SIGKILL to the process.
func (p *Process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Done returns a channel that closes when the process exits.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Stderr returns the captured stderr output (complete after Wait).
func (p *Process) Stderr() string {
	return p.stderr.String()
}

// Start launches a subprocess under the runner's pool and returns a Process
// handle. The pool slot is held until the process exits. The caller must
// Wait() or Kill() to clean up.
func (r *Runner) Start(ctx context.Context, bin string, args []string, progress chan<- Progress) (*Process, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	p := &Process{
		cmd:      cmd,
		done:     make(chan struct{}),
		progress: progress,
		release:  r.release,
	}
	cmd.Stderr = &p.stderr

	var stdout *bufio.Scanner
	if progress != nil {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			r.release()
			return nil, fmt.Errorf("ffmpeg: failed to create stdout pipe: %w", err)
		}
		stdout = bufio.NewScanner(pipe)
	}

	if err := cmd.Start(); err != nil {
		r.release()
		return nil, fmt.Errorf("%s: failed to start: %w", bin, err)
	}
	p.pid = cmd.Process.Pid

	go func() {
		defer close(p.done)
		defer p.release()

		if stdout != nil {
			ParseProgressOutput(stdout, progress)
		}

		p.err = cmd.Wait()
		if p.err != nil {
			p.err = &Error{
				Bin:    bin,
				Args:   args,
				Stderr: p.stderr.String(),
				Err:    p.err,
			}
		}
		if progress != nil {
			close(progress)
		}
	}()

	return p, nil
}

// run executes ffmpeg and waits for completion. A progress channel is closed
// even when the process never launches, so report consumers always drain.
func (r *Runner) run(ctx context.Context, args []string, progress chan<- Progress) error {
	proc, err := r.Start(ctx, r.Bin, args, progress)
	if err != nil {
		if progress != nil {
			close(progress)
		}
		return err
	}
	return proc.Wait()
}

// runCaptureOutput executes a subprocess with stdout captured, for tools that
// emit a payload (ffprobe JSON) rather than writing files.
func (r *Runner) runCaptureOutput(ctx context.Context, bin string, args []string) ([]byte, error) {
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.release()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &Error{
			Bin:    bin,
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// Error represents a subprocess failure with exit code and stderr context.
type Error struct {
	Bin    string
	Args   []string
	Stderr string
	Err    error
}

// Error implements error, quoting the last few stderr lines.
func (e *Error) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	var lastLines string
	if len(lines) > 3 {
		lastLines = strings.Join(lines[len(lines)-3:], "\n")
	} else {
		lastLines = strings.Join(lines, "\n")
	}

	if lastLines != "" {
		return fmt.Sprintf("%s: %v: %s", e.bin(), e.Err, lastLines)
	}
	return fmt.Sprintf("%s: %v", e.bin(), e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode returns the subprocess exit code, or -1 when it did not run.
func (e *Error) ExitCode() int {
	var exit *exec.ExitError
	if errors.As(e.Err, &exit) {
		return exit.ExitCode()
	}
	return -1
}

// FullStderr returns the complete stderr output.
func (e *Error) FullStderr() string {
	return e.Stderr
}

// Command returns the command line that was executed.
func (e *Error) Command() string {
	return e.bin() + " " + strings.Join(e.Args, " ")
}

func (e *Error) bin() string {
	if e.Bin != "" {
		return e.Bin
	}
	return "ffmpeg"
}

// statSource maps a missing input path to ErrSourceMissing before any
// subprocess is launched.
func statSource(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return err
	}
	return nil
}
