// Package subprocess runs external tools (ffmpeg, whisper, command-line TTS
// engines) with stdin wired up before start and a per-call timeout.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrTimeout is returned when a process outlives its deadline.
var ErrTimeout = errors.New("subprocess timed out")

// DefaultTimeout applies when neither the runner nor the call sets one.
const DefaultTimeout = 5 * time.Minute

// Options describes a single invocation.
type Options struct {
	// Command is the binary to execute.
	Command string

	// Args are the command arguments.
	Args []string

	// Input is written to stdin. Empty means no stdin.
	Input string

	// Timeout overrides the runner default.
	Timeout time.Duration

	// Env is appended to the inherited environment.
	Env []string
}

// Runner executes subprocesses. A serialized runner allows only one process
// at a time, for tools that are not safe to run concurrently.
type Runner struct {
	mu        sync.Mutex
	serialize bool

	defaultTimeout time.Duration
}

// NewRunner creates a runner with the given default timeout.
func NewRunner(timeout time.Duration, serialize bool) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		serialize:      serialize,
		defaultTimeout: timeout,
	}
}

// Run executes the command and returns its stdout.
func (r *Runner) Run(ctx context.Context, opts Options) ([]byte, error) {
	if r.serialize {
		r.mu.Lock()
		defer r.mu.Unlock()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)

	// stdin must be in place before Start.
	if opts.Input != "" {
		cmd.Stdin = strings.NewReader(opts.Input)
	}
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Command, err)
	}
	err := cmd.Wait()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v: %s", ErrTimeout, timeout, opts.Command)
		}
		return nil, fmt.Errorf("subprocess cancelled: %w", ctx.Err())
	}

	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s failed: %w\nstderr: %s", opts.Command, err, tail(msg, 2048))
		}
		return nil, fmt.Errorf("%s failed: %w", opts.Command, err)
	}

	return stdout.Bytes(), nil
}

// Execute runs name with args and no stdin.
func (r *Runner) Execute(ctx context.Context, name string, args ...string) ([]byte, error) {
	return r.Run(ctx, Options{Command: name, Args: args})
}

// ExecuteWithStdin runs name with args, feeding input on stdin.
func (r *Runner) ExecuteWithStdin(ctx context.Context, input, name string, args ...string) ([]byte, error) {
	return r.Run(ctx, Options{Command: name, Args: args, Input: input})
}

// CheckBinary checks if a binary exists in the system PATH.
func CheckBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("binary '%s' not found in PATH: %w", name, err)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
