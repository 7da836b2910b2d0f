package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/quickcall/quickcall/internal/ctxlog"
)

// CommandSpec describes an external command to spawn.
type CommandSpec struct {
	Path string
	Args []string
	Dir  string
	Env  []string // appended to the parent environment
}

// Process is a handle on a spawned long-running command.
type Process interface {
	// Wait blocks until the process exits.
	Wait() error
	// Kill terminates the process. Safe to call after exit.
	Kill() error
}

// Runner abstracts subprocess execution so orchestration can be tested
// without spawning real commands.
type Runner interface {
	// Start launches a long-running command and returns immediately.
	Start(ctx context.Context, spec CommandSpec) (Process, error)
	// Run executes a command to completion and returns its combined output.
	Run(ctx context.Context, spec CommandSpec) (string, error)
}

// ExecRunner runs commands with os/exec, forwarding their output lines to
// the context logger.
type ExecRunner struct{}

// Start implements Runner.
func (ExecRunner) Start(ctx context.Context, spec CommandSpec) (Process, error) {
	logger := ctxlog.FromContext(ctx).With("command", spec.Path)

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout of %s: %w", spec.Path, err)
	}
	cmd.Stderr = cmd.Stdout // interleave, the worker logs to both

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Path, err)
	}
	logger.Info("Worker process started.", "pid", cmd.Process.Pid, "args", spec.Args)

	go forwardOutput(stdout, logger)

	return &execProcess{cmd: cmd}, nil
}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, spec CommandSpec) (string, error) {
	logger := ctxlog.FromContext(ctx).With("command", spec.Path)
	logger.Debug("Running command to completion.", "args", spec.Args)

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if output != "" {
			return output, fmt.Errorf("%s failed: %w: %s", spec.Path, err, output)
		}
		return output, fmt.Errorf("%s failed: %w", spec.Path, err)
	}
	return output, nil
}

// forwardOutput relays each line of the child's output to the logger.
func forwardOutput(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Info("worker: " + scanner.Text())
	}
}

// execProcess adapts *exec.Cmd to the Process interface.
type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	err := p.cmd.Process.Kill()
	if err != nil && strings.Contains(err.Error(), "already finished") {
		return nil
	}
	return err
}
