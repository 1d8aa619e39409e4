package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// errCommandTimeout marks a tool run killed by its own deadline while the
// caller was still waiting. Such runs are retried as transient failures.
var errCommandTimeout = errors.New("command timed out")

type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution so executors can be tested
// without the external tools installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

type execRunner struct {
	limiter cpuLimiter
}

// NewExecRunner runs processes directly. When cpuShares is non-zero and the
// host supports it, children are placed in a cgroup with that cpu share.
func NewExecRunner(cpuShares uint64) CommandRunner {
	return &execRunner{limiter: newCPULimiter(cpuShares)}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Start()
	if err == nil {
		r.limiter.add(cmd.Process.Pid)
		err = cmd.Wait()
	}
	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// runWithTimeout runs name with a deadline of timeout on top of ctx.
func runWithTimeout(ctx context.Context, runner CommandRunner, timeout time.Duration, name string, args ...string) (CommandResult, error) {
	if timeout <= 0 {
		return runner.Run(ctx, name, args...)
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := runner.Run(runCtx, name, args...)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%s: %w after %s", name, errCommandTimeout, timeout)
	}
	return res, err
}

// lastLines keeps the tail of noisy tool output for error details.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
