package harness

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
	"time"
)

// CmdResult holds a build-tool invocation's captured output.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// BuildRunner executes the build tool's test entry point in a project
// directory. Injectable for testing the harness without a real build tool.
type BuildRunner interface {
	Run(ctx context.Context, args []string, dir string) (*CmdResult, error)
}

// GradleRunner implements BuildRunner using os/exec.
type GradleRunner struct {
	Bin string // default "gradle"
}

// Run executes the build tool. A nil result means the subprocess could not
// be launched at all; a non-nil result with an error carries the exit code
// and whatever output was captured, including after a context-driven kill.
func (r *GradleRunner) Run(ctx context.Context, args []string, dir string) (*CmdResult, error) {
	bin := r.Bin
	if bin == "" {
		bin = "gradle"
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir

	// Build tools fork worker processes that inherit the output pipes. On
	// timeout the whole process group must die, or Run stays blocked on the
	// pipe until an orphaned worker exits on its own.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CmdResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, err
	}
	if ctx.Err() != nil {
		// Killed before exec completed; keep partial output.
		result.ExitCode = -1
		return result, err
	}
	// Launch failure: binary missing, permission denied.
	return nil, err
}
