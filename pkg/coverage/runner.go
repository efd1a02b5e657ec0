package coverage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrToolTimeout indicates an external tool invocation exceeded its deadline.
var ErrToolTimeout = errors.New("coverage tool timed out")

// Default deadlines for external tool invocations. Report parsing steps are
// quick; install and test runs can take minutes.
const (
	DefaultReportTimeout = 30 * time.Second
	DefaultTestTimeout   = 5 * time.Minute
	DefaultSetupTimeout  = 10 * time.Minute
)

// Timeouts bounds the three kinds of external invocations a toolchain makes.
// Zero fields fall back to the package defaults.
type Timeouts struct {
	// Report bounds quick report-generation steps.
	Report time.Duration

	// Test bounds test-suite executions.
	Test time.Duration

	// Setup bounds dependency installs and full builds.
	Setup time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Report <= 0 {
		t.Report = DefaultReportTimeout
	}

	if t.Test <= 0 {
		t.Test = DefaultTestTimeout
	}

	if t.Setup <= 0 {
		t.Setup = DefaultSetupTimeout
	}

	return t
}

// CommandRunner executes one external command with a working directory and a
// hard deadline. Implementations must kill the process on expiry rather than
// let it hang.
type CommandRunner interface {
	Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec with context cancellation.
type ExecRunner struct{}

// Run executes name with args in dir, returning combined stdout and stderr.
// A non-zero exit or a deadline expiry is returned as an error along with
// whatever output was produced.
func (ExecRunner) Run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir

	var buf bytes.Buffer

	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return buf.Bytes(), fmt.Errorf("%w: %s after %s", ErrToolTimeout, name, timeout)
		}

		return buf.Bytes(), fmt.Errorf("run %s: %w", name, err)
	}

	return buf.Bytes(), nil
}
