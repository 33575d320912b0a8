package effector

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vinayprograms/taskforce/internal/protocol"
)

// Exit code reported when a command exceeds its deadline.
const ExitTimeout = 124

// Sandbox runs shell commands inside the workspace directory.
type Sandbox struct {
	dir       string
	timeout   time.Duration
	maxOutput int
}

// NewSandbox returns a sandbox running commands in dir.
func NewSandbox(dir string, timeout time.Duration, maxOutput int) *Sandbox {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if maxOutput <= 0 {
		maxOutput = 100_000
	}
	return &Sandbox{dir: dir, timeout: timeout, maxOutput: maxOutput}
}

// Run executes command via sh -c. Output holds stdout followed by stderr
// lines prefixed with [stderr]; StatusCode is the exit code.
func (s *Sandbox) Run(ctx context.Context, command string) Result {
	if strings.TrimSpace(command) == "" {
		return Fail("command must be a non-empty string")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.dir
	cmd.WaitDelay = time.Second
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	output := s.combine(stdout.String(), stderr.String())
	if err == nil {
		return Result{Success: true, Output: output}
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return Result{
			Output:     output,
			Error:      fmt.Sprintf("command timed out after %.1f seconds", s.timeout.Seconds()),
			StatusCode: ExitTimeout,
		}
	case errors.As(err, &exitErr):
		return Result{
			Output:     output,
			Error:      fmt.Sprintf("command exited with code %d", exitErr.ExitCode()),
			StatusCode: exitErr.ExitCode(),
		}
	default:
		return Result{Output: output, Error: "error executing command: " + err.Error(), StatusCode: 1}
	}
}

func (s *Sandbox) combine(stdout, stderr string) string {
	var parts []string
	if stdout != "" {
		parts = append(parts, strings.TrimRight(stdout, "\n"))
	}
	if stderr != "" {
		for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
			parts = append(parts, "[stderr] "+line)
		}
	}
	output := strings.Join(parts, "\n")
	if len(output) > s.maxOutput {
		output = cutUTF8(output, s.maxOutput) + fmt.Sprintf("\n\n... Output truncated at %d bytes.", s.maxOutput)
	}
	return output
}

// Execute handles EXECUTE.
func (s *Sandbox) Execute(ctx context.Context, a protocol.Action) Result {
	return s.Run(ctx, a.Field("COMMAND"))
}

// Verify handles VERIFY: the check in HOW passes when it exits 0.
func (s *Sandbox) Verify(ctx context.Context, a protocol.Action) Result {
	res := s.Run(ctx, a.Field("HOW"))
	what := a.Field("WHAT")
	if res.Success {
		res.Output = fmt.Sprintf("Verified: %s\n%s", what, res.Output)
		return res
	}
	res.Error = fmt.Sprintf("verification failed: %s (%s)", what, res.Error)
	return res
}

// cutUTF8 returns at most n bytes of s without splitting a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
