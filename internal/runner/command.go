package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
)

// Exit codes the child can use to signal retryable failures.
const (
	exitRateLimited  = 75 // EX_TEMPFAIL
	exitConnectivity = 69 // EX_UNAVAILABLE
)

// CommandRunner invokes an external agent command per request. The
// prompt is written to stdin, the agent name and mode are passed as
// arguments, and stdout is the result: JSON when it parses, raw text
// otherwise.
type CommandRunner struct {
	// Command is the agent executable. Required.
	Command string

	// Shell wraps Command when it contains shell syntax.
	// Defaults to "/bin/sh".
	Shell string

	// Workdir is the working directory for the child process.
	Workdir string
}

// NewCommandRunner creates a CommandRunner with default settings.
func NewCommandRunner(command string) *CommandRunner {
	return &CommandRunner{
		Command: command,
		Shell:   "/bin/sh",
	}
}

// Invoke runs one attempt. When the context deadline expires the
// process group is terminated (SIGTERM, then SIGKILL after 3s) and a
// transient timeout error is returned so the Retrier can decide.
func (r *CommandRunner) Invoke(ctx context.Context, req *Request) (any, error) {
	if r.Command == "" {
		return nil, recerr.New(recerr.CodeUnitConnectivity, "no runner command configured")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	shell := r.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	line := r.Command + " --agent " + shellQuote(req.Agent)
	if req.Mode != "" {
		line += " --mode " + shellQuote(req.Mode)
	}

	// Not CommandContext: cancellation is handled manually so the
	// process group gets SIGTERM before SIGKILL.
	cmd := exec.Command(shell, "-c", line)
	cmd.Stdin = strings.NewReader(req.Prompt)
	if r.Workdir != "" {
		cmd.Dir = r.Workdir
	}
	if len(req.Config) > 0 {
		cfg, err := json.Marshal(req.Config)
		if err != nil {
			return nil, recerr.Wrap(recerr.CodeStepFailed, "encoding agent config", err)
		}
		cmd.Env = append(os.Environ(), "AGENT_CONFIG="+string(cfg))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Process group so the entire tree can be killed
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, recerr.Wrap(recerr.CodeUnitConnectivity, "starting runner command", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
			select {
			case <-done:
			case <-time.After(3 * time.Second):
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
				<-done
			}
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, recerr.UnitTimeout(req.Agent, int(req.Timeout/time.Second))
		}
		return nil, ctx.Err()

	case err := <-done:
		if err != nil {
			exitErr, ok := err.(*exec.ExitError)
			if !ok {
				return nil, recerr.Wrap(recerr.CodeUnitConnectivity, "waiting for runner command", err)
			}
			detail := strings.TrimSpace(stderr.String())
			switch exitErr.ExitCode() {
			case exitRateLimited:
				return nil, recerr.UnitRateLimited(req.Agent, fmt.Errorf("%s", detail))
			case exitConnectivity:
				return nil, recerr.UnitConnectivity(req.Agent, fmt.Errorf("%s", detail))
			}
			return nil, recerr.New(recerr.CodeStepFailed,
				fmt.Sprintf("agent %q exited with code %d", req.Agent, exitErr.ExitCode())).
				WithDetail("stderr", detail)
		}
	}

	return parseOutput(stdout.Bytes()), nil
}

// parseOutput returns the decoded JSON value when stdout is valid JSON,
// otherwise the trimmed raw text.
func parseOutput(out []byte) any {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[' || trimmed[0] == '"') {
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return strings.TrimSuffix(string(out), "\n")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
