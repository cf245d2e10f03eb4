package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"
)

const defaultCommandTimeout = 2 * time.Minute

// ExecuteCommandTool runs a shell command in the workspace. Stdout and
// stderr are combined into the result payload. A non-zero exit is a
// success-with-error-payload: the tool ran, the command failed.
type ExecuteCommandTool struct {
	workspace string
	restrict  bool
	timeout   time.Duration
}

func NewExecuteCommandTool(workspace string, restrict bool) *ExecuteCommandTool {
	return &ExecuteCommandTool{workspace: workspace, restrict: restrict, timeout: defaultCommandTimeout}
}

func (t *ExecuteCommandTool) Name() string        { return "execute_command" }
func (t *ExecuteCommandTool) Description() string { return "Execute a shell command and return its combined output" }
func (t *ExecuteCommandTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Working directory (defaults to the workspace root)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]any) *Result {
	command, _ := args["command"].(string)
	workingDir, _ := args["working_dir"].(string)

	dir := t.workspace
	if workingDir != "" {
		resolved, err := resolvePath(workingDir, t.workspace, t.restrict)
		if err != nil {
			return ErrorResult(OutcomePermissionDenied, err.Error())
		}
		dir = resolved
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = filepath.Clean(dir)

	output, err := cmd.CombinedOutput()

	if ctx.Err() == context.DeadlineExceeded {
		return ErrorResultf(OutcomeTimeout, "command timed out after %s\n%s", t.timeout, output).WithError(ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return NewResult(fmt.Sprintf("exit status %d\n%s", exitErr.ExitCode(), output))
	}
	if err != nil {
		return ErrorResultf(OutcomeUnknown, "command failed to start: %v", err).WithError(err)
	}
	return NewResult(string(output))
}
