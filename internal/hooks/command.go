package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// CommandOutput is the JSON a command hook may emit on stdout to refine
// its verdict beyond the exit code.
type CommandOutput struct {
	Decision string         `json:"decision,omitempty"` // "approve", "block", or ""
	Reason   string         `json:"reason,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// CommandHandler wraps a shell command as a hook Handler. The command
// receives the full host event JSON on stdin and signals its verdict by
// exit code: 0 success, 2 block, anything else a non-blocking failure.
// Stdout may additionally carry a CommandOutput JSON object.
func CommandHandler(command string) Handler {
	return func(ctx context.Context, ec *ExecutionContext) (Result, error) {
		payload := ec.Raw()
		if len(payload) == 0 {
			// Context was built in-process; reconstruct a minimal event
			// so the command still sees well-formed input.
			b, err := json.Marshal(map[string]any{
				"session_id":      ec.SessionID.String(),
				"transcript_path": ec.TranscriptPath,
				"cwd":             ec.WorkDir,
				"hook_event_name": ec.Event,
				"tool_name":       ec.ToolName,
				"tool_input":      ec.ToolInput.Raw(),
			})
			if err != nil {
				return Result{}, NewError(KindExecution, "marshaling hook input", err)
			}
			payload = b
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Stdin = bytes.NewReader(payload)
		cmd.Dir = ec.WorkDir

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()

		exitCode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return Result{}, NewError(KindExecution,
					fmt.Sprintf("running hook command %q", command), err)
			}
		}

		return interpretCommandResult(exitCode, stdout.String(), stderr.String()), nil
	}
}

// interpretCommandResult maps the exit-code protocol plus optional stdout
// JSON into a Result. Exit 2 is the blocking convention; stderr carries
// the reason.
func interpretCommandResult(exitCode int, stdout, stderr string) Result {
	switch exitCode {
	case 0:
		result := Ok(strings.TrimSpace(stdout))
		if out, ok := parseCommandOutput(stdout); ok {
			applyCommandOutput(&result, out)
		}
		return result
	case 2:
		reason := strings.TrimSpace(stderr)
		if reason == "" {
			reason = "blocked by hook command"
		}
		return Blocked(reason)
	default:
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = fmt.Sprintf("hook command exited with code %d", exitCode)
		}
		return Fail(msg)
	}
}

func parseCommandOutput(stdout string) (CommandOutput, bool) {
	trimmed := strings.TrimSpace(stdout)
	if !strings.HasPrefix(trimmed, "{") {
		return CommandOutput{}, false
	}
	var out CommandOutput
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return CommandOutput{}, false
	}
	return out, true
}

func applyCommandOutput(result *Result, out CommandOutput) {
	if out.Decision == "block" {
		result.Success = false
		result.Block = true
	}
	result.Message = out.Reason
	if len(out.Data) > 0 {
		result.Data = out.Data
	}
}
