package hooks

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"
)

// EnvPrefix is the namespace for environment variables the engine reads.
const EnvPrefix = "HOOKMUX"

// ProjectDirEnv marks the project root for hooks that need it; captured
// into every context's environment snapshot.
const ProjectDirEnv = "HOOKMUX_PROJECT_DIR"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SessionID is a validated host session identifier.
type SessionID string

// NewSessionID validates and wraps a raw session identifier.
func NewSessionID(raw string) (SessionID, error) {
	if raw == "" {
		return "", validationErrorf("session id must not be empty")
	}
	if !sessionIDPattern.MatchString(raw) {
		return "", validationErrorf("session id %q contains invalid characters", raw)
	}
	return SessionID(raw), nil
}

func (s SessionID) String() string { return string(s) }

// ExecutionContext is an immutable snapshot of one host event. It is built
// once per event, shared by reference across every hook in the chain, and
// discarded when execution returns. Nothing on it mutates after NewContext.
type ExecutionContext struct {
	Event          HookEvent
	SessionID      SessionID
	TranscriptPath string
	WorkDir        string
	Matcher        string

	// Tool fields; set iff Event.RequiresMatcher()
	ToolName  ToolName
	ToolInput ToolInput

	// ToolResponse is set only for PostToolUse
	ToolResponse json.RawMessage

	// Prompt is set only for UserPromptSubmit
	Prompt string

	// Message carries a notification text when the host supplies one
	Message string

	// Environment is the engine-relevant env snapshot taken at build time
	Environment map[string]string

	raw []byte
}

// NewContext builds an ExecutionContext from one validated host input.
func NewContext(in *RawInput) (*ExecutionContext, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sid, err := NewSessionID(in.SessionID)
	if err != nil {
		return nil, err
	}

	ctx := &ExecutionContext{
		Event:          in.HookEventName,
		SessionID:      sid,
		TranscriptPath: in.TranscriptPath,
		WorkDir:        in.CWD,
		Matcher:        in.Matcher,
		Prompt:         in.Prompt,
		Message:        in.Message,
		Environment:    snapshotEnv(),
		raw:            in.raw,
	}

	if in.HookEventName.RequiresMatcher() {
		if in.ToolName == "" {
			return nil, inputErrorf("%s event missing tool_name", in.HookEventName)
		}
		ctx.ToolName = ToolName(in.ToolName)
		ctx.ToolInput = ParseToolInput(ctx.ToolName, in.ToolInput)
	}
	if in.HookEventName == PostToolUse {
		ctx.ToolResponse = in.ToolResponse
	}

	return ctx, nil
}

// Raw returns the original host input bytes for hooks that want the full
// payload, e.g. command hooks fed over stdin.
func (c *ExecutionContext) Raw() []byte { return c.raw }

// ProjectDir returns the project root marker from the environment
// snapshot, falling back to the working directory.
func (c *ExecutionContext) ProjectDir() string {
	if dir := c.Environment[ProjectDirEnv]; dir != "" {
		return dir
	}
	return c.WorkDir
}

// Validate re-checks the shape the execution wrapper depends on. A context
// from NewContext always passes; hand-built contexts in tests or embedders
// may not.
func (c *ExecutionContext) Validate() error {
	switch {
	case c == nil:
		return validationErrorf("nil context")
	case !c.Event.IsValid():
		return validationErrorf("invalid event %q", c.Event)
	case c.SessionID == "":
		return validationErrorf("missing session id")
	case c.WorkDir == "":
		return validationErrorf("missing working directory")
	}
	if c.Event.RequiresMatcher() && c.ToolName == "" {
		return validationErrorf("%s context missing tool name", c.Event)
	}
	return nil
}

// snapshotEnv captures the HOOKMUX_* variables once so hooks observe a
// stable environment even if the process env changes mid-chain.
func snapshotEnv() map[string]string {
	snap := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			snap[k] = v
		}
	}
	return snap
}
