package hooks

import (
	"encoding/json"
	"io"
)

// RawInput is the single JSON object the host writes on stdin for each
// event. Common fields are always present; event-specific fields are
// populated only for their event.
type RawInput struct {
	SessionID      string    `json:"session_id"`
	TranscriptPath string    `json:"transcript_path"`
	CWD            string    `json:"cwd"`
	HookEventName  HookEvent `json:"hook_event_name"`

	// PreToolUse / PostToolUse
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// PostToolUse only
	ToolResponse json.RawMessage `json:"tool_response,omitempty"`

	// UserPromptSubmit
	Prompt string `json:"prompt,omitempty"`

	// Notification-style events
	Message string `json:"message,omitempty"`

	// Stop / SubagentStop
	StopHookActive bool `json:"stop_hook_active,omitempty"`

	// Optional matcher hint supplied by the host
	Matcher string `json:"matcher,omitempty"`

	raw []byte
}

// Raw returns the original bytes the input was decoded from, or nil if it
// was constructed in-process.
func (in *RawInput) Raw() []byte { return in.raw }

// ParseInput decodes one host event from r and checks the fields every
// event must carry. Absence of session_id, hook_event_name or cwd is a
// hard input error.
func ParseInput(r io.Reader) (*RawInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewError(KindInput, "reading host input", err)
	}

	var in RawInput
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, NewError(KindInput, "parsing host input", err)
	}
	in.raw = data

	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

// Validate checks the protocol-level required fields.
func (in *RawInput) Validate() error {
	switch {
	case in.SessionID == "":
		return inputErrorf("missing session_id")
	case in.HookEventName == "":
		return inputErrorf("missing hook_event_name")
	case in.CWD == "":
		return inputErrorf("missing cwd")
	}
	if !in.HookEventName.IsValid() {
		return inputErrorf("unknown hook event %q", in.HookEventName)
	}
	return nil
}
