package hooks

import "time"

// HookEvent represents a point in the host's lifecycle where hooks can be executed
type HookEvent string

const (
	// PreToolUse fires before any tool execution
	PreToolUse HookEvent = "PreToolUse"

	// PostToolUse fires after tool execution completes
	PostToolUse HookEvent = "PostToolUse"

	// UserPromptSubmit fires when the user submits a prompt
	UserPromptSubmit HookEvent = "UserPromptSubmit"

	// SessionStart fires when a new host session begins
	SessionStart HookEvent = "SessionStart"

	// Stop fires when the main agent finishes responding
	Stop HookEvent = "Stop"

	// SubagentStop fires when a subagent finishes responding
	SubagentStop HookEvent = "SubagentStop"
)

// IsValid returns true if the event is a valid hook event
func (e HookEvent) IsValid() bool {
	switch e {
	case PreToolUse, PostToolUse, UserPromptSubmit, SessionStart, Stop, SubagentStop:
		return true
	}
	return false
}

// RequiresMatcher returns true if the event carries a tool name and tool input
func (e HookEvent) RequiresMatcher() bool {
	return e == PreToolUse || e == PostToolUse
}

// CanBlock returns true if a blocking Result for this event halts the
// remaining chain. Only PreToolUse vetoes; block flags on other events
// are carried through but never stop execution.
func (e HookEvent) CanBlock() bool {
	return e == PreToolUse
}

// DefaultTimeout returns the execution time budget for hooks on this event
// when the entry does not set its own. Pre-tool gates sit on the critical
// path of every tool call and get a tighter budget.
func (e HookEvent) DefaultTimeout() time.Duration {
	switch e {
	case PreToolUse:
		return 10 * time.Second
	case UserPromptSubmit:
		return 15 * time.Second
	default:
		return 30 * time.Second
	}
}
