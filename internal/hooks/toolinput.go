package hooks

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// ToolName identifies the tool a Pre/PostToolUse event refers to. The set
// is open: hosts may invoke tools the engine has never heard of.
type ToolName string

const (
	ToolBash  ToolName = "Bash"
	ToolWrite ToolName = "Write"
	ToolEdit  ToolName = "Edit"
	ToolRead  ToolName = "Read"
)

// ToolInput is a tagged view over the tool-specific payload. Known tools
// decode into typed arms; anything else stays available as raw JSON.
type ToolInput struct {
	Tool ToolName
	raw  json.RawMessage

	Bash  *BashInput
	Write *WriteInput
	Edit  *EditInput
	Read  *ReadInput
}

// BashInput is the payload of a Bash tool call.
type BashInput struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Timeout     int    `json:"timeout,omitempty"`
}

// WriteInput is the payload of a Write tool call.
type WriteInput struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// EditInput is the payload of an Edit tool call.
type EditInput struct {
	FilePath   string `json:"file_path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all,omitempty"`
}

// ReadInput is the payload of a Read tool call.
type ReadInput struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ParseToolInput decodes raw into the arm matching tool. Unknown tools and
// decode failures fall back to the opaque raw arm; the payload is host
// data and must never fail context construction.
func ParseToolInput(tool ToolName, raw json.RawMessage) ToolInput {
	ti := ToolInput{Tool: tool, raw: raw}
	if len(raw) == 0 {
		return ti
	}

	switch tool {
	case ToolBash:
		var v BashInput
		if json.Unmarshal(raw, &v) == nil {
			ti.Bash = &v
		}
	case ToolWrite:
		var v WriteInput
		if json.Unmarshal(raw, &v) == nil {
			ti.Write = &v
		}
	case ToolEdit:
		var v EditInput
		if json.Unmarshal(raw, &v) == nil {
			ti.Edit = &v
		}
	case ToolRead:
		var v ReadInput
		if json.Unmarshal(raw, &v) == nil {
			ti.Read = &v
		}
	}
	return ti
}

// Raw returns the undecoded payload bytes.
func (ti ToolInput) Raw() json.RawMessage { return ti.raw }

// Get looks up a dotted path in the payload, typed or not. Useful for
// condition predicates that match on fields like "command" or
// "file_path" without caring which tool produced them.
func (ti ToolInput) Get(path string) gjson.Result {
	return gjson.GetBytes(ti.raw, path)
}

// FilePath returns the file path argument shared by the file-oriented
// tools, or "" when the payload has none.
func (ti ToolInput) FilePath() string {
	switch {
	case ti.Write != nil:
		return ti.Write.FilePath
	case ti.Edit != nil:
		return ti.Edit.FilePath
	case ti.Read != nil:
		return ti.Read.FilePath
	}
	return ti.Get("file_path").String()
}
