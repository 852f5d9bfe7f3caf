package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/osi4iot/hookmux/internal/hooks"
	"github.com/osi4iot/hookmux/internal/plugin"
)

// auditPlugin appends one JSONL record per observed event. It is
// universal: every event on every tool lands in the log. A low priority
// keeps it after the gates, so blocked operations are still recorded with
// their position in the chain.
type auditPlugin struct {
	path string

	mu   sync.Mutex
	file *os.File
}

type auditRecord struct {
	Timestamp time.Time       `json:"ts"`
	Event     hooks.HookEvent `json:"event"`
	SessionID string          `json:"session_id"`
	Tool      string          `json:"tool,omitempty"`
	WorkDir   string          `json:"cwd"`
	Prompt    string          `json:"prompt,omitempty"`
}

// NewAuditPlugin builds the audit logger. Options: "path" (string)
// overrides the default log location.
func NewAuditPlugin(options map[string]any) (plugin.Plugin, error) {
	p := &auditPlugin{}
	if v, ok := options["path"].(string); ok && v != "" {
		p.path = v
	}
	return p, nil
}

func (p *auditPlugin) Name() string    { return "audit" }
func (p *auditPlugin) Version() string { return "1.0.0" }
func (p *auditPlugin) Priority() int   { return -10 }

func (p *auditPlugin) Events() []hooks.HookEvent {
	return []hooks.HookEvent{
		hooks.PreToolUse, hooks.PostToolUse, hooks.UserPromptSubmit,
		hooks.SessionStart, hooks.Stop, hooks.SubagentStop,
	}
}

func (p *auditPlugin) Tools() []hooks.ToolName { return nil }

// Init opens the log file once. Registered but uninitialized plugins
// write to a per-call handle instead, so tests need no lifecycle.
func (p *auditPlugin) Init(_ context.Context, _ map[string]any) error {
	path := p.logPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("audit: creating log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: opening log: %w", err)
	}
	p.mu.Lock()
	p.file = file
	p.mu.Unlock()
	return nil
}

func (p *auditPlugin) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *auditPlugin) HealthCheck(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return fmt.Errorf("audit: log not open")
	}
	return nil
}

func (p *auditPlugin) Handle(_ context.Context, ec *hooks.ExecutionContext) (hooks.Result, error) {
	record := auditRecord{
		Timestamp: time.Now(),
		Event:     ec.Event,
		SessionID: ec.SessionID.String(),
		Tool:      string(ec.ToolName),
		WorkDir:   ec.WorkDir,
		Prompt:    ec.Prompt,
	}

	line, err := json.Marshal(record)
	if err != nil {
		return hooks.Result{}, fmt.Errorf("audit: marshaling record: %w", err)
	}
	line = append(line, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file != nil {
		_, err = p.file.Write(line)
	} else {
		err = appendOnce(p.logPath(), line)
	}
	if err != nil {
		return hooks.Result{}, fmt.Errorf("audit: writing record: %w", err)
	}
	return hooks.Ok(""), nil
}

func (p *auditPlugin) logPath() string {
	if p.path != "" {
		return p.path
	}
	return filepath.Join(".hookmux", "logs", "audit.jsonl")
}

func appendOnce(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(line)
	return err
}
