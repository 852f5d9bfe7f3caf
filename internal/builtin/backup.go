package builtin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/osi4iot/hookmux/internal/hooks"
	"github.com/osi4iot/hookmux/internal/plugin"
)

// backupPlugin copies the target file aside before a Write or Edit
// touches it. The copy is plain sequential I/O with no shared state, so a
// backup that outlives a timed-out chain finishes harmlessly after the
// caller has moved on.
type backupPlugin struct {
	dir string
}

// NewBackupPlugin builds the backup plugin. Options: "dir" (string)
// overrides the backup directory.
func NewBackupPlugin(options map[string]any) (plugin.Plugin, error) {
	p := &backupPlugin{dir: filepath.Join(".hookmux", "backups")}
	if v, ok := options["dir"].(string); ok && v != "" {
		p.dir = v
	}
	return p, nil
}

func (p *backupPlugin) Name() string    { return "backup" }
func (p *backupPlugin) Version() string { return "1.0.0" }
func (p *backupPlugin) Priority() int   { return 50 }

func (p *backupPlugin) Events() []hooks.HookEvent {
	return []hooks.HookEvent{hooks.PreToolUse}
}

func (p *backupPlugin) Tools() []hooks.ToolName {
	return []hooks.ToolName{hooks.ToolWrite, hooks.ToolEdit}
}

func (p *backupPlugin) Handle(_ context.Context, ec *hooks.ExecutionContext) (hooks.Result, error) {
	target := ec.ToolInput.FilePath()
	if target == "" {
		return hooks.Ok(""), nil
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(ec.WorkDir, target)
	}

	// Nothing to preserve for a brand-new file.
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return hooks.Ok(""), nil
	}

	backupPath, err := p.copyAside(target)
	if err != nil {
		// A failed backup is worth reporting but must not veto the edit.
		return hooks.Fail(fmt.Sprintf("backup: %v", err)), nil
	}

	result := hooks.Ok("")
	result.Data = map[string]any{"backup_path": backupPath}
	return result, nil
}

func (p *backupPlugin) copyAside(target string) (string, error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s.%s.bak", filepath.Base(target),
		time.Now().UTC().Format("20060102T150405.000"))
	backupPath := filepath.Join(p.dir, name)

	src, err := os.Open(target)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(backupPath)
		return "", err
	}
	return backupPath, nil
}
