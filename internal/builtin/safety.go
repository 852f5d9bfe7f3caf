package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/osi4iot/hookmux/internal/hooks"
	"github.com/osi4iot/hookmux/internal/plugin"
)

// Patterns that flag a shell command as dangerous regardless of context.
var (
	pathTraversalPattern       = regexp.MustCompile(`\.\.\/`)
	commandSubstitutionPattern = regexp.MustCompile(`\$\([^)]+\)|` + "`" + `[^` + "`" + `]+` + "`")
)

var dangerousFragments = []string{
	"; rm ",
	"&& rm ",
	"| rm ",
	"; dd ",
	"&& dd ",
	"| dd ",
	"rm -rf /",
	"mkfs",
	"> /dev/sda",
}

// safetyPlugin vetoes Bash commands that match the screening rules. It is
// a PreToolUse gate and registers at high priority so it runs before
// observers like audit.
type safetyPlugin struct {
	allowSubstitution bool
	extraPatterns     []*regexp.Regexp
}

// NewSafetyPlugin builds the safety gate. Options: "allowSubstitution"
// (bool) permits $() and backticks; "patterns" ([]string) adds custom
// regex screens.
func NewSafetyPlugin(options map[string]any) (plugin.Plugin, error) {
	p := &safetyPlugin{}
	if v, ok := options["allowSubstitution"].(bool); ok {
		p.allowSubstitution = v
	}
	if raw, ok := options["patterns"].([]any); ok {
		for _, item := range raw {
			s, ok := item.(string)
			if !ok {
				continue
			}
			re, err := regexp.Compile(s)
			if err != nil {
				return nil, fmt.Errorf("safety: invalid pattern %q: %w", s, err)
			}
			p.extraPatterns = append(p.extraPatterns, re)
		}
	}
	return p, nil
}

func (p *safetyPlugin) Name() string    { return "safety" }
func (p *safetyPlugin) Version() string { return "1.0.0" }
func (p *safetyPlugin) Priority() int   { return 100 }

func (p *safetyPlugin) Events() []hooks.HookEvent {
	return []hooks.HookEvent{hooks.PreToolUse}
}

func (p *safetyPlugin) Tools() []hooks.ToolName {
	return []hooks.ToolName{hooks.ToolBash}
}

func (p *safetyPlugin) Handle(_ context.Context, ec *hooks.ExecutionContext) (hooks.Result, error) {
	if ec.ToolInput.Bash == nil {
		return hooks.Ok(""), nil
	}
	command := ec.ToolInput.Bash.Command

	if reason := p.screen(command); reason != "" {
		return hooks.Blocked(fmt.Sprintf("safety: %s in command %q", reason, command)), nil
	}
	return hooks.Ok(""), nil
}

// screen returns a human-readable reason when the command trips a rule.
func (p *safetyPlugin) screen(command string) string {
	for _, fragment := range dangerousFragments {
		if strings.Contains(command, fragment) {
			return "dangerous pattern " + strings.TrimSpace(fragment) + " detected"
		}
	}
	if pathTraversalPattern.MatchString(command) {
		return "path traversal detected"
	}
	if !p.allowSubstitution && commandSubstitutionPattern.MatchString(command) {
		return "command substitution detected"
	}
	for _, re := range p.extraPatterns {
		if re.MatchString(command) {
			return "blocked pattern " + re.String() + " matched"
		}
	}

	// Heavy separator chaining is a common injection tell. Two is
	// ordinary shell; more gets blocked.
	separators := 0
	for _, sep := range []string{";", "&&", "||", "|"} {
		separators += strings.Count(command, sep)
	}
	if separators > 2 {
		return "excessive command chaining detected"
	}
	return ""
}
