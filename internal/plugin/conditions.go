package plugin

import (
	"context"
	"fmt"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/osi4iot/hookmux/internal/hooks"
)

// ConditionSpec is a declarative execution condition attached to a plugin
// in configuration. Exactly one selector is set per condition.
type ConditionSpec struct {
	// EnvVar gates on an environment variable from the context snapshot,
	// e.g. "HOOKMUX_ENV". Value is matched exactly; empty Value means
	// "set and non-empty".
	EnvVar string `yaml:"env_var,omitempty" json:"env_var,omitempty" mapstructure:"env_var"`

	// Field gates on a dotted path into the raw host event, e.g.
	// "tool_input.command". Pattern is a regex matched against the
	// field's string form.
	Field string `yaml:"field,omitempty" json:"field,omitempty"`

	// Tool gates on the invoked tool name.
	Tool string `yaml:"tool,omitempty" json:"tool,omitempty"`

	// Value / Pattern qualify the selector above.
	Value   string `yaml:"value,omitempty" json:"value,omitempty"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// Compile turns the spec into an executable hook condition.
func (c ConditionSpec) Compile() (hooks.Condition, error) {
	switch {
	case c.EnvVar != "":
		name, want := c.EnvVar, c.Value
		return func(_ context.Context, ec *hooks.ExecutionContext) (bool, error) {
			got, ok := ec.Environment[name]
			if want == "" {
				return ok && got != "", nil
			}
			return got == want, nil
		}, nil

	case c.Field != "":
		path := c.Field
		if c.Pattern != "" {
			re, err := regexp.Compile(c.Pattern)
			if err != nil {
				return nil, hooks.NewError(hooks.KindValidation,
					fmt.Sprintf("condition pattern %q", c.Pattern), err)
			}
			return func(_ context.Context, ec *hooks.ExecutionContext) (bool, error) {
				return re.MatchString(gjson.GetBytes(ec.Raw(), path).String()), nil
			}, nil
		}
		want := c.Value
		return func(_ context.Context, ec *hooks.ExecutionContext) (bool, error) {
			return gjson.GetBytes(ec.Raw(), path).String() == want, nil
		}, nil

	case c.Tool != "":
		want := hooks.ToolName(c.Tool)
		return func(_ context.Context, ec *hooks.ExecutionContext) (bool, error) {
			return ec.ToolName == want, nil
		}, nil
	}

	return nil, hooks.NewError(hooks.KindValidation,
		"condition must set one of env_var, field, tool", nil)
}

// CompileAll compiles specs into a single condition that requires every
// spec to hold. nil when specs is empty.
func CompileAll(specs []ConditionSpec) (hooks.Condition, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	compiled := make([]hooks.Condition, 0, len(specs))
	for _, spec := range specs {
		cond, err := spec.Compile()
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, cond)
	}

	return func(ctx context.Context, ec *hooks.ExecutionContext) (bool, error) {
		for _, cond := range compiled {
			ok, err := cond(ctx, ec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}, nil
}
