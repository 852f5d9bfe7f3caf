package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/osi4iot/hookmux/internal/builtin"
	"github.com/osi4iot/hookmux/internal/config"
	"github.com/osi4iot/hookmux/internal/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage hookmux plugins",
	Long:  "Commands for listing, validating and scaffolding plugin configuration",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List builtin and discovered plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.Load(configFile)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tSOURCE\tEVENTS\tTOOLS\tPRIORITY")

		registry := builtin.NewRegistry()
		for _, name := range registry.Names() {
			p, err := registry.Create(name, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\tbuiltin\t%s\t%s\t%d\n",
				p.Name(), p.Version(), joinEvents(p), joinTools(p), p.Priority())
		}

		result := plugin.NewLoader(cfg.Loader, nil).Discover()
		for _, manifest := range result.Plugins {
			p := manifest.ToPlugin()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				p.Name(), p.Version(), manifest.Path(), joinEvents(p), joinTools(p), p.Priority())
		}
		w.Flush()

		for _, loadErr := range result.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", loadErr.Path, loadErr.Err)
		}
		return nil
	},
}

var pluginsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and every discoverable plugin",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, prov, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		result := plugin.NewLoader(cfg.Loader, nil).Discover()
		if len(result.Errors) > 0 {
			for _, loadErr := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", loadErr.Path, loadErr.Err)
			}
			return fmt.Errorf("validation failed: %d plugin file(s) rejected", len(result.Errors))
		}

		source := prov.Path
		if source == "" {
			source = "built-in defaults"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration valid (%s, %d plugin file(s))\n",
			source, len(result.Plugins))
		return nil
	},
}

var pluginsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example configuration and a sample plugin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(".hookmux/plugins", 0o755); err != nil {
			return fmt.Errorf("creating .hookmux directory: %w", err)
		}

		cfg := config.Default()
		cfg.Settings.LogLevel = "info"
		cfg.Plugins = []plugin.Config{
			{Name: "safety"},
			{Name: "audit"},
		}
		cfg.Environments = map[string]map[string]any{
			"test": {
				"settings": map[string]any{"defaultTimeout": "5s"},
			},
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling example config: %w", err)
		}
		if err := os.WriteFile(".hookmux/config.yml", data, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		sample := &plugin.Manifest{
			Name:        "log-bash",
			Version:     "1.0.0",
			Description: "Append every Bash command to a log file",
			Events:      []string{"PreToolUse"},
			Tools:       []string{"Bash"},
			Command:     `jq -r '"[" + (now | strftime("%Y-%m-%d %H:%M:%S")) + "] $ " + .tool_input.command' >> .hookmux/logs/bash-commands.log`,
			Timeout:     5,
		}
		sampleData, err := yaml.Marshal(sample)
		if err != nil {
			return fmt.Errorf("marshaling sample plugin: %w", err)
		}
		if err := os.WriteFile(".hookmux/plugins/log-bash.hook.yml", sampleData, 0o644); err != nil {
			return fmt.Errorf("writing sample plugin: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Created .hookmux/config.yml and .hookmux/plugins/log-bash.hook.yml")
		return nil
	},
}

func joinEvents(p plugin.Plugin) string {
	parts := make([]string, len(p.Events()))
	for i, ev := range p.Events() {
		parts[i] = string(ev)
	}
	return strings.Join(parts, ",")
}

func joinTools(p plugin.Plugin) string {
	tools := p.Tools()
	if len(tools) == 0 {
		return "*"
	}
	parts := make([]string, len(tools))
	for i, t := range tools {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
	pluginsCmd.AddCommand(pluginsListCmd)
	pluginsCmd.AddCommand(pluginsValidateCmd)
	pluginsCmd.AddCommand(pluginsInitCmd)
}
