package cmd

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"
)

// configSchema describes the configuration file shape as JSON Schema,
// served for editor integrations and config linters.
var configSchema = map[string]any{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"title":   "hookmux configuration",
	"type":    "object",
	"properties": map[string]any{
		"plugins": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"enabled":    map[string]any{"type": "boolean"},
					"priority":   map[string]any{"type": "integer"},
					"events":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"tools":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"config":     map[string]any{"type": "object"},
					"conditions": map[string]any{"type": "array"},
				},
			},
		},
		"rules": map[string]any{"type": "object"},
		"settings": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"defaultTimeout":    map[string]any{"type": "string"},
				"continueOnFailure": map[string]any{"type": "boolean"},
				"collectMetrics":    map[string]any{"type": "boolean"},
				"enableHotReload":   map[string]any{"type": "boolean"},
				"logLevel":          map[string]any{"type": "string", "enum": []string{"debug", "info", "warn", "error"}},
				"maxConcurrency":    map[string]any{"type": "integer"},
			},
		},
		"loader": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"searchPaths":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"includePatterns": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"excludePatterns": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"recursive":       map[string]any{"type": "boolean"},
				"maxDepth":        map[string]any{"type": "integer"},
				"enableCache":     map[string]any{"type": "boolean"},
				"validateOnLoad":  map[string]any{"type": "boolean"},
			},
		},
		"environments": map[string]any{"type": "object"},
	},
}

var schemaAddr string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Serve the configuration JSON schema over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		if schemaAddr == "" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(configSchema)
		}

		mux := http.NewServeMux()
		mux.HandleFunc("/schema.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(configSchema)
		})

		cmd.Printf("Serving schema on http://%s/schema.json\n", schemaAddr)
		server := &http.Server{Addr: schemaAddr, Handler: mux}
		return server.ListenAndServe()
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaAddr, "addr", "", "listen address; empty prints the schema to stdout")
	rootCmd.AddCommand(schemaCmd)
}
