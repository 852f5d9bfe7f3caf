package host

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osi4iot/hookmux/internal/config"
	"github.com/osi4iot/hookmux/internal/hooks"
)

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	t.Setenv(config.EnvName, "")
	t.Chdir(t.TempDir())

	if opts.ConfigPath == "" {
		path := filepath.Join(t.TempDir(), "config.yml")
		require.NoError(t, os.WriteFile(path, []byte("settings:\n  logLevel: error\n"), 0o644))
		opts.ConfigPath = path
	}
	if opts.LogWriter == nil {
		opts.LogWriter = io.Discard
	}
	opts.NoDiscovery = true

	engine, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func bashEventJSON(t *testing.T, command string) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"session_id":      "host-test",
		"cwd":             "/tmp",
		"hook_event_name": "PreToolUse",
		"tool_name":       "Bash",
		"tool_input":      map[string]string{"command": command},
	})
	require.NoError(t, err)
	return string(payload)
}

func TestRunOnceExitCodes(t *testing.T) {
	engine := newTestEngine(t, Options{})

	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"benign command continues", bashEventJSON(t, "ls -la"), ExitOK},
		{"dangerous command blocks", bashEventJSON(t, "rm -rf /"), ExitBlocking},
		{"malformed json blocks", "{not json", ExitBlocking},
		{"missing session blocks", `{"cwd":"/tmp","hook_event_name":"Stop"}`, ExitBlocking},
		{"unknown event blocks", `{"session_id":"s","cwd":"/tmp","hook_event_name":"OnBoot"}`, ExitBlocking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := engine.RunOnce(context.Background(),
				strings.NewReader(tt.input), &stdout, &stderr)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestRunOnceBlockReasonOnStderr(t *testing.T) {
	engine := newTestEngine(t, Options{})

	var stdout, stderr bytes.Buffer
	code := engine.RunOnce(context.Background(),
		strings.NewReader(bashEventJSON(t, "cat ../../etc/passwd")), &stdout, &stderr)

	assert.Equal(t, ExitBlocking, code)
	assert.Contains(t, stderr.String(), "safety:")
	assert.Empty(t, stdout.String())
}

func TestRunOnceJSONMode(t *testing.T) {
	engine := newTestEngine(t, Options{JSONMode: true})

	t.Run("continue verdict", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := engine.RunOnce(context.Background(),
			strings.NewReader(bashEventJSON(t, "echo hi")), &stdout, &stderr)

		require.Equal(t, ExitOK, code)
		var v Verdict
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &v))
		assert.Equal(t, "continue", v.Action)
	})

	t.Run("block verdict still exits zero", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := engine.RunOnce(context.Background(),
			strings.NewReader(bashEventJSON(t, "rm -rf /")), &stdout, &stderr)

		require.Equal(t, ExitOK, code)
		var v Verdict
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &v))
		assert.Equal(t, "block", v.Action)
		assert.Contains(t, v.Message, "safety:")
	})

	t.Run("bad input blocks in json too", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := engine.RunOnce(context.Background(),
			strings.NewReader("{broken"), &stdout, &stderr)

		require.Equal(t, ExitOK, code)
		var v Verdict
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &v))
		assert.Equal(t, "block", v.Action)
	})
}

func TestRunOnceShowStats(t *testing.T) {
	engine := newTestEngine(t, Options{ShowStats: true})

	var stdout, stderr bytes.Buffer
	code := engine.RunOnce(context.Background(),
		strings.NewReader(bashEventJSON(t, "echo hi")), &stdout, &stderr)

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stderr.String(), "KEY")
	assert.Contains(t, stderr.String(), "PreToolUse:Bash")
}

func TestServeOrderedVerdicts(t *testing.T) {
	engine := newTestEngine(t, Options{})

	var lines []string
	for i := 0; i < 8; i++ {
		lines = append(lines, bashEventJSON(t, fmt.Sprintf("echo %d", i)))
	}
	lines = append(lines, bashEventJSON(t, "rm -rf /"))
	lines = append(lines, "", bashEventJSON(t, "true"))

	var out bytes.Buffer
	err := engine.Serve(context.Background(),
		strings.NewReader(strings.Join(lines, "\n")), &out)
	require.NoError(t, err)

	var verdicts []Verdict
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var v Verdict
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v))
		verdicts = append(verdicts, v)
	}

	// Blank lines produce no verdict; everything else answers in order.
	require.Len(t, verdicts, 10)
	for i := 0; i < 8; i++ {
		assert.Equal(t, "continue", verdicts[i].Action, "line %d", i)
	}
	assert.Equal(t, "block", verdicts[8].Action)
	assert.Equal(t, "continue", verdicts[9].Action)
}

func TestServeFailsClosedPerLine(t *testing.T) {
	engine := newTestEngine(t, Options{})

	input := strings.Join([]string{
		"{malformed",
		bashEventJSON(t, "echo ok"),
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, engine.Serve(context.Background(), strings.NewReader(input), &out))

	scanner := bufio.NewScanner(&out)
	var verdicts []Verdict
	for scanner.Scan() {
		var v Verdict
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &v))
		verdicts = append(verdicts, v)
	}
	require.Len(t, verdicts, 2)
	assert.Equal(t, "block", verdicts[0].Action)
	assert.Equal(t, "continue", verdicts[1].Action)
}

func TestNewRejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("settings:\n  logLevel: loud\n"), 0o644))

	_, err := New(Options{ConfigPath: path, LogWriter: io.Discard})
	require.Error(t, err)
	assert.Equal(t, hooks.KindConfiguration, hooks.KindOf(err))
}

func TestEngineDiscoversManifestPlugins(t *testing.T) {
	t.Setenv(config.EnvName, "")
	dir := t.TempDir()
	t.Chdir(dir)

	pluginDir := filepath.Join(dir, ".hookmux", "plugins")
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "echoer.hook.yml"), []byte(`
version: 1.0.0
events: [PreToolUse]
tools: [Bash]
command: exit 0
`), 0o644))

	configPath := filepath.Join(dir, "engine-config.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("settings:\n  logLevel: error\n"), 0o644))

	engine, err := New(Options{ConfigPath: configPath, LogWriter: io.Discard})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	assert.Contains(t, engine.Manager.Names(), "echoer")
}
