// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/tabletop-assistant/internal/commands"
	"github.com/jeranaias/tabletop-assistant/internal/config"
	"github.com/jeranaias/tabletop-assistant/internal/server"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testEnv is an isolated home directory with a config file.
type testEnv struct {
	home       string
	configPath string
}

func newTestEnv(t *testing.T, edit func(*config.Config)) *testEnv {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NO_COLOR", "1")
	for _, k := range config.EnvOverrideKeys {
		t.Setenv(k, "")
	}

	cfg := config.Default()
	cfg.Storage.Backend = "file"
	cfg.Storage.Path = filepath.Join(home, "state")
	cfg.Queue.PollInterval = "5ms"
	cfg.Permissions.CleanupInterval = "0s"
	if edit != nil {
		edit(cfg)
	}
	path := filepath.Join(home, "config.toml")
	require.NoError(t, config.SaveTOML(cfg, path))
	return &testEnv{home: home, configPath: path}
}

// run executes the root command with --config set and returns stdout.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	require.NoError(t, err)
	return out
}

func decodeJSON(t *testing.T, out string) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, true, resp["success"])
	return resp
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_Roll(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.mustRun(t, "send", "/ai roll 2d6 Damage")
	assert.Contains(t, out, "2d6 = ")
	assert.Contains(t, out, "Damage")
}

func TestSend_DeniedAtBasic(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.mustRun(t, "send", "/ai create actor Goblin")
	assert.Contains(t, out, `Insufficient permission to run "create"`)
}

func TestSend_Mention(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.mustRun(t, "send", "--as", "Aria", "@ai what do I see?")
	assert.Contains(t, out, `You said: "what do I see?"`)
}

func TestSend_PassiveMessagePrintsNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.mustRun(t, "send", "--type", "ic", "I draw my sword")
	assert.Empty(t, strings.TrimSpace(out))
}

func TestSend_JSON(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.mustRun(t, "--json", "send", "/ai nonsense")
	resp := decodeJSON(t, out)
	data := resp["data"].(map[string]any)
	assert.Equal(t, commands.ResponseUnknownCommand.String(), data["kind"])
	assert.Equal(t, "nonsense", data["command"])
	assert.Equal(t, "send", resp["command"])
}

// =============================================================================
// PERMISSIONS
// =============================================================================

func TestPermissions_LevelPersists(t *testing.T) {
	env := newTestEnv(t, nil)

	out := env.mustRun(t, "permissions", "level")
	assert.Contains(t, out, "BASIC")
	assert.Contains(t, out, "ADVANCED")

	out = env.mustRun(t, "permissions", "level", "advanced")
	assert.Contains(t, out, "BASIC -> ADVANCED")

	out = env.mustRun(t, "--json", "permissions", "status")
	resp := decodeJSON(t, out)
	stats := resp["data"].(map[string]any)["stats"].(map[string]any)
	assert.Equal(t, "ADVANCED", stats["level"])

	out = env.mustRun(t, "send", "/ai create actor Goblin")
	assert.Contains(t, out, `Created actor "Goblin"`)
}

func TestPermissions_InvalidLevel(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.run(t, "", "permissions", "level", "GODMODE")
	require.Error(t, err)
}

func TestPermissions_GrantRevokeHistory(t *testing.T) {
	env := newTestEnv(t, nil)

	out := env.mustRun(t, "permissions", "grant", "create-actor", "--reason", "boss fight")
	assert.Contains(t, out, "Granted create-actor")

	out = env.mustRun(t, "send", "/ai create actor Ogre")
	assert.Contains(t, out, `Created actor "Ogre"`)

	out = env.mustRun(t, "permissions", "revoke", "create-actor")
	assert.Contains(t, out, "Revoked create-actor")

	out = env.mustRun(t, "permissions", "history")
	assert.Contains(t, out, "granted create-actor: boss fight")
	assert.Contains(t, out, "revoked create-actor")
	assert.Contains(t, out, operatorActor)

	_, err := env.run(t, "", "permissions", "grant", "fly")
	require.Error(t, err)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_InitWritesDefaultFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "init"})
	require.NoError(t, root.Execute())

	path := filepath.Join(home, ".tabletop", "config.toml")
	assert.FileExists(t, path)
	assert.Contains(t, out.String(), path)

	root = NewRootCommand()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"config", "init"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfig_ShowRedactsSecrets(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Provider.Anthropic.APIKey = "sk-ant-secret"
	})
	out := env.mustRun(t, "config", "show")
	assert.NotContains(t, out, "sk-ant-secret")
	assert.Contains(t, out, "[REDACTED]")

	out = env.mustRun(t, "config", "get", "provider.anthropic.api_key")
	assert.Equal(t, "[REDACTED]", strings.TrimSpace(out))
}

func TestConfig_SetAndGet(t *testing.T) {
	env := newTestEnv(t, nil)

	env.mustRun(t, "config", "set", "general.command_prefix", "!gm")
	out := env.mustRun(t, "config", "get", "general.command_prefix")
	assert.Equal(t, "!gm", strings.TrimSpace(out))

	out = env.mustRun(t, "send", "!gm roll 1d1")
	assert.Contains(t, out, "1d1 = 1")

	_, err := env.run(t, "", "config", "set", "general.history_limit", "0")
	require.Error(t, err)

	out = env.mustRun(t, "config", "keys")
	assert.Contains(t, out, "queue.poll_interval")
}

func TestConfig_SetDoesNotSaveEnvironment(t *testing.T) {
	env := newTestEnv(t, nil)
	t.Setenv("OPENAI_API_KEY", "sk-env-secret")
	t.Setenv("TABLETOP_SERVER_TOKEN", "env-bridge-token")
	t.Setenv("TABLETOP_REDIS_URL", "redis://cache:6379/0")

	env.mustRun(t, "config", "set", "general.command_prefix", "!gm")

	data, err := os.ReadFile(env.configPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-env-secret")
	assert.NotContains(t, string(data), "env-bridge-token")
	assert.NotContains(t, string(data), "redis://cache")

	saved, err := config.ReadFromPath(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, "!gm", saved.General.CommandPrefix)
	assert.Equal(t, "file", saved.Storage.Backend)
	assert.Empty(t, saved.Provider.OpenAI.APIKey)
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat_PipedSession(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.General.AssistantName = "Sage"
	})
	out, err := env.run(t, "/ai help\n\nThe door creaks open.\n@ai hello\nexit\n/ai roll 1d4\n", "chat", "--as", "Aria")
	require.NoError(t, err)

	assert.Contains(t, out, "Sage is listening")
	assert.Contains(t, out, "/ai roll")
	assert.Contains(t, out, `Sage: You said: "hello"`)
	assert.Contains(t, out, "Goodbye.")
	assert.NotContains(t, out, "1d4 =")
}

func TestChat_EOFEndsSession(t *testing.T) {
	env := newTestEnv(t, nil)
	out, err := env.run(t, "/ai roll 1d1", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "1d1 = 1")
	assert.Contains(t, out, "Goodbye.")
}

func TestChat_Transcript(t *testing.T) {
	env := newTestEnv(t, nil)
	dir := t.TempDir() + string(os.PathSeparator)

	out, err := env.run(t, "The door creaks open.\n@ai what is inside?\n", "chat", "--as", "Aria", "--transcript", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Transcript saved to")

	files, err := filepath.Glob(filepath.Join(dir, "transcript_*.md"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "The door creaks open.")
	assert.Contains(t, string(data), "_(assistant)_")
}

// =============================================================================
// VERSION AND RENDERING
// =============================================================================

func TestVersion_JSON(t *testing.T) {
	env := newTestEnv(t, nil)
	out := env.mustRun(t, "--json", "version")
	resp := decodeJSON(t, out)
	data := resp["data"].(map[string]any)
	assert.Equal(t, Version, data["version"])
	assert.NotEmpty(t, data["go_version"])
}

func TestWrapText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"fits", "short line", 40, "short line"},
		{"wraps words", "the goblin lurks behind the door", 20, "the goblin lurks\nbehind the door"},
		{"keeps newlines", "one\ntwo", 40, "one\ntwo"},
		{"wide runes", "竜 竜 竜 竜 竜 竜", 12, "竜 竜 竜\n竜 竜 竜"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapText(tt.text, tt.width))
		})
	}
}

func TestRenderResponse(t *testing.T) {
	assert.Empty(t, RenderResponse(commands.Response{}))
	assert.Equal(t, "nope", RenderResponse(commands.Response{Kind: commands.ResponseDenied, Text: "nope"}))
	assert.Equal(t, "boom", RenderResponse(commands.Response{Kind: commands.ResponseError, Text: "boom"}))
	assert.Equal(t, "**bold**", RenderResponse(commands.Response{Kind: commands.ResponseCommand, Text: "**bold**"}))
}

func TestSaveConfigByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, saveConfig(config.Default(), jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	tomlPath := filepath.Join(dir, "config.toml")
	require.NoError(t, saveConfig(config.Default(), tomlPath))
	data, err = os.ReadFile(tomlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[general]")
}

// =============================================================================
// SERVE
// =============================================================================

func TestServe_StopsWhenContextIsCancelled(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.Listen = "127.0.0.1:0"
		cfg.Server.AuthToken = "tok"
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--config", env.configPath, "serve"})
	require.NoError(t, root.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Listening on http://127.0.0.1:0")
}

func TestRunServer_ListenError(t *testing.T) {
	srv := server.New("not-an-address", nil)
	err := runServer(context.Background(), srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen not-an-address")
}
