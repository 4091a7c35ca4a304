// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/tabletop-assistant/internal/commands"
	"github.com/jeranaias/tabletop-assistant/internal/config"
	"github.com/jeranaias/tabletop-assistant/internal/conversation"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/provider"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
	"github.com/jeranaias/tabletop-assistant/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.Entities.Backend = "memory"
	cfg.Queue.PollInterval = "5ms"
	return cfg
}

func newAssistant(t *testing.T, cfg *config.Config, opts ...Option) *Assistant {
	t.Helper()
	a, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	a.Start()
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a
}

func say(a *Assistant, content string) commands.Response {
	return a.HandleMessage(context.Background(), commands.Message{Speaker: "GM", Content: content, Type: "ooc"})
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.General.CommandPrefix = ""
	_, err := New(context.Background(), cfg)
	require.Error(t, err)

	var verrs config.ValidateErrors
	require.ErrorAs(t, err, &verrs)
}

func TestHandleMessage_DefaultLevelGatesCommands(t *testing.T) {
	a := newAssistant(t, testConfig())

	resp := say(a, "/ai roll 1d20+5")
	assert.Equal(t, commands.ResponseCommand, resp.Kind, resp.Text)
	assert.Contains(t, resp.Text, "1d20+5 = ")

	resp = say(a, "/ai create actor Goblin")
	assert.Equal(t, commands.ResponseDenied, resp.Kind)
	assert.Contains(t, resp.Text, "create-actor")
}

func TestHandleMessage_MentionUsesDefaultProvider(t *testing.T) {
	a := newAssistant(t, testConfig())

	resp := say(a, "@AI hello there")
	assert.Equal(t, commands.ResponseReply, resp.Kind)
	assert.Equal(t, `You said: "hello there". This is a simulated response.`, resp.Text)
	assert.Equal(t, 2, a.Router().History().Len())
}

func TestHandleMessage_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.General.Enabled = false
	a := newAssistant(t, cfg)

	assert.False(t, say(a, "/ai help").Replied())
	assert.Equal(t, 0, a.Session().GetStatus().Commands)
}

func TestPermissionLevelPersists(t *testing.T) {
	kv := storage.NewMemoryKV()
	cfg := testConfig()

	a, err := New(context.Background(), cfg, WithKV(kv))
	require.NoError(t, err)
	require.NoError(t, a.Permissions().SetLevel("advanced", "gm"))
	require.NoError(t, a.Close())

	b := newAssistant(t, cfg, WithKV(kv))
	assert.Equal(t, permission.LevelAdvanced, b.Permissions().Level())
	assert.Equal(t, commands.ResponseCommand, say(b, "/ai create actor Goblin").Kind)
}

func TestNotificationsReachHandler(t *testing.T) {
	got := make(chan queue.Notification, 4)
	cfg := testConfig()
	cfg.Permissions.DefaultLevel = "ADVANCED"
	a := newAssistant(t, cfg, WithNotificationHandler(func(n queue.Notification) { got <- n }))

	resp := say(a, "/ai create actor Goblin")
	require.Equal(t, commands.ResponseCommand, resp.Kind, resp.Text)

	select {
	case n := <-got:
		assert.Equal(t, queue.StatusComplete, n.Status)
		assert.Equal(t, "actors", n.Collection)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
}

func TestReload(t *testing.T) {
	a := newAssistant(t, testConfig())

	next := testConfig()
	next.General.CommandPrefix = "!gm"
	require.NoError(t, a.Reload(next))

	assert.Equal(t, "!gm", a.Router().Prefix())
	assert.Equal(t, commands.ResponseCommand, say(a, "!gm help").Kind)
	assert.False(t, say(a, "/ai help").Replied())

	next.Provider.Default = "anthropic"
	assert.ErrorIs(t, a.Reload(next), provider.ErrUnknownProvider)
	assert.Equal(t, provider.EchoName, a.Providers().CurrentName())
	assert.Equal(t, provider.EchoName, a.Config().Provider.Default)
}

func TestBuildProviders(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.OpenAI.APIKey = "sk-test"
	cfg.Provider.Ollama.Enabled = true
	cfg.Provider.Anthropic.Enabled = true

	reg := buildProviders(cfg, discard())
	assert.Equal(t, []string{"echo", "ollama", "openai"}, reg.Names())

	p, ok := reg.Get("openai")
	require.True(t, ok)
	_, limited := p.(*provider.RateLimited)
	assert.True(t, limited)

	cfg.Provider.RateLimitEnabled = false
	p, _ = buildProviders(cfg, discard()).Get("ollama")
	_, limited = p.(*provider.RateLimited)
	assert.False(t, limited)
}

type canned string

func (c canned) Name() string { return "canned" }

func (c canned) ProcessMessage(context.Context, string, conversation.Context) (string, error) {
	return string(c), nil
}

func TestExtraProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Permissions.DefaultLevel = "FULL"
	a := newAssistant(t, cfg, WithProvider(canned("The door is locked.")))

	resp := say(a, "/ai config provider canned")
	require.Equal(t, commands.ResponseCommand, resp.Kind, resp.Text)

	resp = say(a, "@ai can I open the door?")
	assert.Equal(t, "The door is locked.", resp.Text)
}

func discard() *log.Logger {
	return log.New(io.Discard)
}
