// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
)

const (
	AnthropicName         = "anthropic"
	DefaultAnthropicModel = "claude-3-5-haiku-latest"
)

// Anthropic talks to the Anthropic messages API.
type Anthropic struct {
	client anthropic.Client
	cfg    Config
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, failure(AnthropicName, ErrTypeMisconfigured, "API key not configured", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return &Anthropic{client: anthropic.NewClient(opts...), cfg: cfg}, nil
}

// Name returns "anthropic".
func (p *Anthropic) Name() string { return AnthropicName }

// Model returns the configured model.
func (p *Anthropic) Model() string { return p.cfg.Model }

// ProcessMessage sends the prompt for text and joins the text blocks of
// the reply.
func (p *Anthropic) ProcessMessage(ctx context.Context, text string, cc conversation.Context) (string, error) {
	prompt := BuildPrompt(text, cc, p.cfg.AssistantName)

	var messages []anthropic.MessageParam
	for _, m := range mergeRoles(prompt.Messages) {
		if m.Role == RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.cfg.Model),
		MaxTokens: p.cfg.maxTokens(),
		System:    []anthropic.TextBlockParam{{Text: prompt.System}},
		Messages:  messages,
	}
	if p.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(p.cfg.Temperature)
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", failure(AnthropicName, ErrTypeRequest, "request failed", err)
	}

	var b strings.Builder
	for i := range resp.Content {
		if resp.Content[i].Type == "text" {
			b.WriteString(resp.Content[i].Text)
		}
	}
	if b.Len() == 0 {
		return "", failure(AnthropicName, ErrTypeNoResponse, "empty response", nil)
	}
	return b.String(), nil
}

// mergeRoles joins consecutive messages with the same role and drops a
// leading assistant message, since the messages API expects alternating
// turns that start with the user.
func mergeRoles(in []Message) []Message {
	var out []Message
	for _, m := range in {
		if len(out) == 0 && m.Role == RoleAssistant {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
