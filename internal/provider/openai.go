// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
)

const (
	OpenAIName         = "openai"
	DefaultOpenAIModel = "gpt-4o-mini"

	OllamaName         = "ollama"
	DefaultOllamaModel = "llama3.2"
	DefaultOllamaURL   = "http://localhost:11434/v1"
)

// OpenAI talks to the OpenAI chat completions API or any compatible
// server, such as Ollama.
type OpenAI struct {
	name   string
	client openai.Client
	cfg    Config
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, failure(OpenAIName, ErrTypeMisconfigured, "API key not configured", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return newCompatible(OpenAIName, cfg), nil
}

// NewOllama creates a provider for a local Ollama server through its
// OpenAI-compatible endpoint.
func NewOllama(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = "ollama"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	return newCompatible(OllamaName, cfg), nil
}

func newCompatible(name string, cfg Config) *OpenAI {
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
	return &OpenAI{name: name, client: openai.NewClient(opts...), cfg: cfg}
}

// Name returns the provider name.
func (p *OpenAI) Name() string { return p.name }

// Model returns the configured model.
func (p *OpenAI) Model() string { return p.cfg.Model }

// ProcessMessage sends the prompt for text and returns the first choice.
func (p *OpenAI) ProcessMessage(ctx context.Context, text string, cc conversation.Context) (string, error) {
	if err := requireModel(p.name, p.cfg); err != nil {
		return "", err
	}
	prompt := BuildPrompt(text, cc, p.cfg.AssistantName)

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(prompt.System)}
	for _, m := range prompt.Messages {
		if m.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:  messages,
		Model:     p.cfg.Model,
		MaxTokens: openai.Int(p.cfg.maxTokens()),
	}
	if p.cfg.Temperature > 0 {
		params.Temperature = openai.Float(p.cfg.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", failure(p.name, ErrTypeRequest, "request failed", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", failure(p.name, ErrTypeNoResponse, "empty response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}
