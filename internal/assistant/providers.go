// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"github.com/charmbracelet/log"

	"github.com/jeranaias/tabletop-assistant/internal/config"
	"github.com/jeranaias/tabletop-assistant/internal/provider"
)

// buildProviders registers echo plus every network provider that is
// enabled or has a key. Network providers are rate limited when the
// config asks for it.
func buildProviders(cfg *config.Config, logger *log.Logger) *provider.Registry {
	reg := provider.NewRegistry(logger.WithPrefix("provider"))
	reg.Register(provider.Echo{})

	pc := cfg.Provider
	limit := func(p provider.Provider) provider.Provider {
		if !pc.RateLimitEnabled {
			return p
		}
		return provider.NewRateLimited(p, pc.MaxRequestsPerMinute)
	}
	base := func(b config.BackendConfig) provider.Config {
		return provider.Config{
			APIKey:        b.APIKey,
			Model:         b.Model,
			BaseURL:       b.BaseURL,
			MaxTokens:     b.MaxTokens,
			Temperature:   b.Temperature,
			Timeout:       cfg.ProviderTimeout(),
			AssistantName: cfg.General.AssistantName,
			MaxRetries:    pc.MaxRetries,
		}
	}

	if pc.OpenAI.Enabled || pc.OpenAI.APIKey != "" {
		if p, err := provider.NewOpenAI(base(pc.OpenAI)); err != nil {
			logger.Warn("openai provider disabled", "err", err)
		} else {
			reg.Register(limit(p))
		}
	}
	if pc.Anthropic.Enabled || pc.Anthropic.APIKey != "" {
		if p, err := provider.NewAnthropic(base(pc.Anthropic)); err != nil {
			logger.Warn("anthropic provider disabled", "err", err)
		} else {
			reg.Register(limit(p))
		}
	}
	if pc.Ollama.Enabled || pc.Default == provider.OllamaName {
		if p, err := provider.NewOllama(base(pc.Ollama)); err != nil {
			logger.Warn("ollama provider disabled", "err", err)
		} else {
			reg.Register(limit(p))
		}
	}
	return reg
}
