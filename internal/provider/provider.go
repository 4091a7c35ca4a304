// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider adapts conversation backends (OpenAI, Anthropic, Ollama
// and a local echo provider) to a single ProcessMessage contract.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
)

// =============================================================================
// CONTRACT
// =============================================================================

// Provider turns a free-text message and its conversation context into a
// reply.
type Provider interface {
	Name() string
	ProcessMessage(ctx context.Context, text string, cc conversation.Context) (string, error)
}

// Config holds the settings shared by the network providers.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// AssistantName is the speaker name used for assistant turns
	AssistantName string

	// MaxRetries is passed to the SDK client (negative = SDK default)
	MaxRetries int
}

// DefaultMaxTokens is used when Config.MaxTokens is unset.
const DefaultMaxTokens = 1000

func (c Config) maxTokens() int64 {
	if c.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return int64(c.MaxTokens)
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrProviderFailure is wrapped by every error a provider returns.
var ErrProviderFailure = errors.New("provider failure")

var (
	// ErrUnknownProvider is returned when selecting an unregistered provider.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNoProvider is returned when no provider is selected.
	ErrNoProvider = errors.New("no provider configured")
)

// ErrorType categorizes provider errors.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeRequest
	ErrTypeNoResponse
	ErrTypeRateLimited
	ErrTypeMisconfigured
)

// Error is returned by providers. It always matches ErrProviderFailure.
type Error struct {
	Provider string
	Type     ErrorType
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Provider + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes ErrProviderFailure and the cause.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrProviderFailure}
	}
	return []error{ErrProviderFailure, e.Cause}
}

func failure(provider string, typ ErrorType, msg string, cause error) error {
	return &Error{Provider: provider, Type: typ, Message: msg, Cause: cause}
}

// IsRateLimited reports whether err came from a provider rate limit.
func IsRateLimited(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Type == ErrTypeRateLimited
}

func requireModel(provider string, cfg Config) error {
	if cfg.Model == "" {
		return failure(provider, ErrTypeMisconfigured, fmt.Sprintf("no model configured for %s", provider), nil)
	}
	return nil
}
