// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// tabletop assistant.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/tabletop-assistant/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete assistant configuration.
type Config struct {
	General     GeneralConfig    `toml:"general" json:"general"`
	Permissions PermissionConfig `toml:"permissions" json:"permissions"`
	Queue       QueueConfig      `toml:"queue" json:"queue"`
	Provider    ProviderConfig   `toml:"provider" json:"provider"`
	Storage     StorageConfig    `toml:"storage" json:"storage"`
	Entities    EntityConfig     `toml:"entities" json:"entities"`
	Session     SessionConfig    `toml:"session" json:"session"`
	Server      ServerConfig     `toml:"server" json:"server"`
}

// GeneralConfig holds routing and identity settings.
type GeneralConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	Debug   bool `toml:"debug" json:"debug"`

	// CommandPrefix starts a command, e.g. "/ai help"
	CommandPrefix string `toml:"command_prefix" json:"command_prefix"`

	// MentionToken addresses the assistant in free text, e.g. "@ai"
	MentionToken      string `toml:"mention_token" json:"mention_token"`
	RespondToMentions bool   `toml:"respond_to_mentions" json:"respond_to_mentions"`

	HistoryLimit  int    `toml:"history_limit" json:"history_limit"`
	ContextTurns  int    `toml:"context_turns" json:"context_turns"`
	AssistantName string `toml:"assistant_name" json:"assistant_name"`
	SystemName    string `toml:"system_name" json:"system_name"`
}

// PermissionConfig holds permission store settings.
type PermissionConfig struct {
	DefaultLevel                string `toml:"default_level" json:"default_level"`
	HistoryLimit                int    `toml:"history_limit" json:"history_limit"`
	TemporaryDuration           string `toml:"temporary_duration" json:"temporary_duration"`
	CleanupInterval             string `toml:"cleanup_interval" json:"cleanup_interval"`
	RequireApprovalForDangerous bool   `toml:"require_approval_for_dangerous" json:"require_approval_for_dangerous"`
}

// QueueConfig holds operation queue settings.
type QueueConfig struct {
	PollInterval string `toml:"poll_interval" json:"poll_interval"`

	// MaxPending caps queued operations (0 = unlimited)
	MaxPending int `toml:"max_pending" json:"max_pending"`
	MaxHistory int `toml:"max_history" json:"max_history"`
}

// ProviderConfig selects and configures conversation providers.
type ProviderConfig struct {
	Default              string `toml:"default" json:"default"`
	RateLimitEnabled     bool   `toml:"rate_limit_enabled" json:"rate_limit_enabled"`
	MaxRequestsPerMinute int    `toml:"max_requests_per_minute" json:"max_requests_per_minute"`
	Timeout              string `toml:"timeout" json:"timeout"`
	MaxRetries           int    `toml:"max_retries" json:"max_retries"`

	OpenAI    BackendConfig `toml:"openai" json:"openai"`
	Anthropic BackendConfig `toml:"anthropic" json:"anthropic"`
	Ollama    BackendConfig `toml:"ollama" json:"ollama"`
}

// BackendConfig configures one network provider.
type BackendConfig struct {
	Enabled     bool    `toml:"enabled" json:"enabled"`
	APIKey      string  `toml:"api_key" json:"api_key"`
	Model       string  `toml:"model" json:"model"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`
	Temperature float64 `toml:"temperature" json:"temperature"`
	BaseURL     string  `toml:"base_url" json:"base_url"`
}

// StorageConfig selects the key-value sink for persisted state.
type StorageConfig struct {
	Backend   string `toml:"backend" json:"backend"`
	Path      string `toml:"path" json:"path"`
	RedisURL  string `toml:"redis_url" json:"redis_url"`
	KeyPrefix string `toml:"key_prefix" json:"key_prefix"`
}

// EntityConfig selects the entity store.
type EntityConfig struct {
	Backend string `toml:"backend" json:"backend"`
	Path    string `toml:"path" json:"path"`
}

// SessionConfig holds assistant session settings.
type SessionConfig struct {
	Timeout string `toml:"timeout" json:"timeout"`
}

// ServerConfig holds the HTTP bridge settings used by "tabletop serve".
type ServerConfig struct {
	Listen string `toml:"listen" json:"listen"`

	// AuthToken enables bearer-token authentication when set
	AuthToken string `toml:"auth_token" json:"auth_token"`

	AllowedOrigins    []string `toml:"allowed_origins" json:"allowed_origins"`
	AllowedIPs        []string `toml:"allowed_ips" json:"allowed_ips"`
	RequestsPerMinute int      `toml:"requests_per_minute" json:"requests_per_minute"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			Enabled:           true,
			CommandPrefix:     "/ai",
			MentionToken:      "@ai",
			RespondToMentions: true,
			HistoryLimit:      100,
			ContextTurns:      10,
			AssistantName:     "AI Assistant",
			SystemName:        "D&D 5e",
		},
		Permissions: PermissionConfig{
			DefaultLevel:                "BASIC",
			HistoryLimit:                50,
			TemporaryDuration:           "5m",
			CleanupInterval:             "1m",
			RequireApprovalForDangerous: true,
		},
		Queue: QueueConfig{
			PollInterval: "100ms",
			MaxHistory:   50,
		},
		Provider: ProviderConfig{
			Default:              "echo",
			RateLimitEnabled:     true,
			MaxRequestsPerMinute: 30,
			Timeout:              "60s",
			MaxRetries:           2,
			OpenAI:               BackendConfig{Model: "gpt-4o-mini", MaxTokens: 1000, Temperature: 0.7},
			Anthropic:            BackendConfig{Model: "claude-3-5-haiku-latest", MaxTokens: 1000, Temperature: 0.7},
			Ollama:               BackendConfig{Model: "llama3.2", MaxTokens: 1000, Temperature: 0.7, BaseURL: "http://localhost:11434/v1"},
		},
		Storage: StorageConfig{
			Backend:   "file",
			KeyPrefix: "tabletop:",
		},
		Entities: EntityConfig{
			Backend: "memory",
		},
		Session: SessionConfig{
			Timeout: "30m",
		},
		Server: ServerConfig{
			Listen:            "127.0.0.1:8787",
			AllowedOrigins:    []string{"http://localhost:30000", "http://127.0.0.1:30000"},
			RequestsPerMinute: 120,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".tabletop"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens config files to 0600 since they may
// hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// EnvOverrideKeys lists every environment variable ApplyEnvOverrides reads.
var EnvOverrideKeys = []string{
	"TABLETOP_PREFIX",
	"TABLETOP_DEBUG",
	"TABLETOP_PERMISSION_LEVEL",
	"TABLETOP_PROVIDER",
	"TABLETOP_OPENAI_KEY",
	"OPENAI_API_KEY",
	"TABLETOP_ANTHROPIC_KEY",
	"ANTHROPIC_API_KEY",
	"TABLETOP_OLLAMA_URL",
	"TABLETOP_REDIS_URL",
	"TABLETOP_ENTITY_DB",
	"TABLETOP_SERVER_TOKEN",
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads ~/.tabletop/config.toml, then config.json, falling back to
// defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a TOML or JSON file and applies
// environment overrides. Missing keys keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFromPath loads exactly what the file holds, without environment
// overrides. Use it when the result is saved back to disk, so secrets
// from the environment never end up in the file.
func ReadFromPath(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decodeFile reads path over the defaults.
func decodeFile(path string) (*Config, error) {
	cfg := Default()
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON config from %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config from %s: %w", path, err)
		}
	} else {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TOML config from %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %v\n", path, undecoded)
		}
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# tabletop assistant configuration\n")
	b.WriteString("# Generated by tabletop - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, []byte(b.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validLevels   = map[string]bool{"NONE": true, "BASIC": true, "STANDARD": true, "ADVANCED": true, "FULL": true}
	validProvider = map[string]bool{"echo": true, "openai": true, "anthropic": true, "ollama": true, "": true}
	validStorage  = map[string]bool{"memory": true, "file": true, "redis": true}
	validEntities = map[string]bool{"memory": true, "sqlite": true}
)

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// General
	if strings.TrimSpace(c.General.CommandPrefix) == "" || strings.ContainsAny(c.General.CommandPrefix, " \t") {
		add("general.command_prefix", "must be non-empty and contain no whitespace")
	}
	if c.General.RespondToMentions && strings.TrimSpace(c.General.MentionToken) == "" {
		add("general.mention_token", "must be set when respond_to_mentions is enabled")
	}
	if c.General.HistoryLimit < 1 || c.General.HistoryLimit > 10000 {
		add("general.history_limit", "must be between 1 and 10000, got %d", c.General.HistoryLimit)
	}
	if c.General.ContextTurns < 0 || c.General.ContextTurns > c.General.HistoryLimit {
		add("general.context_turns", "must be between 0 and history_limit, got %d", c.General.ContextTurns)
	}

	// Permissions
	if !validLevels[strings.ToUpper(c.Permissions.DefaultLevel)] {
		add("permissions.default_level", "invalid level '%s', must be one of: NONE, BASIC, STANDARD, ADVANCED, FULL", c.Permissions.DefaultLevel)
	}
	if c.Permissions.HistoryLimit < 1 {
		add("permissions.history_limit", "must be positive, got %d", c.Permissions.HistoryLimit)
	}
	validateDuration(&errs, "permissions.temporary_duration", c.Permissions.TemporaryDuration, false)
	validateDuration(&errs, "permissions.cleanup_interval", c.Permissions.CleanupInterval, true)

	// Queue
	validateDuration(&errs, "queue.poll_interval", c.Queue.PollInterval, false)
	if c.Queue.MaxPending < 0 {
		add("queue.max_pending", "must not be negative, got %d", c.Queue.MaxPending)
	}
	if c.Queue.MaxHistory < 0 {
		add("queue.max_history", "must not be negative, got %d", c.Queue.MaxHistory)
	}

	// Provider
	if !validProvider[strings.ToLower(c.Provider.Default)] {
		add("provider.default", "unknown provider '%s', must be one of: echo, openai, anthropic, ollama", c.Provider.Default)
	}
	if c.Provider.RateLimitEnabled && c.Provider.MaxRequestsPerMinute < 1 {
		add("provider.max_requests_per_minute", "must be positive when rate limiting is enabled")
	}
	validateDuration(&errs, "provider.timeout", c.Provider.Timeout, true)
	for name, b := range map[string]BackendConfig{"openai": c.Provider.OpenAI, "anthropic": c.Provider.Anthropic, "ollama": c.Provider.Ollama} {
		if b.Temperature < 0 || b.Temperature > 2 {
			add("provider."+name+".temperature", "must be between 0 and 2, got %g", b.Temperature)
		}
		if b.MaxTokens < 0 {
			add("provider."+name+".max_tokens", "must not be negative, got %d", b.MaxTokens)
		}
	}

	// Storage and entities
	if !validStorage[strings.ToLower(c.Storage.Backend)] {
		add("storage.backend", "invalid backend '%s', must be one of: memory, file, redis", c.Storage.Backend)
	}
	if strings.EqualFold(c.Storage.Backend, "redis") && c.Storage.RedisURL == "" {
		add("storage.redis_url", "required for the redis backend")
	}
	if !validEntities[strings.ToLower(c.Entities.Backend)] {
		add("entities.backend", "invalid backend '%s', must be one of: memory, sqlite", c.Entities.Backend)
	}

	// Session
	validateDuration(&errs, "session.timeout", c.Session.Timeout, false)

	// Server
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		add("server.listen", "must be host:port, got '%s'", c.Server.Listen)
	}
	if c.Server.RequestsPerMinute < 0 {
		add("server.requests_per_minute", "must not be negative, got %d", c.Server.RequestsPerMinute)
	}

	if len(errs) == 0 {
		return nil
	}
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

func validateDuration(errs *ValidateErrors, field, value string, allowZero bool) {
	d, err := time.ParseDuration(value)
	switch {
	case err != nil:
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration '%s'", value)})
	case d < 0 || (d == 0 && !allowZero):
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("must be positive, got %s", value)})
	}
}

// =============================================================================
// DURATION ACCESSORS
// =============================================================================

func parseOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// TemporaryDuration returns the default duration of temporary grants.
func (c *Config) TemporaryDuration() time.Duration {
	return parseOr(c.Permissions.TemporaryDuration, 5*time.Minute)
}

// CleanupInterval returns the expired-grant sweep interval.
func (c *Config) CleanupInterval() time.Duration {
	return parseOr(c.Permissions.CleanupInterval, time.Minute)
}

// PollInterval returns the queue poll interval.
func (c *Config) PollInterval() time.Duration {
	return parseOr(c.Queue.PollInterval, 100*time.Millisecond)
}

// ProviderTimeout returns the provider request timeout.
func (c *Config) ProviderTimeout() time.Duration {
	return parseOr(c.Provider.Timeout, time.Minute)
}

// SessionTimeout returns the assistant session idle timeout.
func (c *Config) SessionTimeout() time.Duration {
	return parseOr(c.Session.Timeout, 30*time.Minute)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TABLETOP_PREFIX: overrides general.command_prefix
//   - TABLETOP_DEBUG: "1" or "true" enables debug logging
//   - TABLETOP_PERMISSION_LEVEL: overrides permissions.default_level
//   - TABLETOP_PROVIDER: overrides provider.default
//   - TABLETOP_OPENAI_KEY / OPENAI_API_KEY: overrides provider.openai.api_key
//   - TABLETOP_ANTHROPIC_KEY / ANTHROPIC_API_KEY: overrides provider.anthropic.api_key
//   - TABLETOP_OLLAMA_URL: overrides provider.ollama.base_url
//   - TABLETOP_REDIS_URL: overrides storage.redis_url and selects the redis backend
//   - TABLETOP_ENTITY_DB: overrides entities.path and selects the sqlite backend
//   - TABLETOP_SERVER_TOKEN: overrides server.auth_token
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TABLETOP_PREFIX"); v != "" {
		c.General.CommandPrefix = v
	}
	if v := os.Getenv("TABLETOP_DEBUG"); v != "" {
		c.General.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("TABLETOP_PERMISSION_LEVEL"); v != "" {
		c.Permissions.DefaultLevel = v
	}
	if v := os.Getenv("TABLETOP_PROVIDER"); v != "" {
		c.Provider.Default = v
	}
	if v := firstEnv("TABLETOP_OPENAI_KEY", "OPENAI_API_KEY"); v != "" {
		c.Provider.OpenAI.APIKey = v
	}
	if v := firstEnv("TABLETOP_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"); v != "" {
		c.Provider.Anthropic.APIKey = v
	}
	if v := os.Getenv("TABLETOP_OLLAMA_URL"); v != "" {
		c.Provider.Ollama.BaseURL = v
	}
	if v := os.Getenv("TABLETOP_REDIS_URL"); v != "" {
		c.Storage.Backend = "redis"
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("TABLETOP_SERVER_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("TABLETOP_ENTITY_DB"); v != "" {
		c.Entities.Backend = "sqlite"
		c.Entities.Path = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g. "queue.poll_interval").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an arbitrary value with type conversion.
func setFieldValue(field reflect.Value, value any) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && field.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns every configuration key in dot notation.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := strings.Split(f.Tag.Get("toml"), ",")[0]
			if name == "" {
				continue
			}
			if f.Type.Kind() == reflect.Struct {
				walk(f.Type, prefix+name+".")
				continue
			}
			keys = append(keys, prefix+name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	clone.Server.AllowedIPs = append([]string(nil), c.Server.AllowedIPs...)
	return &clone
}

// String renders the config as JSON with API keys redacted.
func (c *Config) String() string {
	safe := c.Clone()
	for _, b := range []*BackendConfig{&safe.Provider.OpenAI, &safe.Provider.Anthropic, &safe.Provider.Ollama} {
		if b.APIKey != "" {
			b.APIKey = "[REDACTED]"
		}
	}
	if safe.Server.AuthToken != "" {
		safe.Server.AuthToken = "[REDACTED]"
	}
	if safe.Storage.RedisURL != "" {
		safe.Storage.RedisURL = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
