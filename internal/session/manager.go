// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION MANAGER
// =============================================================================

// Activity classifies a routed message.
type Activity int

const (
	ActivityPassive Activity = iota
	ActivityCommand
	ActivityMention
)

// Manager tracks the assistant session.
type Manager struct {
	mu sync.Mutex

	// Identity
	assistantName string
	sessionID     string
	startTime     time.Time
	lastActivity  time.Time

	// Timeout configuration
	timeout       time.Duration
	warningBefore time.Duration
	warningShown  bool

	// Counters for the current session
	commands int
	mentions int
	passive  int
	renewals int

	now func() time.Time

	// Callbacks
	onTimeout func(sessionID string)
	onWarning func(remaining time.Duration)
}

// Config holds configuration for the session manager.
type Config struct {
	// AssistantName is the display name of the assistant
	AssistantName string

	// Timeout is the idle period after which a session expires (default: 30 minutes)
	Timeout time.Duration

	// WarningBefore is how long before timeout the warning callback fires (default: 2 minutes)
	WarningBefore time.Duration

	// Now overrides the clock (tests)
	Now func() time.Time
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		AssistantName: "AI Assistant",
		Timeout:       30 * time.Minute,
		WarningBefore: 2 * time.Minute,
	}
}

// NewManager creates a session manager and starts its first session.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.AssistantName == "" {
		cfg.AssistantName = def.AssistantName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.WarningBefore <= 0 || cfg.WarningBefore >= cfg.Timeout {
		cfg.WarningBefore = cfg.Timeout / 15
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	now := cfg.Now()
	return &Manager{
		assistantName: cfg.AssistantName,
		sessionID:     generateSessionID(),
		startTime:     now,
		lastActivity:  now,
		timeout:       cfg.Timeout,
		warningBefore: cfg.WarningBefore,
		now:           cfg.Now,
	}
}

// =============================================================================
// SESSION STATE
// =============================================================================

// AssistantName returns the assistant's display name.
func (m *Manager) AssistantName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assistantName
}

// SessionID returns the current session ID.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// StartTime returns when the session started.
func (m *Manager) StartTime() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTime
}

// IdleTime returns how long since last activity.
func (m *Manager) IdleTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastActivity)
}

// RemainingTime returns time until session timeout.
func (m *Manager) RemainingTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remainingLocked(m.now())
}

func (m *Manager) remainingLocked(now time.Time) time.Duration {
	remaining := m.timeout - now.Sub(m.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// =============================================================================
// ACTIVITY TRACKING
// =============================================================================

// RecordMessage notes a routed message. A message that arrives after the
// session expired starts a new session first. It reports whether a new
// session was started.
func (m *Manager) RecordMessage(kind Activity) bool {
	m.mu.Lock()
	now := m.now()
	var expiredID string
	renewed := false
	if now.Sub(m.lastActivity) >= m.timeout {
		expiredID = m.sessionID
		m.renewLocked(now)
		renewed = true
	}
	m.lastActivity = now
	m.warningShown = false
	switch kind {
	case ActivityCommand:
		m.commands++
	case ActivityMention:
		m.mentions++
	default:
		m.passive++
	}
	onTimeout := m.onTimeout
	m.mu.Unlock()

	if renewed && onTimeout != nil {
		onTimeout(expiredID)
	}
	return renewed
}

func (m *Manager) renewLocked(now time.Time) {
	m.sessionID = generateSessionID()
	m.startTime = now
	m.commands, m.mentions, m.passive = 0, 0, 0
	m.renewals++
}

// =============================================================================
// CALLBACKS
// =============================================================================

// SetTimeoutCallback sets the function called with the ID of a session
// that expired.
func (m *Manager) SetTimeoutCallback(fn func(sessionID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTimeout = fn
}

// SetWarningCallback sets the function called once when a session is
// about to expire.
func (m *Manager) SetWarningCallback(fn func(remaining time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWarning = fn
}

// =============================================================================
// TIMEOUT CHECKING
// =============================================================================

// IsExpired returns true if the session has timed out.
func (m *Manager) IsExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Sub(m.lastActivity) >= m.timeout
}

// Check evaluates session state and fires the warning callback when due.
// Returns true if the session is still valid.
func (m *Manager) Check() bool {
	m.mu.Lock()
	now := m.now()
	idle := now.Sub(m.lastActivity)
	expired := idle >= m.timeout

	shouldWarn := false
	var remaining time.Duration
	if !m.warningShown && !expired && idle >= m.timeout-m.warningBefore {
		shouldWarn = true
		remaining = m.timeout - idle
		m.warningShown = true
	}
	onWarning := m.onWarning
	m.mu.Unlock()

	if shouldWarn && onWarning != nil {
		onWarning(remaining)
	}
	return !expired
}

// SetTimeout updates the timeout duration.
func (m *Manager) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func generateSessionID() string {
	return "sess_" + uuid.NewString()[:8]
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status represents the current session status.
type Status struct {
	AssistantName string        `json:"assistant_name"`
	SessionID     string        `json:"session_id"`
	StartTime     time.Time     `json:"start_time"`
	Duration      time.Duration `json:"duration"`
	IdleTime      time.Duration `json:"idle_time"`
	RemainingTime time.Duration `json:"remaining_time"`
	Commands      int           `json:"commands"`
	Mentions      int           `json:"mentions"`
	Passive       int           `json:"passive"`
	Renewals      int           `json:"renewals"`
	IsExpired     bool          `json:"is_expired"`
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	idle := now.Sub(m.lastActivity)
	return Status{
		AssistantName: m.assistantName,
		SessionID:     m.sessionID,
		StartTime:     m.startTime,
		Duration:      now.Sub(m.startTime),
		IdleTime:      idle,
		RemainingTime: m.remainingLocked(now),
		Commands:      m.commands,
		Mentions:      m.mentions,
		Passive:       m.passive,
		Renewals:      m.renewals,
		IsExpired:     idle >= m.timeout,
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm %ds", mins, secs)
}
