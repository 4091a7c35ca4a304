// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager() (*Manager, *clock) {
	c := newClock()
	cfg := DefaultConfig()
	cfg.Now = c.Now
	return NewManager(cfg), c
}

// =============================================================================
// CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 30*time.Minute {
		t.Errorf("Default Timeout = %v, want 30m", cfg.Timeout)
	}
	if cfg.WarningBefore != 2*time.Minute {
		t.Errorf("Default WarningBefore = %v, want 2m", cfg.WarningBefore)
	}
	if cfg.AssistantName != "AI Assistant" {
		t.Errorf("Default AssistantName = %q", cfg.AssistantName)
	}
}

func TestNewManager_FillsDefaults(t *testing.T) {
	m := NewManager(Config{})

	if !strings.HasPrefix(m.SessionID(), "sess_") {
		t.Errorf("SessionID should start with 'sess_', got %q", m.SessionID())
	}
	if m.AssistantName() != "AI Assistant" {
		t.Errorf("AssistantName = %q", m.AssistantName())
	}
	if m.StartTime().IsZero() {
		t.Error("StartTime should not be zero")
	}
	if m.RemainingTime() <= 29*time.Minute {
		t.Errorf("RemainingTime = %v, want about 30m", m.RemainingTime())
	}
}

// =============================================================================
// ACTIVITY TESTS
// =============================================================================

func TestManager_RecordMessage(t *testing.T) {
	m, c := newTestManager()

	c.Advance(10 * time.Minute)
	if m.IdleTime() != 10*time.Minute {
		t.Errorf("IdleTime = %v, want 10m", m.IdleTime())
	}

	if m.RecordMessage(ActivityCommand) {
		t.Error("RecordMessage should not renew an active session")
	}
	m.RecordMessage(ActivityMention)
	m.RecordMessage(ActivityPassive)

	st := m.GetStatus()
	if st.IdleTime != 0 {
		t.Errorf("IdleTime after activity = %v, want 0", st.IdleTime)
	}
	if st.Commands != 1 || st.Mentions != 1 || st.Passive != 1 {
		t.Errorf("counters = %d/%d/%d, want 1/1/1", st.Commands, st.Mentions, st.Passive)
	}
	if st.Duration != 10*time.Minute {
		t.Errorf("Duration = %v, want 10m", st.Duration)
	}
}

func TestManager_ExpiryStartsNewSession(t *testing.T) {
	m, c := newTestManager()
	first := m.SessionID()
	m.RecordMessage(ActivityCommand)

	var expired string
	m.SetTimeoutCallback(func(id string) { expired = id })

	c.Advance(30 * time.Minute)
	if !m.IsExpired() {
		t.Fatal("session should be expired after 30m idle")
	}

	if !m.RecordMessage(ActivityMention) {
		t.Error("RecordMessage should start a new session after expiry")
	}
	if m.SessionID() == first {
		t.Error("SessionID should change after renewal")
	}
	if expired != first {
		t.Errorf("timeout callback got %q, want %q", expired, first)
	}

	st := m.GetStatus()
	if st.Commands != 0 || st.Mentions != 1 {
		t.Errorf("counters not reset: commands=%d mentions=%d", st.Commands, st.Mentions)
	}
	if st.Renewals != 1 {
		t.Errorf("Renewals = %d, want 1", st.Renewals)
	}
	if !st.StartTime.Equal(c.Now()) {
		t.Errorf("StartTime = %v, want %v", st.StartTime, c.Now())
	}
}

// =============================================================================
// TIMEOUT TESTS
// =============================================================================

func TestManager_CheckWarnsOnce(t *testing.T) {
	m, c := newTestManager()

	warnings := 0
	var remaining time.Duration
	m.SetWarningCallback(func(r time.Duration) {
		warnings++
		remaining = r
	})

	if !m.Check() {
		t.Fatal("Check should return true initially")
	}
	if warnings != 0 {
		t.Fatal("warning fired too early")
	}

	c.Advance(29 * time.Minute)
	m.Check()
	m.Check()
	if warnings != 1 {
		t.Errorf("warnings = %d, want 1", warnings)
	}
	if remaining != time.Minute {
		t.Errorf("remaining = %v, want 1m", remaining)
	}

	c.Advance(time.Minute)
	if m.Check() {
		t.Error("Check should return false after timeout")
	}
	if m.RemainingTime() != 0 {
		t.Errorf("RemainingTime = %v, want 0", m.RemainingTime())
	}
}

func TestManager_SetTimeout(t *testing.T) {
	m, c := newTestManager()
	m.SetTimeout(time.Minute)
	m.SetTimeout(-1)

	c.Advance(time.Minute)
	if !m.IsExpired() {
		t.Error("session should expire with a 1m timeout")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}

	for _, tc := range tests {
		got := FormatDuration(tc.input)
		if got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.SessionID()
				_ = m.IdleTime()
				_ = m.RemainingTime()
				_ = m.IsExpired()
				_ = m.GetStatus()
				m.RecordMessage(Activity(j % 3))
				m.Check()
			}
		}()
	}
	wg.Wait()

	st := m.GetStatus()
	if st.Commands+st.Mentions+st.Passive != 1000 {
		t.Errorf("total activity = %d, want 1000", st.Commands+st.Mentions+st.Passive)
	}
}
