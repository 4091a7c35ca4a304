// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/tabletop-assistant/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// =============================================================================
// LEVELS
// =============================================================================

func TestNew_DefaultsToBasic(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, LevelBasic, s.Level())
	assert.True(t, s.Check(CapSendMessage))
	assert.True(t, s.Check(CapRollDice))
	assert.False(t, s.Check(CapCreateActor))
	assert.Empty(t, s.History(0))
}

func TestCheck_FailClosed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetLevel("NONE", ""))

	for _, c := range All() {
		assert.False(t, s.Check(c), "capability %s", c)
	}
	assert.False(t, s.Check(Capability("not-a-capability")))
	assert.False(t, s.Check(""))
}

func TestSetLevel_MonotonicInheritance(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetLevel("ADVANCED", "gm"))

	for _, l := range []Level{LevelBasic, LevelStandard, LevelAdvanced} {
		for c := range l.Capabilities() {
			assert.True(t, s.Check(c), "%s capability %s", l, c)
		}
	}
	for _, c := range tiers[LevelFull].adds {
		assert.False(t, s.Check(c), "full-only capability %s", c)
	}
}

func TestLevels_CapabilitySetsGrow(t *testing.T) {
	for l := LevelBasic; l <= LevelFull; l++ {
		lower := (l - 1).Capabilities()
		upper := l.Capabilities()
		assert.Greater(t, len(upper), len(lower), "level %s", l)
		for c := range lower {
			assert.True(t, upper[c], "%s missing %s inherited from %s", l, c, l-1)
		}
	}
	assert.Empty(t, LevelNone.Capabilities())
	assert.Len(t, Levels(), 5)
	assert.Equal(t, 4, LevelFull.Info().Rank)
}

func TestSetLevel_UnknownLevel(t *testing.T) {
	s := newTestStore(t)

	err := s.SetLevel("GODMODE", "")
	assert.ErrorIs(t, err, ErrUnknownLevel)
	assert.Equal(t, LevelBasic, s.Level())
	assert.Empty(t, s.History(0))
}

func TestSetLevel_CaseInsensitiveAndRecorded(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetLevel("standard", "gm"))

	assert.Equal(t, LevelStandard, s.Level())
	h := s.History(0)
	require.Len(t, h, 1)
	assert.Equal(t, EntryLevel, h[0].Kind)
	assert.Equal(t, "BASIC", h[0].PreviousLevel)
	assert.Equal(t, "STANDARD", h[0].Level)
	assert.Equal(t, "gm", h[0].Actor)
}

func TestSetLevel_ReplacesPermanentGrantsKeepsTemporary(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Grant(CapManageUsers, true, GrantOptions{Force: true}))
	require.NoError(t, s.GrantTemporary(CapDeleteActor, time.Hour, true))

	require.NoError(t, s.SetLevel("BASIC", ""))

	assert.False(t, s.Check(CapManageUsers), "permanent override replaced")
	assert.True(t, s.Check(CapDeleteActor), "temporary grant kept")
}

// =============================================================================
// GRANTS
// =============================================================================

func TestGrant_RequiresModifyPermissions(t *testing.T) {
	s := newTestStore(t)

	err := s.Grant(CapCreateActor, true, GrantOptions{})
	require.ErrorIs(t, err, ErrInsufficientPermission)

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, CapModifyPermissions, denied.Capability)
	assert.False(t, s.Check(CapCreateActor))
	assert.Empty(t, s.History(0))
}

func TestGrant_AllowedWithModifyPermissions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetLevel("FULL", ""))
	require.NoError(t, s.Grant(CapCreateActor, false, GrantOptions{Actor: "gm", Reason: "no new actors"}))

	assert.False(t, s.Check(CapCreateActor))

	h := s.History(1)
	require.Len(t, h, 1)
	assert.Equal(t, CapCreateActor, h[0].Capability)
	assert.True(t, h[0].Previous)
	assert.False(t, h[0].Value)
	assert.Equal(t, "gm", h[0].Actor)
	assert.Equal(t, "no new actors", h[0].Reason)
}

func TestGrant_InvalidArguments(t *testing.T) {
	s := newTestStore(t)

	tests := []struct {
		name string
		cap  Capability
		opts GrantOptions
		want error
	}{
		{"empty capability", "", GrantOptions{Force: true}, ErrInvalidArgument},
		{"unknown capability", "fly", GrantOptions{Force: true}, ErrUnknownCapability},
		{"zero duration", CapCreateActor, GrantOptions{Force: true, Temporary: true}, ErrInvalidArgument},
		{"negative duration", CapCreateActor, GrantOptions{Force: true, Temporary: true, Duration: -time.Second}, ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Grant(tt.cap, true, tt.opts)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.ErrorIs(t, ErrUnknownCapability, ErrInvalidArgument)
	assert.Empty(t, s.History(0))
}

func TestRevoke(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Revoke(CapRollDice, GrantOptions{Force: true}))
	assert.False(t, s.Check(CapRollDice))
}

// =============================================================================
// TEMPORARY GRANTS
// =============================================================================

func TestGrantTemporary_ExpiresAfterDuration(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.GrantTemporary(CapCreateActor, 100*time.Millisecond, true))
	assert.True(t, s.Check(CapCreateActor))

	time.Sleep(150 * time.Millisecond)
	assert.False(t, s.Check(CapCreateActor))
}

func TestGrantTemporary_ShadowsPermanentValue(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, WithClock(clock.Now))

	require.NoError(t, s.GrantTemporary(CapRollDice, time.Hour, false))
	assert.False(t, s.Check(CapRollDice), "temporary deny shadows permanent grant")

	clock.Advance(time.Hour)
	assert.True(t, s.Check(CapRollDice), "expired grant is absent, permanent value applies")
}

func TestGrantTemporary_LaterGrantWins(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, WithClock(clock.Now))

	require.NoError(t, s.GrantTemporary(CapCreateActor, 10*time.Minute, true))
	require.NoError(t, s.GrantTemporary(CapCreateActor, time.Hour, false))

	var temps []ActiveGrant
	for _, g := range s.Active() {
		if g.Temporary {
			temps = append(temps, g)
		}
	}
	require.Len(t, temps, 1)
	assert.False(t, temps[0].Value)
	assert.Equal(t, time.Hour, temps[0].Remaining)
	assert.False(t, s.Check(CapCreateActor))

	clock.Advance(30 * time.Minute)
	assert.False(t, s.Check(CapCreateActor), "first grant no longer applies")
}

func TestGrantTemporary_ReplacedTimerDoesNotRemoveNewGrant(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.GrantTemporary(CapCreateActor, 50*time.Millisecond, true))
	require.NoError(t, s.GrantTemporary(CapCreateActor, time.Hour, true))

	time.Sleep(100 * time.Millisecond)
	assert.True(t, s.Check(CapCreateActor))
}

func TestGrantTemporary_NotPersisted(t *testing.T) {
	kv := storage.NewMemoryKV()
	s := newTestStore(t, WithKV(kv))

	require.NoError(t, s.GrantTemporary(CapCreateActor, time.Hour, true))
	_, err := kv.Get(context.Background(), StateKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, WithClock(clock.Now), WithCleanupInterval(0))

	require.NoError(t, s.GrantTemporary(CapCreateActor, time.Minute, true))
	require.NoError(t, s.GrantTemporary(CapDeleteActor, time.Hour, true))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, s.sweepExpired())
	assert.Equal(t, 1, s.Stats().Temporary)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_RingKeepsLastFifty(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 60; i++ {
		require.NoError(t, s.Grant(CapCreateItem, i%2 == 0, GrantOptions{
			Force:  true,
			Reason: fmt.Sprintf("grant-%d", i),
		}))
	}

	h := s.History(50)
	require.Len(t, h, 50)
	for i, e := range h {
		assert.Equal(t, fmt.Sprintf("grant-%d", i+10), e.Reason)
	}

	assert.Len(t, s.History(5), 5)
	assert.Equal(t, "grant-59", s.History(1)[0].Reason)
	assert.Len(t, s.History(500), 50)
}

// =============================================================================
// VALIDATION AND REQUESTS
// =============================================================================

func TestValidate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetLevel("FULL", ""))

	for _, c := range []Capability{
		CapDeleteAnyDocument, CapExecuteArbitraryCode, CapModifySettings,
		CapManageUsers, CapFilesystemAccess, CapNetworkAccess,
	} {
		v := s.Validate(c)
		assert.False(t, v.Valid, "capability %s", c)
		assert.True(t, v.RequiresApproval, "capability %s", c)
		assert.True(t, s.Check(c), "validate is advisory only")
	}

	assert.True(t, s.Validate(CapCreateActor).Valid)
	assert.False(t, s.Validate("fly").Valid)
}

func TestRequest(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetLevel("NONE", ""))

	res := s.Request(CapRollDice, "combat", RequestOptions{AutoApprove: true})
	assert.True(t, res.Granted)
	assert.True(t, res.Temporary)
	assert.True(t, s.Check(CapRollDice))
	last := s.History(1)[0]
	assert.True(t, last.AutoGranted)
	assert.Equal(t, "combat", last.Reason)

	res = s.Request(CapRollDice, "", RequestOptions{})
	assert.True(t, res.Granted)
	assert.False(t, res.Temporary)

	res = s.Request(CapCreateActor, "new npc", RequestOptions{AutoApprove: true})
	assert.False(t, res.Granted)
	assert.True(t, res.Pending)
	assert.False(t, s.Check(CapCreateActor))
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestPersistence_RoundTrip(t *testing.T) {
	kv := storage.NewMemoryKV()

	s1, err := New(WithKV(kv))
	require.NoError(t, err)
	require.NoError(t, s1.SetLevel("ADVANCED", "gm"))
	require.NoError(t, s1.Grant(CapManageUsers, true, GrantOptions{Force: true}))
	require.NoError(t, s1.GrantTemporary(CapNetworkAccess, time.Hour, true))
	require.NoError(t, s1.Close())

	s2 := newTestStore(t, WithKV(kv))
	assert.Equal(t, LevelAdvanced, s2.Level())
	assert.True(t, s2.Check(CapManageUsers))
	assert.False(t, s2.Check(CapNetworkAccess))
	assert.Len(t, s2.History(0), 2, "history saved with the last permanent change")
}

func TestPersistence_UnknownSavedValuesIgnored(t *testing.T) {
	kv := storage.NewMemoryKV()
	data, err := json.Marshal(persistedState{
		Version: 1,
		Level:   "LEGENDARY",
		Grants:  map[Capability]bool{"fly": true, CapRollDice: true},
	})
	require.NoError(t, err)
	require.NoError(t, kv.Set(context.Background(), StateKey, data))

	s := newTestStore(t, WithKV(kv))
	assert.Equal(t, LevelBasic, s.Level())
	assert.True(t, s.Check(CapRollDice))
	assert.False(t, s.Check("fly"))
}

func TestPersistence_CorruptState(t *testing.T) {
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(context.Background(), StateKey, []byte("{not json")))

	_, err := New(WithKV(kv))
	assert.Error(t, err)
}

// flakyKV fails every Set while broken is true.
type flakyKV struct {
	*storage.MemoryKV
	mu     sync.Mutex
	broken bool
}

func (f *flakyKV) setBroken(b bool) {
	f.mu.Lock()
	f.broken = b
	f.mu.Unlock()
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func TestPersistence_FailedSaveRollsBack(t *testing.T) {
	kv := &flakyKV{MemoryKV: storage.NewMemoryKV()}
	s := newTestStore(t, WithKV(kv))
	require.NoError(t, s.Grant(CapCreateActor, true, GrantOptions{Force: true, Actor: "gm"}))
	kv.setBroken(true)

	err := s.SetLevel("FULL", "gm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, LevelBasic, s.Level())
	assert.False(t, s.Check(CapManageUsers))
	assert.True(t, s.Check(CapCreateActor), "earlier saved grant survives")
	assert.Len(t, s.History(0), 1)

	require.Error(t, s.Grant(CapDeleteActor, true, GrantOptions{Force: true}))
	assert.False(t, s.Check(CapDeleteActor))
	require.Error(t, s.Revoke(CapCreateActor, GrantOptions{Force: true}))
	assert.True(t, s.Check(CapCreateActor))
	assert.Len(t, s.History(0), 1)

	require.NoError(t, s.GrantTemporary(CapExecuteMacro, time.Hour, true))
	require.Error(t, s.Reset())
	assert.True(t, s.Check(CapExecuteMacro), "temporary grants kept when reset is not saved")
	assert.True(t, s.Check(CapCreateActor))

	kv.setBroken(false)
	require.NoError(t, s.SetLevel("FULL", "gm"))
	assert.True(t, s.Check(CapManageUsers))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestReset(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetLevel("FULL", ""))
	require.NoError(t, s.GrantTemporary(CapRollDice, time.Hour, false))

	require.NoError(t, s.Reset())

	assert.Equal(t, LevelBasic, s.Level())
	assert.True(t, s.Check(CapRollDice))
	assert.Empty(t, s.History(0))
	assert.Equal(t, 0, s.Stats().Temporary)
}

func TestClose(t *testing.T) {
	s, err := New(WithCleanupInterval(10 * time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, s.GrantTemporary(CapCreateActor, time.Hour, true))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.SetLevel("FULL", ""), ErrClosed)
	assert.ErrorIs(t, s.GrantTemporary(CapDeleteActor, time.Minute, true), ErrClosed)
	assert.True(t, s.Check(CapSendMessage), "queries still answer after close")
}

func TestStatsAndConvenience(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetLevel("ADVANCED", ""))

	assert.True(t, s.CanCreateActors())
	assert.True(t, s.CanDeleteActors())
	assert.True(t, s.CanModifyScenes())
	assert.True(t, s.CanExecuteMacros())
	assert.False(t, s.CanManageUsers())

	st := s.Stats()
	assert.Equal(t, "ADVANCED", st.Level)
	assert.Equal(t, len(LevelAdvanced.Capabilities()), st.Total)
	assert.Equal(t, st.Total, st.Active)
	assert.Equal(t, 1, st.History)

	assert.NoError(t, s.Require(CapCreateActor))
	assert.ErrorIs(t, s.Require(CapManageUsers), ErrInsufficientPermission)
}

// =============================================================================
// CAPABILITIES
// =============================================================================

func TestParseCapability(t *testing.T) {
	tests := []struct {
		in   string
		want Capability
	}{
		{"create-actor", CapCreateActor},
		{"createActor", CapCreateActor},
		{"CreateActor", CapCreateActor},
		{"SEND_MESSAGE", CapSendMessage},
		{"accessFileSystem", CapFilesystemAccess},
		{"importFromCompendium", CapImportFromCompendium},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCapability(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCapability("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ParseCapability("teleport")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestCapabilityFlags(t *testing.T) {
	assert.True(t, CapNetworkAccess.Dangerous())
	assert.False(t, CapCreateActor.Dangerous())
	assert.True(t, CapRollDice.Basic())
	assert.False(t, CapSendWhisper.Basic())
	assert.Len(t, All(), len(LevelFull.Capabilities()))
}
