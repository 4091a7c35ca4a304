// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/tabletop-assistant/internal/storage"
	"github.com/jeranaias/tabletop-assistant/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// StateKey is the storage key holding persisted permission state.
	StateKey = "permissions.state"

	// DefaultHistoryLimit is the number of history entries retained.
	DefaultHistoryLimit = 50

	// DefaultTemporaryDuration is used by Request when no duration is given.
	DefaultTemporaryDuration = 5 * time.Minute

	// DefaultCleanupInterval is the period of the expired-grant sweep.
	DefaultCleanupInterval = time.Minute

	// SystemActor is recorded for changes made by the assistant itself.
	SystemActor = "system"

	stateVersion   = 1
	persistTimeout = 5 * time.Second
)

// =============================================================================
// TYPES
// =============================================================================

// EntryKind distinguishes history records.
type EntryKind string

const (
	EntryGrant EntryKind = "grant"
	EntryLevel EntryKind = "level"
)

// HistoryEntry is an immutable record of a permission change.
type HistoryEntry struct {
	Timestamp     time.Time  `json:"timestamp"`
	Kind          EntryKind  `json:"kind"`
	Capability    Capability `json:"capability,omitempty"`
	Previous      bool       `json:"previous"`
	Value         bool       `json:"value"`
	PreviousLevel string     `json:"previous_level,omitempty"`
	Level         string     `json:"level,omitempty"`
	Actor         string     `json:"actor"`
	Temporary     bool       `json:"temporary,omitempty"`
	AutoGranted   bool       `json:"auto_granted,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}

// TemporaryGrant shadows the permanent value of a capability until ExpiresAt.
type TemporaryGrant struct {
	Capability  Capability
	Value       bool
	GrantedAt   time.Time
	ExpiresAt   time.Time
	GrantedBy   string
	AutoGranted bool

	timer *time.Timer
}

// GrantOptions modify a Grant call.
type GrantOptions struct {
	// Temporary makes the grant expire after Duration.
	Temporary bool
	Duration  time.Duration

	// Force bypasses the modify-permissions check.
	Force bool

	// Actor is recorded in history. Empty means the store's actor.
	Actor string

	Reason      string
	AutoGranted bool
}

// ActiveGrant is a capability currently granted.
type ActiveGrant struct {
	Capability Capability    `json:"capability"`
	Temporary  bool          `json:"temporary"`
	Value      bool          `json:"value"`
	ExpiresAt  time.Time     `json:"expires_at,omitempty"`
	Remaining  time.Duration `json:"remaining,omitempty"`
}

// Validation is the advisory result of Validate.
type Validation struct {
	Valid            bool   `json:"valid"`
	RequiresApproval bool   `json:"requires_approval"`
	Reason           string `json:"reason,omitempty"`
}

// RequestOptions control Request.
type RequestOptions struct {
	AutoApprove bool
	Duration    time.Duration
}

// RequestResult is the outcome of Request.
type RequestResult struct {
	Granted   bool   `json:"granted"`
	Temporary bool   `json:"temporary,omitempty"`
	Pending   bool   `json:"pending,omitempty"`
	Message   string `json:"message"`
}

// Stats summarizes store state.
type Stats struct {
	Level     string `json:"level"`
	Total     int    `json:"total"`
	Active    int    `json:"active"`
	Temporary int    `json:"temporary"`
	History   int    `json:"history"`
}

// persistedState is the on-disk form. Temporary grants are never persisted.
type persistedState struct {
	Version   int                 `json:"version"`
	Level     string              `json:"level"`
	Grants    map[Capability]bool `json:"grants"`
	History   []HistoryEntry      `json:"history"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// =============================================================================
// STORE
// =============================================================================

// Store holds permission levels, grants, temporary grants and history.
type Store struct {
	mu        sync.RWMutex
	level     Level
	grants    map[Capability]bool
	temporary map[Capability]*TemporaryGrant
	history   *util.Ring[HistoryEntry]
	closed    bool

	kv              storage.KV
	logger          *log.Logger
	now             func() time.Time
	actor           string
	defaultLevel    Level
	historyLimit    int
	cleanupInterval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithKV persists state through kv.
func WithKV(kv storage.KV) Option {
	return func(s *Store) { s.kv = kv }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHistoryLimit sets the number of retained history entries.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithDefaultLevel sets the level used for fresh and reset stores.
func WithDefaultLevel(l Level) Option {
	return func(s *Store) {
		if l.valid() {
			s.defaultLevel = l
		}
	}
}

// WithCleanupInterval sets the expired-grant sweep period. Zero disables it.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.cleanupInterval = d
		}
	}
}

// WithActor sets the identity recorded for changes without an explicit actor.
func WithActor(actor string) Option {
	return func(s *Store) {
		if actor != "" {
			s.actor = actor
		}
	}
}

// New creates a store, loading persisted state when a KV is configured.
// A store without saved state starts at the default level (BASIC).
func New(opts ...Option) (*Store, error) {
	s := &Store{
		grants:          make(map[Capability]bool),
		temporary:       make(map[Capability]*TemporaryGrant),
		logger:          log.New(io.Discard),
		now:             time.Now,
		actor:           SystemActor,
		defaultLevel:    LevelBasic,
		historyLimit:    DefaultHistoryLimit,
		cleanupInterval: DefaultCleanupInterval,
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.history = util.NewRing[HistoryEntry](s.historyLimit)

	if err := s.load(); err != nil {
		return nil, err
	}

	if s.cleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}

	return s, nil
}

// load restores persisted state or applies the default level.
func (s *Store) load() error {
	s.applyLevel(s.defaultLevel)
	if s.kv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	data, err := s.kv.Get(ctx, StateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode permissions: %w", err)
	}

	level, err := ParseLevel(state.Level)
	if err != nil {
		s.logger.Warn("saved level unknown, using default", "level", state.Level, "default", s.defaultLevel)
		level = s.defaultLevel
	}
	s.level = level

	s.grants = make(map[Capability]bool, len(state.Grants))
	for c, v := range state.Grants {
		if !c.Known() {
			s.logger.Warn("dropping unknown saved capability", "capability", c)
			continue
		}
		s.grants[c] = v
	}
	for _, e := range state.History {
		s.history.Push(e)
	}

	s.logger.Debug("permissions loaded", "level", s.level, "grants", len(s.grants))
	return nil
}

// savedState is the persisted part of the store, captured before a
// change so a failed save can be undone.
type savedState struct {
	level   Level
	grants  map[Capability]bool
	history []HistoryEntry
}

func (s *Store) snapshotLocked() savedState {
	return savedState{
		level:   s.level,
		grants:  maps.Clone(s.grants),
		history: s.history.Items(),
	}
}

func (s *Store) restoreLocked(st savedState) {
	s.level = st.level
	s.grants = st.grants
	s.history.Clear()
	for _, e := range st.history {
		s.history.Push(e)
	}
}

// commitLocked persists the current state. On failure the store is
// rolled back to before, so callers never see a change that was not saved.
func (s *Store) commitLocked(before savedState) error {
	if err := s.persistLocked(); err != nil {
		s.restoreLocked(before)
		return err
	}
	return nil
}

// persistLocked writes level, grants and history. Caller holds mu.
func (s *Store) persistLocked() error {
	if s.kv == nil {
		return nil
	}
	state := persistedState{
		Version:   stateVersion,
		Level:     s.level.String(),
		Grants:    s.grants,
		History:   s.history.Items(),
		UpdatedAt: s.now(),
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, StateKey, data); err != nil {
		s.logger.Error("failed to save permissions", "err", err)
		return fmt.Errorf("save permissions: %w", err)
	}
	return nil
}

// applyLevel replaces every permanent grant with the tier's capability set.
func (s *Store) applyLevel(l Level) {
	s.level = l
	s.grants = l.Capabilities()
}

// =============================================================================
// QUERIES
// =============================================================================

// Check reports whether c is currently granted. An unexpired temporary
// grant wins over the permanent value; anything unknown is denied.
func (s *Store) Check(c Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok := s.checkLocked(c)
	if !ok {
		s.logger.Debug("permission denied", "capability", c)
	}
	return ok
}

func (s *Store) checkLocked(c Capability) bool {
	if tg, ok := s.temporary[c]; ok && s.now().Before(tg.ExpiresAt) {
		return tg.Value
	}
	return s.grants[c]
}

// Require returns a DeniedError when c is not granted.
func (s *Store) Require(c Capability) error {
	if !s.Check(c) {
		return Denied(c)
	}
	return nil
}

// Level returns the current level.
func (s *Store) Level() Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// History returns at most limit entries, most recent last. A non-positive
// limit returns every retained entry.
func (s *Store) History(limit int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		return s.history.Items()
	}
	return s.history.Last(limit)
}

// Validate flags dangerous capabilities. It is advisory and does not
// affect Check.
func (s *Store) Validate(c Capability) Validation {
	switch {
	case !c.Known():
		return Validation{Valid: false, Reason: "unknown capability"}
	case c.Dangerous():
		s.logger.Warn("dangerous capability requested", "capability", c)
		return Validation{
			Valid:            false,
			RequiresApproval: true,
			Reason:           "requires manual approval by a game master",
		}
	default:
		return Validation{Valid: true}
	}
}

// Active lists granted capabilities: permanent grants set to true and
// unexpired temporary grants.
func (s *Store) Active() []ActiveGrant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked()
}

func (s *Store) activeLocked() []ActiveGrant {
	now := s.now()
	var out []ActiveGrant
	for c, v := range s.grants {
		if v {
			out = append(out, ActiveGrant{Capability: c, Value: true})
		}
	}
	for c, tg := range s.temporary {
		if now.Before(tg.ExpiresAt) {
			out = append(out, ActiveGrant{
				Capability: c,
				Temporary:  true,
				Value:      tg.Value,
				ExpiresAt:  tg.ExpiresAt,
				Remaining:  tg.ExpiresAt.Sub(now),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Capability != out[j].Capability {
			return out[i].Capability < out[j].Capability
		}
		return !out[i].Temporary && out[j].Temporary
	})
	return out
}

// Stats summarizes the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	temp := 0
	now := s.now()
	for _, tg := range s.temporary {
		if now.Before(tg.ExpiresAt) {
			temp++
		}
	}
	return Stats{
		Level:     s.level.String(),
		Total:     len(s.grants),
		Active:    len(s.activeLocked()),
		Temporary: temp,
		History:   s.history.Len(),
	}
}

// CanCreateActors reports whether actors may be created.
func (s *Store) CanCreateActors() bool { return s.Check(CapCreateActor) }

// CanDeleteActors reports whether actors may be deleted.
func (s *Store) CanDeleteActors() bool { return s.Check(CapDeleteActor) }

// CanModifyScenes reports whether scenes may be created or updated.
func (s *Store) CanModifyScenes() bool {
	return s.Check(CapCreateScene) || s.Check(CapUpdateScene)
}

// CanExecuteMacros reports whether macros may run.
func (s *Store) CanExecuteMacros() bool { return s.Check(CapExecuteMacro) }

// CanManageUsers reports whether users may be managed.
func (s *Store) CanManageUsers() bool { return s.Check(CapManageUsers) }

// =============================================================================
// MUTATIONS
// =============================================================================

// SetLevel replaces every permanent grant with the cumulative set of the
// named level. Temporary grants are kept.
func (s *Store) SetLevel(name, actor string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	before := s.snapshotLocked()
	prev := s.level
	s.applyLevel(level)
	s.history.Push(HistoryEntry{
		Timestamp:     s.now(),
		Kind:          EntryLevel,
		PreviousLevel: prev.String(),
		Level:         level.String(),
		Actor:         s.actorOr(actor),
	})
	if err := s.commitLocked(before); err != nil {
		return err
	}
	s.logger.Info("permission level changed", "from", prev, "to", level, "actor", s.actorOr(actor))
	return nil
}

// Grant sets c to value. Without Force the caller must hold
// modify-permissions. Temporary grants replace any earlier temporary
// grant for c and expire after opts.Duration.
func (s *Store) Grant(c Capability, value bool, opts GrantOptions) error {
	if c == "" {
		return fmt.Errorf("%w: empty capability", ErrInvalidArgument)
	}
	if !c.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownCapability, c)
	}
	if opts.Temporary && opts.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidArgument, opts.Duration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !opts.Force && !s.checkLocked(CapModifyPermissions) {
		return Denied(CapModifyPermissions)
	}

	before := s.snapshotLocked()
	actor := s.actorOr(opts.Actor)
	prev := s.checkLocked(c)
	now := s.now()

	if opts.Temporary {
		s.setTemporaryLocked(&TemporaryGrant{
			Capability:  c,
			Value:       value,
			GrantedAt:   now,
			ExpiresAt:   now.Add(opts.Duration),
			GrantedBy:   actor,
			AutoGranted: opts.AutoGranted,
		}, opts.Duration)
	} else {
		s.grants[c] = value
	}

	s.history.Push(HistoryEntry{
		Timestamp:   now,
		Kind:        EntryGrant,
		Capability:  c,
		Previous:    prev,
		Value:       value,
		Actor:       actor,
		Temporary:   opts.Temporary,
		AutoGranted: opts.AutoGranted,
		Reason:      opts.Reason,
	})

	if opts.Temporary {
		s.logger.Info("temporary permission set", "capability", c, "value", value, "duration", opts.Duration, "actor", actor)
		return nil
	}
	if err := s.commitLocked(before); err != nil {
		return err
	}
	s.logger.Info("permission set", "capability", c, "value", value, "actor", actor)
	return nil
}

// Revoke sets c to false.
func (s *Store) Revoke(c Capability, opts GrantOptions) error {
	return s.Grant(c, false, opts)
}

// GrantTemporary installs a system-issued temporary grant. It does not
// require modify-permissions.
func (s *Store) GrantTemporary(c Capability, d time.Duration, value bool) error {
	return s.Grant(c, value, GrantOptions{
		Temporary: true,
		Duration:  d,
		Force:     true,
	})
}

// Request asks for c. Held capabilities are reported as granted; basic
// capabilities are granted temporarily when AutoApprove is set; anything
// else stays pending for a game master.
func (s *Store) Request(c Capability, reason string, opts RequestOptions) RequestResult {
	if s.Check(c) {
		return RequestResult{Granted: true, Message: "permission already granted"}
	}

	s.logger.Info("permission requested", "capability", c, "reason", reason)

	if opts.AutoApprove && c.Basic() {
		d := opts.Duration
		if d <= 0 {
			d = DefaultTemporaryDuration
		}
		err := s.Grant(c, true, GrantOptions{
			Temporary:   true,
			Duration:    d,
			Force:       true,
			Reason:      reason,
			AutoGranted: true,
		})
		if err == nil {
			return RequestResult{Granted: true, Temporary: true, Message: "temporary permission auto-approved"}
		}
		s.logger.Warn("auto-approval failed", "capability", c, "err", err)
	}

	return RequestResult{Pending: true, Message: "request sent to the game masters"}
}

// Reset clears every grant, temporary grant and history entry and returns
// to the default level.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	before := s.snapshotLocked()
	s.history.Clear()
	s.applyLevel(s.defaultLevel)
	if err := s.commitLocked(before); err != nil {
		return err
	}
	for c, tg := range s.temporary {
		tg.timer.Stop()
		delete(s.temporary, c)
	}
	s.logger.Warn("permissions reset", "level", s.defaultLevel)
	return nil
}

// Close stops the expiry sweep and every pending expiry timer.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, tg := range s.temporary {
		tg.timer.Stop()
	}
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// =============================================================================
// TEMPORARY GRANTS
// =============================================================================

// setTemporaryLocked installs tg, replacing and cancelling any prior grant.
func (s *Store) setTemporaryLocked(tg *TemporaryGrant, d time.Duration) {
	if old, ok := s.temporary[tg.Capability]; ok {
		old.timer.Stop()
	}
	tg.timer = time.AfterFunc(d, func() { s.expire(tg) })
	s.temporary[tg.Capability] = tg
}

// expire removes tg if it is still the installed grant for its capability.
func (s *Store) expire(tg *TemporaryGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if cur, ok := s.temporary[tg.Capability]; ok && cur == tg {
		delete(s.temporary, tg.Capability)
		s.logger.Debug("temporary permission expired", "capability", tg.Capability)
	}
}

// sweepExpired drops temporary grants past their expiry.
func (s *Store) sweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for c, tg := range s.temporary {
		if !now.Before(tg.ExpiresAt) {
			tg.timer.Stop()
			delete(s.temporary, c)
			n++
		}
	}
	if n > 0 {
		s.logger.Debug("expired temporary permissions removed", "count", n)
	}
	return n
}

func (s *Store) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Store) actorOr(actor string) string {
	if actor == "" {
		return s.actor
	}
	return actor
}
