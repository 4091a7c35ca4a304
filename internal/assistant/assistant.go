// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assistant

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/tabletop-assistant/internal/commands"
	"github.com/jeranaias/tabletop-assistant/internal/config"
	"github.com/jeranaias/tabletop-assistant/internal/conversation"
	"github.com/jeranaias/tabletop-assistant/internal/entity"
	"github.com/jeranaias/tabletop-assistant/internal/gameapi"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/provider"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
	"github.com/jeranaias/tabletop-assistant/internal/session"
	"github.com/jeranaias/tabletop-assistant/internal/storage"
)

// =============================================================================
// ASSISTANT
// =============================================================================

// Assistant owns every component and routes chat messages through them.
type Assistant struct {
	mu  sync.RWMutex
	cfg *config.Config

	logger    *log.Logger
	kv        storage.KV
	perms     *permission.Store
	queue     *queue.Queue
	entities  entity.Store
	game      *gameapi.Handler
	providers *provider.Registry
	history   *conversation.History
	session   *session.Manager
	router    *commands.Router

	extra    []provider.Provider
	onNotify func(queue.Notification)
	done     chan struct{}
	wg       sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *log.Logger) Option {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithKV replaces the configured key-value backend.
func WithKV(kv storage.KV) Option {
	return func(a *Assistant) { a.kv = kv }
}

// WithEntityStore replaces the configured entity store.
func WithEntityStore(s entity.Store) Option {
	return func(a *Assistant) { a.entities = s }
}

// WithProvider registers an extra conversation provider.
func WithProvider(p provider.Provider) Option {
	return func(a *Assistant) {
		a.extra = append(a.extra, p)
	}
}

// WithNotificationHandler receives every finished queue operation.
func WithNotificationHandler(fn func(queue.Notification)) Option {
	return func(a *Assistant) { a.onNotify = fn }
}

// New builds an assistant from cfg. Call Start before routing messages
// that enqueue work, and Close when done.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Assistant, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Assistant{
		cfg:    cfg.Clone(),
		logger: log.New(io.Discard),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.build(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *Assistant) build(ctx context.Context) error {
	cfg := a.cfg

	if a.kv == nil {
		kv, err := openKV(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		a.kv = kv
	}

	level, err := permission.ParseLevel(cfg.Permissions.DefaultLevel)
	if err != nil {
		return err
	}
	a.perms, err = permission.New(
		permission.WithKV(a.kv),
		permission.WithLogger(a.logger.WithPrefix("permissions")),
		permission.WithDefaultLevel(level),
		permission.WithHistoryLimit(cfg.Permissions.HistoryLimit),
		permission.WithCleanupInterval(cfg.CleanupInterval()),
	)
	if err != nil {
		return fmt.Errorf("open permissions: %w", err)
	}

	a.queue = queue.New(
		queue.WithPollInterval(cfg.PollInterval()),
		queue.WithMaxPending(cfg.Queue.MaxPending),
		queue.WithMaxHistory(cfg.Queue.MaxHistory),
		queue.WithLogger(a.logger.WithPrefix("queue")),
	)

	if a.entities == nil {
		store, err := openEntities(cfg.Entities)
		if err != nil {
			return fmt.Errorf("open entities: %w", err)
		}
		a.entities = store
	}
	a.game = gameapi.New(a.entities, a.perms, a.queue, gameapi.WithLogger(a.logger.WithPrefix("game")))

	a.providers = buildProviders(cfg, a.logger)
	for _, p := range a.extra {
		a.providers.Register(p)
	}
	if err := a.providers.Use(cfg.Provider.Default); err != nil {
		a.logger.Warn("default provider unavailable", "provider", cfg.Provider.Default, "err", err)
	}

	a.history = conversation.NewHistory(cfg.General.HistoryLimit)
	a.session = session.NewManager(session.Config{
		AssistantName: cfg.General.AssistantName,
		Timeout:       cfg.SessionTimeout(),
	})
	a.session.SetTimeoutCallback(func(id string) {
		a.logger.Info("session expired, starting a new one", "previous", id)
	})

	systemName := cfg.General.SystemName
	a.router = commands.NewRouter(commands.NewRegistry(), a.perms,
		commands.WithPrefix(cfg.General.CommandPrefix),
		commands.WithMentionToken(cfg.General.MentionToken),
		commands.WithMentions(cfg.General.RespondToMentions),
		commands.WithHistory(a.history),
		commands.WithProviders(a.providers),
		commands.WithWorld(func(ctx context.Context) conversation.World {
			return a.game.World(ctx, systemName)
		}),
		commands.WithSession(a.session),
		commands.WithLogger(a.logger.WithPrefix("router")),
		commands.WithAssistantName(cfg.General.AssistantName),
		commands.WithContextTurns(cfg.General.ContextTurns),
	)
	return commands.RegisterBuiltins(a.router, commands.Builtins{
		Game:        a.game,
		Permissions: a.perms,
		Session:     a.session,
	})
}

// Start launches the operation queue worker.
func (a *Assistant) Start() {
	a.startOnce.Do(func() {
		a.queue.Start()
		a.wg.Add(1)
		go a.drainNotifications()
		a.logger.Info("assistant started",
			"prefix", a.router.Prefix(),
			"provider", a.providers.CurrentName(),
			"level", a.perms.Level(),
		)
	})
}

func (a *Assistant) drainNotifications() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case n := <-a.queue.Notifications():
			if n.Error != "" {
				a.logger.Warn("operation failed", "kind", n.Kind, "collection", n.Collection, "err", n.Error)
			} else {
				a.logger.Debug("operation finished", "kind", n.Kind, "collection", n.Collection, "took", n.Duration)
			}
			if a.onNotify != nil {
				a.onNotify(n)
			}
		}
	}
}

// HandleMessage routes one chat message. A disabled assistant ignores
// everything.
func (a *Assistant) HandleMessage(ctx context.Context, msg commands.Message) commands.Response {
	a.mu.RLock()
	enabled := a.cfg.General.Enabled
	a.mu.RUnlock()
	if !enabled {
		return commands.Response{}
	}
	return a.router.Route(ctx, msg)
}

// Reload applies the settings that can change while running: enabled
// flag, command prefix, mention token and current provider.
func (a *Assistant) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.router.SetPrefix(cfg.General.CommandPrefix, cfg.General.MentionToken)

	var err error
	if cfg.Provider.Default != a.providers.CurrentName() {
		err = a.providers.Use(cfg.Provider.Default)
	}

	a.mu.Lock()
	a.cfg.General.Enabled = cfg.General.Enabled
	a.cfg.General.CommandPrefix = cfg.General.CommandPrefix
	a.cfg.General.MentionToken = cfg.General.MentionToken
	if err == nil {
		a.cfg.Provider.Default = cfg.Provider.Default
	}
	a.mu.Unlock()

	a.logger.Info("configuration reloaded", "prefix", a.router.Prefix(), "provider", a.providers.CurrentName())
	return err
}

// Close stops the queue and releases every store. Safe to call twice.
func (a *Assistant) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.closeErr = a.closeResources()
		a.wg.Wait()
	})
	return a.closeErr
}

func (a *Assistant) closeResources() error {
	var errs []error
	if a.queue != nil {
		a.queue.Stop()
	}
	if a.perms != nil {
		errs = append(errs, a.perms.Close())
	}
	if a.entities != nil {
		errs = append(errs, a.entities.Close())
	}
	if a.kv != nil {
		errs = append(errs, a.kv.Close())
	}
	return errors.Join(errs...)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Router returns the command router.
func (a *Assistant) Router() *commands.Router { return a.router }

// Permissions returns the permission store.
func (a *Assistant) Permissions() *permission.Store { return a.perms }

// Game returns the game API handler.
func (a *Assistant) Game() *gameapi.Handler { return a.game }

// Providers returns the provider registry.
func (a *Assistant) Providers() *provider.Registry { return a.providers }

// Session returns the assistant session.
func (a *Assistant) Session() *session.Manager { return a.session }

// Queue returns the operation queue.
func (a *Assistant) Queue() *queue.Queue { return a.queue }

// Config returns a copy of the active configuration.
func (a *Assistant) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Clone()
}

// =============================================================================
// BACKENDS
// =============================================================================

func openKV(ctx context.Context, sc config.StorageConfig) (storage.KV, error) {
	backend := strings.ToLower(sc.Backend)
	path := sc.Path
	if backend == "" || backend == "file" {
		if path == "" {
			dir, err := config.ConfigDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "state")
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return storage.Open(ctx, storage.Options{
		Backend:   backend,
		Path:      path,
		RedisURL:  sc.RedisURL,
		KeyPrefix: sc.KeyPrefix,
	})
}

func openEntities(ec config.EntityConfig) (entity.Store, error) {
	switch strings.ToLower(ec.Backend) {
	case "", "memory":
		return entity.NewMemoryStore(), nil
	case "sqlite":
		path := ec.Path
		if path == "" {
			dir, err := config.ConfigDir()
			if err != nil {
				return nil, err
			}
			path = filepath.Join(dir, "world.db")
		}
		return entity.OpenSQLite(path)
	}
	return nil, fmt.Errorf("unknown entity backend %q", ec.Backend)
}
