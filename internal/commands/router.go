// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
	"github.com/jeranaias/tabletop-assistant/internal/permission"
	"github.com/jeranaias/tabletop-assistant/internal/provider"
	"github.com/jeranaias/tabletop-assistant/internal/session"
)

// =============================================================================
// MESSAGES AND RESPONSES
// =============================================================================

// Message is an inbound chat message.
type Message struct {
	Speaker   string
	Content   string
	Type      string
	Timestamp time.Time
}

// ResponseKind classifies the outcome of routing a message.
type ResponseKind int

const (
	// ResponseNone means the message produced no reply
	ResponseNone ResponseKind = iota
	ResponseCommand
	ResponseUnknownCommand
	ResponseDenied
	ResponseError
	ResponseGreeting
	ResponseReply
	ResponseNoProvider
	ResponseApology
)

var responseKindNames = [...]string{
	"none", "command", "unknown-command", "denied", "error",
	"greeting", "reply", "no-provider", "apology",
}

func (k ResponseKind) String() string {
	if int(k) < len(responseKindNames) {
		return responseKindNames[k]
	}
	return fmt.Sprintf("ResponseKind(%d)", int(k))
}

// Response is the text to deliver back to chat.
type Response struct {
	Kind    ResponseKind
	Text    string
	Command string
}

// Replied reports whether the response carries text to deliver.
func (r Response) Replied() bool {
	return r.Kind != ResponseNone
}

// =============================================================================
// ROUTER
// =============================================================================

// Checker answers capability checks.
type Checker interface {
	Check(c permission.Capability) bool
}

// WorldFunc describes the game world for conversation context.
type WorldFunc func(ctx context.Context) conversation.World

const greeting = "Hello! How can I help? Use %s help to see the available commands."

const apology = "Sorry, something went wrong while processing your message. Please try again."

// Router routes chat messages to commands, the conversation provider or
// the rolling history.
type Router struct {
	registry  *Registry
	parserMu  sync.RWMutex
	parser    *Parser
	perms     Checker
	history   *conversation.History
	providers *provider.Registry
	world     WorldFunc
	session   *session.Manager
	logger    *log.Logger

	assistantName     string
	contextTurns      int
	respondToMentions bool
}

// Option configures a Router.
type Option func(*Router)

// WithPrefix sets the command prefix (default "/ai").
func WithPrefix(prefix string) Option {
	return func(r *Router) {
		if prefix != "" {
			r.parser = NewParser(prefix, r.parser.MentionToken())
		}
	}
}

// WithMentionToken sets the mention token (default "@ai"). An empty
// token disables the mention path.
func WithMentionToken(token string) Option {
	return func(r *Router) {
		r.parser = NewParser(r.parser.Prefix(), token)
		r.respondToMentions = token != ""
	}
}

// WithMentions enables or disables the mention path.
func WithMentions(enabled bool) Option {
	return func(r *Router) { r.respondToMentions = enabled }
}

// WithHistory sets the rolling conversation history.
func WithHistory(h *conversation.History) Option {
	return func(r *Router) {
		if h != nil {
			r.history = h
		}
	}
}

// WithProviders sets the conversation provider registry.
func WithProviders(p *provider.Registry) Option {
	return func(r *Router) { r.providers = p }
}

// WithWorld sets the world description source.
func WithWorld(fn WorldFunc) Option {
	return func(r *Router) {
		if fn != nil {
			r.world = fn
		}
	}
}

// WithSession records routed messages on the assistant session.
func WithSession(s *session.Manager) Option {
	return func(r *Router) { r.session = s }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAssistantName sets the speaker name used for provider replies.
func WithAssistantName(name string) Option {
	return func(r *Router) {
		if name != "" {
			r.assistantName = name
		}
	}
}

// WithContextTurns sets how many history turns go to the provider.
func WithContextTurns(k int) Option {
	return func(r *Router) {
		if k > 0 {
			r.contextTurns = k
		}
	}
}

// NewRouter creates a router. perms gates every command.
func NewRouter(registry *Registry, perms Checker, opts ...Option) *Router {
	r := &Router{
		registry:          registry,
		parser:            NewParser("/ai", "@ai"),
		perms:             perms,
		history:           conversation.NewHistory(conversation.DefaultHistoryLimit),
		world:             func(context.Context) conversation.World { return conversation.World{} },
		logger:            log.New(io.Discard),
		assistantName:     provider.DefaultAssistantName,
		contextTurns:      conversation.DefaultContextTurns,
		respondToMentions: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the command registry.
func (r *Router) Registry() *Registry { return r.registry }

// History returns the rolling conversation history.
func (r *Router) History() *conversation.History { return r.history }

// Prefix returns the command prefix.
func (r *Router) Prefix() string { return r.currentParser().Prefix() }

// MentionToken returns the mention token, or "" when mentions are off.
func (r *Router) MentionToken() string {
	if !r.respondToMentions {
		return ""
	}
	return r.currentParser().MentionToken()
}

// SetPrefix replaces the command prefix and mention token while the
// router is in use. Empty values keep the current setting.
func (r *Router) SetPrefix(prefix, mentionToken string) {
	r.parserMu.Lock()
	defer r.parserMu.Unlock()
	if prefix == "" {
		prefix = r.parser.Prefix()
	}
	if mentionToken == "" {
		mentionToken = r.parser.MentionToken()
	}
	r.parser = NewParser(prefix, mentionToken)
}

func (r *Router) currentParser() *Parser {
	r.parserMu.RLock()
	defer r.parserMu.RUnlock()
	return r.parser
}

// Providers returns the provider registry, which may be nil.
func (r *Router) Providers() *provider.Registry { return r.providers }

// Route handles one inbound message. Errors never escape; every failure
// becomes a response.
func (r *Router) Route(ctx context.Context, msg Message) Response {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	parser := r.currentParser()
	if parsed := parser.Parse(msg.Content); parsed.IsCommand {
		r.recordActivity(session.ActivityCommand)
		return r.dispatch(ctx, parsed, msg)
	}

	if r.respondToMentions {
		if text, ok := parser.Mention(msg.Content); ok {
			r.recordActivity(session.ActivityMention)
			if text == "" {
				return Response{Kind: ResponseGreeting, Text: fmt.Sprintf(greeting, r.Prefix())}
			}
			return r.Converse(ctx, text, msg, conversation.KindOrdinary)
		}
	}

	r.recordActivity(session.ActivityPassive)
	if conversation.IsDialogue(msg.Type) {
		r.history.Append(conversation.Turn{
			Timestamp:   msg.Timestamp,
			Speaker:     speakerOf(msg),
			Content:     msg.Content,
			Kind:        conversation.KindOrdinary,
			MessageType: msg.Type,
		})
	}
	return Response{}
}

func (r *Router) dispatch(ctx context.Context, parsed ParseResult, msg Message) Response {
	name := parsed.CommandName
	if name == "" {
		name = "help"
	}

	cmd := r.registry.Get(name)
	if cmd == nil {
		return Response{
			Kind:    ResponseUnknownCommand,
			Command: name,
			Text:    fmt.Sprintf("Command \"%s\" not recognized. Use %s help to see the available commands.", name, r.Prefix()),
		}
	}

	// Checked on every call; grants may be temporary.
	if !r.perms.Check(cmd.Capability) {
		r.logger.Debug("command denied", "command", name, "capability", cmd.Capability)
		return Response{
			Kind:    ResponseDenied,
			Command: name,
			Text:    fmt.Sprintf("Insufficient permission to run \"%s\". Required permission: %s", name, cmd.Capability),
		}
	}

	inv := &Invocation{Name: name, Args: parsed.Args, RawArgs: parsed.RawArgs, Message: msg}
	r.logger.Debug("dispatching command", "command", name, "args", len(parsed.Args))
	text, err := r.invoke(ctx, cmd, inv)
	if err != nil {
		r.logger.Error("command failed", "command", name, "err", err)
		return Response{Kind: ResponseError, Command: name, Text: "Error running command: " + userMessage(err)}
	}
	return Response{Kind: ResponseCommand, Command: name, Text: text}
}

func (r *Router) invoke(ctx context.Context, cmd *Command, inv *Invocation) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("internal error in %s", cmd.Name)
			r.logger.Error("command panicked", "command", cmd.Name, "panic", p)
		}
	}()
	return cmd.Handler(ctx, inv)
}

// Converse sends free text to the current provider. A successful reply
// appends the user's text (as kind) and the reply to the history; a
// failure leaves the history unchanged.
func (r *Router) Converse(ctx context.Context, text string, msg Message, kind conversation.Kind) Response {
	if r.providers == nil {
		return r.noProvider()
	}
	p, err := r.providers.Current()
	if err != nil {
		return r.noProvider()
	}

	speaker := speakerOf(msg)
	cc := conversation.Build(r.history, r.world(ctx), speaker, r.contextTurns)
	reply, err := p.ProcessMessage(ctx, text, cc)
	if err != nil {
		r.logger.Error("provider failed", "provider", p.Name(), "err", err)
		return Response{Kind: ResponseApology, Text: apology}
	}

	now := time.Now()
	r.history.Append(
		conversation.Turn{Timestamp: msg.Timestamp, Speaker: speaker, Content: text, Kind: kind, MessageType: msg.Type},
		conversation.Turn{Timestamp: now, Speaker: r.assistantName, Content: reply, Kind: conversation.KindMentionReply},
	)
	return Response{Kind: ResponseReply, Text: reply}
}

func (r *Router) noProvider() Response {
	return Response{
		Kind: ResponseNoProvider,
		Text: fmt.Sprintf("No AI provider configured. Use %s config provider <name> to choose one.", r.Prefix()),
	}
}

func (r *Router) recordActivity(a session.Activity) {
	if r.session != nil {
		r.session.RecordMessage(a)
	}
}

// =============================================================================
// STATS
// =============================================================================

// Stats summarizes router state.
type Stats struct {
	Commands        int      `json:"commands"`
	HistoryLength   int      `json:"history_length"`
	Providers       []string `json:"providers"`
	CurrentProvider string   `json:"current_provider"`
}

// Stats returns router statistics.
func (r *Router) Stats() Stats {
	st := Stats{Commands: r.registry.Len(), HistoryLength: r.history.Len()}
	if r.providers != nil {
		st.Providers = r.providers.Names()
		st.CurrentProvider = r.providers.CurrentName()
	}
	return st
}

// =============================================================================
// HELPERS
// =============================================================================

func speakerOf(msg Message) string {
	if msg.Speaker == "" {
		return "Unknown"
	}
	return msg.Speaker
}

// userMessage renders an error for chat. Permission failures name the
// missing capability; other errors use their message.
func userMessage(err error) string {
	var denied *permission.DeniedError
	if errors.As(err, &denied) {
		return "insufficient permission: " + string(denied.Capability)
	}
	return err.Error()
}
