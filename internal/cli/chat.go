// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.
//
// "tabletop chat" opens a REPL that plays the part of a chat log: every
// line is routed exactly like a message posted to the game's chat, so
// /ai commands, @ai mentions and passive messages all behave as they do
// in play.
//
// Examples:
//
//	tabletop chat                        Chat as the default speaker
//	tabletop chat --as Aria --type ic    Speak in character as Aria
//	tabletop chat --watch                Apply config edits while running
//	tabletop chat --transcript notes.md  Save the conversation on exit
//
// Interactive input:
//
//	exit, quit     Leave the session
//	Tab            Complete /ai commands and their arguments
//	Ctrl+C         Discard the current line
//	Ctrl+D         Leave the session
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/tabletop-assistant/internal/assistant"
	"github.com/jeranaias/tabletop-assistant/internal/commands"
	"github.com/jeranaias/tabletop-assistant/internal/config"
	"github.com/jeranaias/tabletop-assistant/internal/export"
	"github.com/jeranaias/tabletop-assistant/internal/queue"
)

// watchDebounce coalesces bursts of editor writes to the config file.
const watchDebounce = 300 * time.Millisecond

// =============================================================================
// INPUT
// =============================================================================

// lineReader yields one line of input per call. io.EOF ends the session.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// ChatInput provides line editing, persistent history and tab completion
// on a terminal.
type ChatInput struct {
	line        *liner.State
	historyFile string
}

// NewChatInput opens the terminal line editor. complete may be nil.
func NewChatInput(complete func(line string) []string) *ChatInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetCompleter(complete)
	}

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &ChatInput{
		line:        line,
		historyFile: filepath.Join(dir, "chat_history"),
	}
	in.loadHistory()
	return in
}

func (c *ChatInput) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadLine prompts for one line. Ctrl+C returns an empty line.
func (c *ChatInput) ReadLine(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory writes history with owner-only permissions.
func (c *ChatInput) saveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatInput) Close() error {
	c.saveHistory()
	return c.line.Close()
}

// scannerInput reads piped input without prompts.
type scannerInput struct {
	scanner *bufio.Scanner
}

func (s *scannerInput) ReadLine(string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerInput) Close() error { return nil }

// =============================================================================
// SESSION
// =============================================================================

// chatSession serializes output from the REPL and the queue notifier.
type chatSession struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *chatSession) println(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, text)
}

func (s *chatSession) notify(n queue.Notification) {
	if n.Error != "" {
		s.println(RenderConditional(ErrorStyle, fmt.Sprintf("[queue] %s failed: %s", n.Description, n.Error)))
		return
	}
	s.println(RenderConditional(DimStyle, fmt.Sprintf("[queue] %s done in %s", n.Description, n.Duration.Round(time.Millisecond))))
}

func (s *chatSession) reply(name string, resp commands.Response) {
	text := RenderResponse(resp)
	if text == "" {
		return
	}
	if resp.Kind == commands.ResponseReply || resp.Kind == commands.ResponseGreeting {
		text = RenderConditional(SpeakerStyle, name+":") + " " + text
	}
	s.println(text)
}

func (a *app) chatCommand() *cobra.Command {
	var (
		flags      messageFlags
		watch      bool
		transcript string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Chat opens a REPL where each line is posted as a chat message.
Lines starting with the command prefix run /ai commands, lines that
mention the assistant get a conversational reply, and everything else
is kept as context for later conversation.`,
		Example: `  tabletop chat
  tabletop chat --as Aria --type ic
  tabletop chat --watch
  tabletop chat --transcript sessions/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess := &chatSession{out: cmd.OutOrStdout()}
			asst, cfg, err := a.open(cmd.Context(), assistant.WithNotificationHandler(sess.notify))
			if err != nil {
				return err
			}
			defer asst.Close()

			if watch {
				w, err := a.watchConfig(asst, sess)
				if err != nil {
					return err
				}
				defer w.Close()
			}

			var input lineReader
			if in, ok := cmd.InOrStdin().(*os.File); ok && in == os.Stdin && IsTTY() {
				router := asst.Router()
				input = NewChatInput(func(line string) []string {
					return commands.NewCompleter(router.Registry(), router.Prefix()).Lines(line)
				})
			} else {
				input = &scannerInput{scanner: bufio.NewScanner(cmd.InOrStdin())}
			}
			defer input.Close()

			if err := a.runChat(cmd.Context(), asst, cfg, input, sess, flags); err != nil {
				return err
			}
			if transcript != "" {
				return saveTranscript(asst, cfg, transcript, sess)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the config file when it changes")
	cmd.Flags().StringVar(&transcript, "transcript", "", "save the conversation to this file or directory on exit (.md or .json)")
	return cmd
}

// runChat is the REPL loop.
func (a *app) runChat(ctx context.Context, asst *assistant.Assistant, cfg *config.Config, input lineReader, sess *chatSession, flags messageFlags) error {
	name := cfg.General.AssistantName
	sess.println(RenderConditional(TitleStyle, fmt.Sprintf("%s is listening. Type %s help for commands, exit to leave.",
		name, asst.Router().Prefix())))

	prompt := RenderConditional(PromptStyle, flags.speaker+"> ")
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := input.ReadLine(prompt)
		if errors.Is(err, io.EOF) {
			sess.println(RenderConditional(DimStyle, "Goodbye."))
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			sess.println(RenderConditional(DimStyle, "Goodbye."))
			return nil
		}

		resp := asst.HandleMessage(ctx, flags.message(line))
		sess.reply(name, resp)
	}
}

// watchConfig reloads the assistant whenever the config file changes.
func (a *app) watchConfig(asst *assistant.Assistant, sess *chatSession) (*config.Watcher, error) {
	path, err := a.configPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return config.Watch(path, watchDebounce,
		func(cfg *config.Config) {
			if err := asst.Reload(cfg); err != nil {
				sess.println(RenderConditional(WarningStyle, "Config reloaded with errors: "+err.Error()))
				return
			}
			sess.println(RenderConditional(DimStyle, "Config reloaded."))
		},
		func(err error) {
			a.logger.Warn("config watch", "path", path, "err", err)
		},
	)
}

// saveTranscript exports the conversation history. A directory target
// gets a generated Markdown file name.
func saveTranscript(asst *assistant.Assistant, cfg *config.Config, target string, sess *chatSession) error {
	turns := asst.Router().History().Recent(0)
	if len(turns) == 0 {
		sess.println(RenderConditional(DimStyle, "Nothing to save, the transcript is empty."))
		return nil
	}
	t := export.NewTranscript(turns, export.Session{
		ID:        asst.Session().SessionID(),
		Assistant: cfg.General.AssistantName,
		System:    cfg.General.SystemName,
		StartedAt: asst.Session().StartTime(),
	})

	path := target
	if info, err := os.Stat(target); (err == nil && info.IsDir()) || strings.HasSuffix(target, string(os.PathSeparator)) {
		path = filepath.Join(target, export.DefaultFilename(t, ".md"))
	}
	if err := export.ExportToFile(t, path, nil); err != nil {
		return err
	}
	sess.println(RenderConditional(SuccessStyle, "Transcript saved to "+path))
	return nil
}
