// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"regexp"
	"strings"
)

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult contains the result of parsing a chat message.
type ParseResult struct {
	// IsCommand is true if the text starts with the command prefix
	IsCommand bool

	// CommandName is the first word after the prefix, lowercased
	CommandName string

	// Args are the whitespace-split arguments
	Args []string

	// RawArgs is the unparsed arguments portion
	RawArgs string
}

// =============================================================================
// PARSER
// =============================================================================

// Parser recognizes commands and mentions in chat text.
type Parser struct {
	prefix  string
	token   string
	mention *regexp.Regexp
}

// NewParser creates a parser for the given command prefix and mention
// token. An empty token disables mentions.
func NewParser(prefix, mentionToken string) *Parser {
	p := &Parser{prefix: prefix, token: mentionToken}
	if mentionToken != "" {
		p.mention = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(mentionToken))
	}
	return p
}

// Prefix returns the command prefix.
func (p *Parser) Prefix() string {
	return p.prefix
}

// MentionToken returns the mention token, or "" when mentions are off.
func (p *Parser) MentionToken() string {
	return p.token
}

// Parse splits a command. Text without the prefix returns IsCommand=false.
// The prefix must be followed by whitespace or the end of the text.
func (p *Parser) Parse(text string) ParseResult {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, p.prefix) {
		return ParseResult{}
	}
	rest := text[len(p.prefix):]
	if rest != "" && !startsWithSpace(rest) {
		return ParseResult{}
	}

	rest = strings.TrimSpace(rest)
	result := ParseResult{IsCommand: true}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return result
	}
	result.CommandName = strings.ToLower(fields[0])
	result.Args = fields[1:]
	result.RawArgs = strings.TrimSpace(rest[len(fields[0]):])
	return result
}

// Mention reports whether text contains the mention token and returns
// the text with every occurrence removed.
func (p *Parser) Mention(text string) (string, bool) {
	if p.mention == nil || !p.mention.MatchString(text) {
		return "", false
	}
	stripped := p.mention.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(stripped), " "), true
}

func startsWithSpace(s string) bool {
	switch s[0] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// SplitArgs splits on whitespace. Quotes are not interpreted.
func SplitArgs(input string) []string {
	return strings.Fields(input)
}
