// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the --json output format shared by every command.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is when the response was generated (RFC 3339, UTC)
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful JSON response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response, indented, to w.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
