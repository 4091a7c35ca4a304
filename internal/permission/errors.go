// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package permission

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownLevel is returned for level names that are not registered.
	ErrUnknownLevel = errors.New("unknown permission level")

	// ErrInsufficientPermission is returned when the caller lacks a capability.
	ErrInsufficientPermission = errors.New("insufficient permission")

	// ErrInvalidArgument is returned for malformed permission-management calls.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownCapability is returned for capability names outside the
	// closed set. It matches ErrInvalidArgument under errors.Is.
	ErrUnknownCapability = fmt.Errorf("%w: unknown capability", ErrInvalidArgument)

	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("permission store closed")
)

// DeniedError reports which capability was missing.
type DeniedError struct {
	Capability Capability
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("insufficient permission: requires %s", e.Capability)
}

// Unwrap lets errors.Is match ErrInsufficientPermission.
func (e *DeniedError) Unwrap() error {
	return ErrInsufficientPermission
}

// Denied returns a DeniedError for c.
func Denied(c Capability) error {
	return &DeniedError{Capability: c}
}
