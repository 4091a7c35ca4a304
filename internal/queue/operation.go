// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// OPERATION KIND AND STATUS
// =============================================================================

// Kind is the kind of mutation an operation performs.
type Kind string

const (
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindExecute Kind = "execute"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	// StatusQueued indicates the operation is waiting for the worker
	StatusQueued Status = "Queued"

	// StatusRunning indicates the worker is executing the operation
	StatusRunning Status = "Running"

	// StatusComplete indicates the operation resolved
	StatusComplete Status = "Complete"

	// StatusFailed indicates the operation was rejected
	StatusFailed Status = "Failed"

	// StatusCanceled indicates the queue stopped before the operation ran
	StatusCanceled Status = "Canceled"
)

func (s Status) String() string {
	return string(s)
}

// IsFinal reports whether no further transitions are possible.
func (s Status) IsFinal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCanceled
}

// =============================================================================
// OPERATION
// =============================================================================

// ExecuteFunc performs the work of an operation.
type ExecuteFunc func(ctx context.Context) (any, error)

// Operation is a unit of mutating work.
type Operation struct {
	// ID is a unique identifier for this operation
	ID string

	Kind       Kind
	Collection string

	// Description is a human-readable summary used in logs and status
	Description string

	// Payload is the data the operation was built from
	Payload any

	// Execute runs on the queue worker
	Execute ExecuteFunc

	status     Status
	enqueuedAt time.Time
	startTime  time.Time
	endTime    time.Time
	result     any
	err        error
	done       chan struct{}

	mu sync.RWMutex
}

// NewOperation creates an operation for collection.
func NewOperation(kind Kind, collection string, execute ExecuteFunc) *Operation {
	return &Operation{
		ID:         uuid.New().String(),
		Kind:       kind,
		Collection: collection,
		Execute:    execute,
		status:     StatusQueued,
		done:       make(chan struct{}),
	}
}

// WithDescription sets the description and returns op.
func (op *Operation) WithDescription(desc string) *Operation {
	op.Description = desc
	return op
}

// WithPayload sets the payload and returns op.
func (op *Operation) WithPayload(payload any) *Operation {
	op.Payload = payload
	return op
}

// GetStatus returns the current status.
func (op *Operation) GetStatus() Status {
	op.mu.RLock()
	defer op.mu.RUnlock()
	return op.status
}

// Duration returns how long the operation ran, or has been running.
func (op *Operation) Duration() time.Duration {
	op.mu.RLock()
	defer op.mu.RUnlock()
	if op.startTime.IsZero() {
		return 0
	}
	if op.endTime.IsZero() {
		return time.Since(op.startTime)
	}
	return op.endTime.Sub(op.startTime)
}

func (op *Operation) markEnqueued() {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.done == nil {
		op.done = make(chan struct{})
	}
	op.status = StatusQueued
	op.enqueuedAt = time.Now()
}

func (op *Operation) markStarted() {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.status = StatusRunning
	op.startTime = time.Now()
}

// finish records the outcome and releases waiters. Later calls are ignored.
func (op *Operation) finish(status Status, result any, err error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.status.IsFinal() {
		return
	}
	op.status = status
	op.result = result
	op.err = err
	op.endTime = time.Now()
	close(op.done)
}

// Info is a read-only snapshot of an operation.
type Info struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	Collection  string        `json:"collection"`
	Description string        `json:"description,omitempty"`
	Status      Status        `json:"status"`
	Error       string        `json:"error,omitempty"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	Duration    time.Duration `json:"duration"`
}

func (op *Operation) info() Info {
	op.mu.RLock()
	defer op.mu.RUnlock()
	in := Info{
		ID:          op.ID,
		Kind:        op.Kind,
		Collection:  op.Collection,
		Description: op.Description,
		Status:      op.status,
		EnqueuedAt:  op.enqueuedAt,
	}
	if op.err != nil {
		in.Error = op.err.Error()
	}
	if !op.startTime.IsZero() && !op.endTime.IsZero() {
		in.Duration = op.endTime.Sub(op.startTime)
	}
	return in
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle resolves when its operation completes.
type Handle struct {
	op *Operation
}

// ID returns the operation ID.
func (h *Handle) ID() string {
	return h.op.ID
}

// Done is closed when the operation resolves or is rejected.
func (h *Handle) Done() <-chan struct{} {
	return h.op.done
}

// Status returns the operation status.
func (h *Handle) Status() Status {
	return h.op.GetStatus()
}

// Wait blocks until the operation completes or ctx is done. A context
// error does not cancel the operation.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.op.done:
		h.op.mu.RLock()
		defer h.op.mu.RUnlock()
		return h.op.result, h.op.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
