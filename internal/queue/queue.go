// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrOperationFailed wraps every error produced by a queued operation.
	ErrOperationFailed = errors.New("operation failed")

	// ErrQueueFull is returned by Enqueue when MaxPending is reached.
	ErrQueueFull = errors.New("queue is full")

	// ErrStopped is returned for operations submitted to, or left in, a
	// stopped queue.
	ErrStopped = errors.New("queue stopped")

	// ErrInvalidOperation is returned for nil or already submitted operations.
	ErrInvalidOperation = errors.New("invalid operation")
)

// OperationError describes a rejected operation. It matches both
// ErrOperationFailed and the underlying cause under errors.Is.
type OperationError struct {
	ID         string
	Kind       Kind
	Collection string
	Err        error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.Collection, e.Err)
}

// Unwrap exposes the sentinel and the cause.
func (e *OperationError) Unwrap() []error {
	return []error{ErrOperationFailed, e.Err}
}

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPollInterval is how often an idle worker looks for work.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultMaxHistory is the number of finished operations kept for status.
	DefaultMaxHistory = 50

	notificationBuffer = 100
)

// =============================================================================
// QUEUE
// =============================================================================

// Notification reports a finished operation.
type Notification struct {
	ID          string
	Kind        Kind
	Collection  string
	Description string
	Status      Status
	Error       string
	Duration    time.Duration
}

// Stats summarizes queue activity.
type Stats struct {
	Pending    int  `json:"pending"`
	Processing bool `json:"processing"`
	Processed  int  `json:"processed"`
	Failed     int  `json:"failed"`
	Canceled   int  `json:"canceled"`
}

// Queue is a single-consumer FIFO of operations.
type Queue struct {
	mu        sync.Mutex
	pending   []*Operation
	history   []*Operation
	current   *Operation
	processed int
	failed    int
	canceled  int

	maxPending   int
	maxHistory   int
	pollInterval time.Duration
	opTimeout    time.Duration
	logger       *log.Logger

	wake       chan struct{}
	notifyChan chan Notification
	stop       chan struct{}
	started    atomic.Bool
	stopped    atomic.Bool
	wg         sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithPollInterval sets how often an idle worker polls for work.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithMaxPending bounds the number of waiting operations (0 = unlimited).
func WithMaxPending(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxPending = n
		}
	}
}

// WithMaxHistory bounds the finished operations kept for status (0 = none).
func WithMaxHistory(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxHistory = n
		}
	}
}

// WithOperationTimeout bounds the context handed to each operation
// (0 = no timeout).
func WithOperationTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.opTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// New creates a stopped queue. Call Start to begin draining.
func New(opts ...Option) *Queue {
	q := &Queue{
		maxHistory:   DefaultMaxHistory,
		pollInterval: DefaultPollInterval,
		logger:       log.New(io.Discard),
		wake:         make(chan struct{}, 1),
		notifyChan:   make(chan Notification, notificationBuffer),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start launches the worker. Calling Start more than once has no effect.
func (q *Queue) Start() {
	if q.stopped.Load() || !q.started.CompareAndSwap(false, true) {
		return
	}
	q.wg.Add(1)
	go q.processLoop()
}

// Stop waits for the running operation to finish, then rejects every
// pending operation with ErrStopped.
func (q *Queue) Stop() {
	if !q.stopped.CompareAndSwap(false, true) {
		return
	}
	close(q.stop)
	q.wg.Wait()

	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, op := range pending {
		op.finish(StatusCanceled, nil, ErrStopped)
		q.record(op)
	}
	if len(pending) > 0 {
		q.logger.Warn("queue stopped with pending operations", "count", len(pending))
	}
	q.logger.Debug("queue stopped")
}

// =============================================================================
// ENQUEUE
// =============================================================================

// Enqueue appends op to the tail and returns a handle that resolves when
// it completes. Enqueue never blocks.
func (q *Queue) Enqueue(op *Operation) (*Handle, error) {
	if op == nil || op.Execute == nil {
		return nil, fmt.Errorf("%w: missing execute function", ErrInvalidOperation)
	}
	if st := op.GetStatus(); st != "" && st != StatusQueued {
		return nil, fmt.Errorf("%w: operation already %s", ErrInvalidOperation, st)
	}

	q.mu.Lock()
	if q.stopped.Load() {
		q.mu.Unlock()
		return nil, ErrStopped
	}
	for _, p := range q.pending {
		if p == op {
			q.mu.Unlock()
			return nil, fmt.Errorf("%w: operation already queued", ErrInvalidOperation)
		}
	}
	if q.maxPending > 0 && len(q.pending) >= q.maxPending {
		n := len(q.pending)
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %d pending operations (max: %d)", ErrQueueFull, n, q.maxPending)
	}
	op.markEnqueued()
	q.pending = append(q.pending, op)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	return &Handle{op: op}, nil
}

// Submit builds an operation, enqueues it and waits for the result.
func (q *Queue) Submit(ctx context.Context, kind Kind, collection string, execute ExecuteFunc) (any, error) {
	h, err := q.Enqueue(NewOperation(kind, collection, execute))
	if err != nil {
		return nil, err
	}
	return h.Wait(ctx)
}

// =============================================================================
// PROCESSING
// =============================================================================

// processLoop drains the queue whenever it is woken or the poll ticker fires.
func (q *Queue) processLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stop:
			return
		case <-q.wake:
		case <-ticker.C:
		}
		q.drain()
	}
}

// drain runs pending operations one at a time until none remain or the
// queue is stopped.
func (q *Queue) drain() {
	for !q.stopped.Load() {
		op := q.next()
		if op == nil {
			return
		}
		q.run(op)
	}
}

func (q *Queue) next() *Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	op := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.current = op
	return op
}

// run executes op, converting errors and panics into a rejected handle.
func (q *Queue) run(op *Operation) {
	op.markStarted()

	ctx := context.Background()
	var cancel context.CancelFunc
	if q.opTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, q.opTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	result, err := q.execute(ctx, op)
	if err != nil {
		opErr := &OperationError{ID: op.ID, Kind: op.Kind, Collection: op.Collection, Err: err}
		op.finish(StatusFailed, nil, opErr)
		q.logger.Warn("operation failed", "id", op.ID, "kind", op.Kind, "collection", op.Collection, "err", err)
	} else {
		op.finish(StatusComplete, result, nil)
		q.logger.Debug("operation complete", "id", op.ID, "kind", op.Kind, "collection", op.Collection)
	}

	q.mu.Lock()
	q.current = nil
	q.mu.Unlock()
	q.record(op)
}

func (q *Queue) execute(ctx context.Context, op *Operation) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op.Execute(ctx)
}

// record updates counters, history and notifications for a finished op.
func (q *Queue) record(op *Operation) {
	in := op.info()

	q.mu.Lock()
	switch in.Status {
	case StatusComplete:
		q.processed++
	case StatusFailed:
		q.failed++
	case StatusCanceled:
		q.canceled++
	}
	if q.maxHistory > 0 {
		q.history = append(q.history, op)
		if over := len(q.history) - q.maxHistory; over > 0 {
			q.history = append([]*Operation(nil), q.history[over:]...)
		}
	}
	q.mu.Unlock()

	q.notify(Notification{
		ID:          in.ID,
		Kind:        in.Kind,
		Collection:  in.Collection,
		Description: in.Description,
		Status:      in.Status,
		Error:       in.Error,
		Duration:    in.Duration,
	})
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notifications returns the channel of finished-operation notifications.
func (q *Queue) Notifications() <-chan Notification {
	return q.notifyChan
}

func (q *Queue) notify(n Notification) {
	select {
	case q.notifyChan <- n:
	default:
		q.logger.Warn("notification channel full, dropping notification", "id", n.ID, "status", n.Status)
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// Len returns the number of pending operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:    len(q.pending),
		Processing: q.current != nil,
		Processed:  q.processed,
		Failed:     q.failed,
		Canceled:   q.canceled,
	}
}

// Pending returns snapshots of waiting operations in execution order.
func (q *Queue) Pending() []Info {
	q.mu.Lock()
	ops := append([]*Operation(nil), q.pending...)
	q.mu.Unlock()

	out := make([]Info, len(ops))
	for i, op := range ops {
		out[i] = op.info()
	}
	return out
}

// Recent returns snapshots of up to n finished operations, oldest first.
// A non-positive n returns all retained operations.
func (q *Queue) Recent(n int) []Info {
	q.mu.Lock()
	ops := q.history
	if n > 0 && n < len(ops) {
		ops = ops[len(ops)-n:]
	}
	ops = append([]*Operation(nil), ops...)
	q.mu.Unlock()

	out := make([]Info, len(ops))
	for i, op := range ops {
		out[i] = op.info()
	}
	return out
}

// Summary returns a one-line description of the queue.
func (q *Queue) Summary() string {
	s := q.Stats()
	state := "idle"
	if s.Processing {
		state = "busy"
	}
	return fmt.Sprintf("Queue %s | Pending: %d | Completed: %d | Failed: %d",
		state, s.Pending, s.Processed, s.Failed)
}
