// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package queue serializes mutating operations against the entity store.
//
// A single worker drains operations strictly in FIFO order and runs at
// most one at a time. A failing or panicking operation rejects only its
// own handle; the worker moves on to the next one. Operations are never
// retried.
//
// # Usage
//
//	q := queue.New(queue.WithLogger(logger))
//	q.Start()
//	defer q.Stop()
//
//	h, err := q.Enqueue(queue.NewOperation(queue.KindCreate, "actors", func(ctx context.Context) (any, error) {
//	    return store.Create(ctx, "actors", doc)
//	}))
//	result, err := h.Wait(ctx)
//
// Enqueue never blocks. Callers race their own timeout against Wait.
package queue
