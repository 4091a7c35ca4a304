// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

// Ring is a fixed-capacity FIFO buffer. Pushing onto a full ring evicts the
// oldest element. Ring is not safe for concurrent use; owners guard it.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest element
	size  int
}

// NewRing returns an empty ring holding at most capacity elements.
// A capacity below one is raised to one.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v. When the ring was full the evicted element is returned
// with ok set to true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = v
		r.size++
		return evicted, false
	}
	evicted = r.items[r.head]
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	return evicted, true
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the maximum number of elements.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Items returns a copy of all elements, oldest first.
func (r *Ring[T]) Items() []T {
	return r.Last(r.size)
}

// Last returns a copy of the newest n elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	start := r.head + r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

// Clear drops every element, keeping the capacity.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
