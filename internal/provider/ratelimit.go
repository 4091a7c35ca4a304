// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/tabletop-assistant/internal/conversation"
)

// DefaultRequestsPerMinute is the default provider rate limit.
const DefaultRequestsPerMinute = 30

// RateLimited rejects requests beyond a per-minute budget and keeps usage
// statistics for the wrapped provider.
type RateLimited struct {
	Provider
	limiter *rate.Limiter

	mu    sync.Mutex
	stats Usage
}

// Usage summarizes calls made through a RateLimited provider.
type Usage struct {
	Requests     int           `json:"requests"`
	Failures     int           `json:"failures"`
	Rejected     int           `json:"rejected"`
	TotalLatency time.Duration `json:"total_latency"`
	LastRequest  time.Time     `json:"last_request,omitempty"`
}

// AverageLatency returns the mean latency of completed requests.
func (u Usage) AverageLatency() time.Duration {
	if u.Requests == 0 {
		return 0
	}
	return u.TotalLatency / time.Duration(u.Requests)
}

// NewRateLimited wraps p with a limit of perMinute requests, allowing a
// burst of the same size. perMinute <= 0 disables the limit.
func NewRateLimited(p Provider, perMinute int) *RateLimited {
	limit := rate.Inf
	burst := 0
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
		burst = perMinute
	}
	return &RateLimited{Provider: p, limiter: rate.NewLimiter(limit, burst)}
}

// ProcessMessage forwards to the wrapped provider when the budget allows.
func (r *RateLimited) ProcessMessage(ctx context.Context, text string, cc conversation.Context) (string, error) {
	if !r.limiter.Allow() {
		r.mu.Lock()
		r.stats.Rejected++
		r.mu.Unlock()
		return "", failure(r.Name(), ErrTypeRateLimited, "rate limit exceeded", nil)
	}

	start := time.Now()
	reply, err := r.Provider.ProcessMessage(ctx, text, cc)

	r.mu.Lock()
	r.stats.Requests++
	r.stats.TotalLatency += time.Since(start)
	r.stats.LastRequest = start
	if err != nil {
		r.stats.Failures++
	}
	r.mu.Unlock()
	return reply, err
}

// Usage returns a snapshot of the usage statistics.
func (r *RateLimited) Usage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
