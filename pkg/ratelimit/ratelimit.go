// Package ratelimit bounds concurrent in-flight requests per search
// provider. Each provider gets a weighted semaphore sized to what its
// API tolerates; callers acquire a slot before dispatching a request
// and release it when the response is consumed.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultCap applies to providers without an explicit entry.
const DefaultCap int64 = 3

// DefaultCaps holds the per-provider concurrency ceilings.
var DefaultCaps = map[string]int64{
	"brave":  2,
	"google": 6,
	"tavily": 8,
	"arxiv":  4,
	"news":   5,
}

// Limiter hands out per-provider request slots.
type Limiter struct {
	mu   sync.Mutex
	caps map[string]int64
	sems map[string]*semaphore.Weighted
}

// New builds a limiter from the default caps merged with overrides.
// Override values below 1 are ignored.
func New(overrides map[string]int64) *Limiter {
	caps := make(map[string]int64, len(DefaultCaps)+len(overrides))
	for id, cap := range DefaultCaps {
		caps[id] = cap
	}
	for id, cap := range overrides {
		if cap >= 1 {
			caps[id] = cap
		}
	}
	return &Limiter{
		caps: caps,
		sems: make(map[string]*semaphore.Weighted),
	}
}

// Cap reports the concurrency ceiling for a provider.
func (l *Limiter) Cap(provider string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cap, ok := l.caps[provider]; ok {
		return cap
	}
	return DefaultCap
}

// TotalCap sums the ceilings of the given providers. The search
// orchestrator uses this to shrink its worker pool when few providers
// are configured.
func (l *Limiter) TotalCap(providers []string) int64 {
	var total int64
	for _, id := range providers {
		total += l.Cap(id)
	}
	return total
}

// Acquire blocks until a slot for the provider is free or the context
// is done.
func (l *Limiter) Acquire(ctx context.Context, provider string) error {
	return l.sem(provider).Acquire(ctx, 1)
}

// TryAcquire grabs a slot without blocking.
func (l *Limiter) TryAcquire(provider string) bool {
	return l.sem(provider).TryAcquire(1)
}

// Release returns a previously acquired slot.
func (l *Limiter) Release(provider string) {
	l.sem(provider).Release(1)
}

func (l *Limiter) sem(provider string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sems[provider]; ok {
		return s
	}
	cap, ok := l.caps[provider]
	if !ok {
		cap = DefaultCap
	}
	s := semaphore.NewWeighted(cap)
	l.sems[provider] = s
	return s
}
