// Package ratelimit implements fixed-window request limiting keyed by client
// and route, with pluggable window stores.
package ratelimit

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/core"
	"github.com/tgfiles/tgfiles/internal/metrics"
	"github.com/tgfiles/tgfiles/internal/observability"
)

// UnknownClient replaces an empty client key so anonymous callers share one window.
const UnknownClient = "unknown"

// WindowStore holds rate windows. Hit must perform create-or-reset-or-increment
// for the key as a single guarded operation and return the resulting window.
type WindowStore interface {
	Hit(ctx context.Context, key core.WindowKey, now time.Time, window time.Duration) (core.RateWindow, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Backend names a store for metrics and logs.
type Backend interface {
	Backend() string
}

// RoutePolicy is the limit applied to one route.
type RoutePolicy struct {
	Limit  int
	Window time.Duration
}

// DefaultPolicy applies to routes without an explicit policy.
var DefaultPolicy = RoutePolicy{Limit: 30, Window: time.Minute}

// Limiter enforces per-client, per-route request limits.
type Limiter struct {
	Store WindowStore
	Clock func() time.Time

	mu     sync.RWMutex
	routes map[string]RoutePolicy
}

// NewLimiter builds a limiter over store with the given route policies.
func NewLimiter(store WindowStore, routes map[string]RoutePolicy) *Limiter {
	l := &Limiter{Store: store}
	l.SetRoutes(routes)
	return l
}

// SetRoutes replaces the route policy table. Safe to call while serving.
func (l *Limiter) SetRoutes(routes map[string]RoutePolicy) {
	copied := make(map[string]RoutePolicy, len(routes))
	for name, policy := range routes {
		name = strings.TrimSpace(name)
		if name == "" || policy.Limit <= 0 || policy.Window <= 0 {
			continue
		}
		copied[name] = policy
	}

	l.mu.Lock()
	l.routes = copied
	l.mu.Unlock()
}

// Policy returns the policy for route, falling back to DefaultPolicy.
func (l *Limiter) Policy(route string) RoutePolicy {
	if l == nil {
		return DefaultPolicy
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if policy, ok := l.routes[route]; ok {
		return policy
	}
	return DefaultPolicy
}

// Allow checks client against the configured policy for route.
func (l *Limiter) Allow(ctx context.Context, client, route string) core.Decision {
	policy := l.Policy(route)
	return l.Check(ctx, client, route, policy.Limit, policy.Window)
}

// Check counts one request for (client, route) and decides whether it may
// proceed. It never fails: a store error is logged and the request allowed.
func (l *Limiter) Check(ctx context.Context, client, route string, limit int, window time.Duration) core.Decision {
	now := l.now()
	if limit <= 0 {
		limit = DefaultPolicy.Limit
	}
	if window <= 0 {
		window = DefaultPolicy.Window
	}

	client = strings.TrimSpace(client)
	if client == "" {
		client = UnknownClient
	}

	if l == nil || l.Store == nil {
		return core.Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(window)}
	}

	key := core.WindowKey{Client: client, Route: route}
	state, err := l.Store.Hit(ctx, key, now, window)
	if err != nil {
		backend := backendName(l.Store)
		metrics.RecordRateStoreError(backend)
		observability.Warn("rate window store failed; allowing request",
			zap.String("backend", backend),
			zap.String("route", route),
			zap.Error(err))
		return core.Decision{Allowed: true, Limit: limit, Remaining: limit, ResetAt: now.Add(window)}
	}

	decision := core.Decision{
		Allowed:   state.Count <= limit,
		Limit:     limit,
		Remaining: max(limit-state.Count, 0),
		ResetAt:   state.ResetAt(),
	}
	if !decision.Allowed {
		decision.RetryAfter = retryAfterSeconds(state.ResetAt(), now)
		metrics.RecordRateRejection(route)
	}
	return decision
}

func (l *Limiter) now() time.Time {
	if l != nil && l.Clock != nil {
		return l.Clock()
	}
	return time.Now().UTC()
}

func retryAfterSeconds(resetAt, now time.Time) int {
	seconds := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func backendName(store WindowStore) string {
	if b, ok := store.(Backend); ok {
		return b.Backend()
	}
	return "custom"
}
