// Package ratelimit throttles outgoing dispatch requests and incoming API
// clients.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/CodeMonkeyCybersecurity/x9/internal/config"
)

// Limiter combines a global token bucket with a minimum spacing between
// requests to the same host.
type Limiter struct {
	global   *rate.Limiter
	minDelay time.Duration

	mu   sync.Mutex
	next map[string]time.Time
}

type Config struct {
	RequestsPerSecond float64
	BurstSize         int
	MinDelay          time.Duration
}

// FromConfig converts the viper-loaded settings. A non-positive rate
// disables the global bucket.
func FromConfig(c config.RateLimitConfig) Config {
	return Config{
		RequestsPerSecond: float64(c.RequestsPerSecond),
		BurstSize:         c.BurstSize,
		MinDelay:          c.MinDelay,
	}
}

func NewLimiter(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		global:   rate.NewLimiter(limit, burst),
		minDelay: cfg.MinDelay,
		next:     make(map[string]time.Time),
	}
}

// Wait blocks on the global bucket only.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.global.Wait(ctx)
}

// WaitForHost blocks on the global bucket, then until host's next slot.
// Slots are reserved under the lock and slept on outside it, so a slow host
// does not hold up the others.
func (l *Limiter) WaitForHost(ctx context.Context, host string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	if l.minDelay <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	slot := now
	if n, ok := l.next[host]; ok && n.After(now) {
		slot = n
	}
	l.next[host] = slot.Add(l.minDelay)
	l.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Allow() bool {
	return l.global.Allow()
}

func (l *Limiter) SetLimit(requestsPerSecond float64) {
	l.global.SetLimit(rate.Limit(requestsPerSecond))
}

// Reset forgets every tracked host.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next = make(map[string]time.Time)
}

type Stats struct {
	TrackedHosts int
	BurstSize    int
	MinDelay     time.Duration
}

func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		TrackedHosts: len(l.next),
		BurstSize:    l.global.Burst(),
		MinDelay:     l.minDelay,
	}
}

// KeyedLimiter keeps one token bucket per key, typically a client IP.
// Buckets idle for longer than idleTTL are dropped on a later call.
type KeyedLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	buckets   map[string]*keyedBucket
	lastPrune time.Time
}

type keyedBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewKeyedLimiter(cfg Config) *KeyedLimiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{
		limit:     limit,
		burst:     burst,
		idleTTL:   10 * time.Minute,
		buckets:   make(map[string]*keyedBucket),
		lastPrune: time.Now(),
	}
}

// Allow reports whether key may make a request now.
func (k *KeyedLimiter) Allow(key string) bool {
	now := time.Now()

	k.mu.Lock()
	if now.Sub(k.lastPrune) > k.idleTTL/2 {
		k.pruneLocked(now)
	}
	b, ok := k.buckets[key]
	if !ok {
		b = &keyedBucket{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	k.mu.Unlock()

	return b.limiter.Allow()
}

func (k *KeyedLimiter) pruneLocked(now time.Time) {
	for key, b := range k.buckets {
		if now.Sub(b.lastSeen) > k.idleTTL {
			delete(k.buckets, key)
		}
	}
	k.lastPrune = now
}

func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
