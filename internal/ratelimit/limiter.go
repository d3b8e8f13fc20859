// Package ratelimit throttles inbound layout traffic. Each source (an HTTP
// client, a websocket connection, an MCP tool) draws from its own token
// bucket so one noisy driver cannot starve the frame loop.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLimited is returned by Check when a source is over its limit.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a per-key token bucket. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket capacity and initial fill
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter creates a limiter refilling rate tokens per second up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket and reports whether one was
// available. A nil Limiter allows everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[key] = b
	}
	b.refill(now, l.rate, float64(l.burst))

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *bucket) refill(now time.Time, rate, capacity float64) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.tokens+rate*elapsed, capacity)
	b.last = now
}

// Forget drops key's bucket, e.g. when a websocket connection closes.
func (l *Limiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Limits maps an inbound channel name to its limiter.
type Limits map[string]*Limiter

// Inbound channel names.
const (
	ChannelSnapshot = "snapshot"
	ChannelReset    = "reset"
	ChannelPointer  = "pointer"
)

// DefaultLimits returns limits that comfortably fit a driver pushing a
// snapshot per frame and a pointer streaming at display rate.
func DefaultLimits() Limits {
	return Limits{
		ChannelSnapshot:      NewLimiter(60, 120),  // 60/s, burst 120
		ChannelReset:         NewLimiter(2, 5),     // 2/s, burst 5
		ChannelPointer:       NewLimiter(240, 480), // 240/s, burst 480
		"livegraph_update":   NewLimiter(30, 60),
		"livegraph_reset":    NewLimiter(1, 5),
		"livegraph_frame":    NewLimiter(10, 20),
		"livegraph_position": NewLimiter(30, 60),
	}
}

// Check takes a token for source on channel. Channels without a limiter
// are unlimited.
func (ls Limits) Check(channel, source string) error {
	l, ok := ls[channel]
	if !ok || l.Allow(source) {
		return nil
	}
	return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, channel)
}

// Forget drops source's buckets on every channel.
func (ls Limits) Forget(source string) {
	for _, l := range ls {
		l.Forget(source)
	}
}
