// Package ratelimit keeps one token bucket per caller key. The set of keys
// is bounded; the least recently seen caller is evicted first.
package ratelimit

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxKeys bounds the number of tracked callers.
const DefaultMaxKeys = 10000

// Config describes the bucket handed to every new key.
type Config struct {
	// RequestsPerSecond is the refill rate. Zero or less disables limiting.
	RequestsPerSecond float64 `json:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `json:"burst" toml:"burst"`
	MaxKeys           int     `json:"max_keys" toml:"max_keys"`
}

// Limiter hands out per-key rate.Limiters.
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
}

// New builds a Limiter from cfg.
func New(cfg Config) (*Limiter, error) {
	size := cfg.MaxKeys
	if size <= 0 {
		size = DefaultMaxKeys
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: %w", err)
	}

	l := &Limiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		buckets: cache,
	}
	if cfg.RequestsPerSecond <= 0 {
		l.limit = rate.Inf
	}
	return l, nil
}

// Allow reports whether key may make a request now and spends a token if so.
func (l *Limiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Limit is the configured refill rate.
func (l *Limiter) Limit() rate.Limit { return l.limit }

// Len is the number of tracked keys.
func (l *Limiter) Len() int { return l.buckets.Len() }

// Forget drops key's bucket.
func (l *Limiter) Forget(key string) { l.buckets.Remove(key) }

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets.Get(key); ok {
		return b
	}
	b := rate.NewLimiter(l.limit, l.burst)
	l.buckets.Add(key, b)
	return b
}
