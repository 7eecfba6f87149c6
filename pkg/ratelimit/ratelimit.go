// Package ratelimit provides a per-client token bucket limiter for the HTTP surface.
package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds rate limiter configuration
type Config struct {
	// Enabled determines if rate limiting is active
	Enabled bool `json:"enabled"`

	// RequestsPerSecond is the sustained rate of requests allowed per client
	RequestsPerSecond float64 `json:"requests_per_second"`

	// BurstSize is the maximum number of requests allowed in a burst
	BurstSize int `json:"burst_size"`

	// WhitelistedPaths bypass rate limiting
	WhitelistedPaths []string `json:"whitelisted_paths"`

	// TrustedProxies are peers, as IPs or CIDRs, whose X-Forwarded-For and
	// X-Real-IP headers name the client. Any other peer is keyed on its own address.
	TrustedProxies []string `json:"trusted_proxies"`
}

// DefaultConfig returns the defaults for rate limiting
func DefaultConfig() *Config {
	return &Config{
		Enabled:           false,
		RequestsPerSecond: 2,
		BurstSize:         10,
		WhitelistedPaths:  []string{"/health", "/health/live", "/metrics"},
	}
}

// Limiter implements a token bucket rate limiter with per-key tracking
type Limiter struct {
	rate       float64
	burst      int
	clients    map[string]*bucket
	mu         sync.Mutex
	cleanupTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewLimiter creates a new rate limiter and starts its cleanup loop
func NewLimiter(rate float64, burst int, logger *logrus.Logger) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:       rate,
		burst:      burst,
		clients:    make(map[string]*bucket),
		cleanupTTL: 10 * time.Minute,
		now:        time.Now,
		stop:       make(chan struct{}),
	}

	go l.cleanup()

	logger.WithFields(logrus.Fields{
		"rps":   rate,
		"burst": burst,
	}).Debug("Rate limiter created")

	return l
}

// Allow reports whether a request from key may proceed and spends a token if so
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, exists := l.clients[key]
	if !exists {
		b = &bucket{tokens: float64(l.burst), lastUpdate: now}
		l.clients[key] = b
	}

	b.tokens += now.Sub(b.lastUpdate).Seconds() * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter returns how long key has to wait for the next token
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.clients[key]
	if !exists || b.tokens >= 1 || l.rate <= 0 {
		return 0
	}
	return time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
}

// ClientCount returns the number of tracked clients
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the cleanup loop
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// cleanup periodically removes clients that have been idle longer than cleanupTTL
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cleanupTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.clients {
		if now.Sub(b.lastUpdate) > l.cleanupTTL {
			delete(l.clients, key)
		}
	}
}
