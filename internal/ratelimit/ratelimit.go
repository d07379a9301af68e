// Package ratelimit implements token buckets and a per-client gin middleware built on
// them.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewLimiter allows rate events per second on average, with bursts of up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiter(rate, burst, time.Now)
}

func newLimiter(rate float64, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: now(),
		now:        now,
	}
}

func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}

	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return true
	}

	return false
}

// ClientLimiters hands out one Limiter per client key.
type ClientLimiters struct {
	limiters        map[string]*Limiter
	rate            float64
	burst           int
	maxClients      int
	mu              sync.RWMutex
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

func NewClientLimiters(rate float64, burst int) *ClientLimiters {
	cl := &ClientLimiters{
		limiters:        make(map[string]*Limiter),
		rate:            rate,
		burst:           burst,
		maxClients:      10000,
		cleanupInterval: 5 * time.Minute,
		stop:            make(chan struct{}),
	}
	go cl.cleanup()
	return cl
}

func (cl *ClientLimiters) Get(clientID string) *Limiter {
	cl.mu.RLock()
	limiter, ok := cl.limiters[clientID]
	cl.mu.RUnlock()

	if ok {
		return limiter
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if limiter, ok := cl.limiters[clientID]; ok {
		return limiter
	}

	limiter = NewLimiter(cl.rate, cl.burst)
	cl.limiters[clientID] = limiter
	return limiter
}

func (cl *ClientLimiters) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.limiters, clientID)
}

func (cl *ClientLimiters) Len() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.limiters)
}

func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
}

// Buckets refill on their own, so forgetting every client only grants a fresh burst.
func (cl *ClientLimiters) cleanup() {
	ticker := time.NewTicker(cl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case <-ticker.C:
			cl.mu.Lock()
			if len(cl.limiters) > cl.maxClients {
				cl.limiters = make(map[string]*Limiter)
			}
			cl.mu.Unlock()
		}
	}
}

// Middleware answers 429 once the caller's IP runs out of tokens.
func (cl *ClientLimiters) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cl.Get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
