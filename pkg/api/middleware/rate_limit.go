package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter stores a token bucket per client IP
type RateLimiter struct {
	clients map[string]*client
	mu      sync.Mutex

	requestsPerSecond rate.Limit
	burst             int
	idleTTL           time.Duration

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter. Clients idle for more than
// idleTTL are forgotten
func NewRateLimiter(requestsPerSecond float64, burst int, idleTTL time.Duration) *RateLimiter {
	if idleTTL <= 0 {
		idleTTL = 5 * time.Minute
	}
	rl := &RateLimiter{
		clients:           make(map[string]*client),
		requestsPerSecond: rate.Limit(requestsPerSecond),
		burst:             burst,
		idleTTL:           idleTTL,
		ticker:            time.NewTicker(idleTTL),
		done:              make(chan struct{}),
	}

	go rl.cleanupClients()

	return rl
}

func (rl *RateLimiter) cleanupClients() {
	for {
		select {
		case now := <-rl.ticker.C:
			rl.evictIdle(now)
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > rl.idleTTL {
			delete(rl.clients, id)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.ticker.Stop()
		close(rl.done)
	})
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) getLimiter(clientID string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, exists := rl.clients[clientID]
	if !exists {
		cl = &client{limiter: rate.NewLimiter(rl.requestsPerSecond, rl.burst)}
		rl.clients[clientID] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// RateLimit returns a middleware that rate limits requests per client IP
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.ClientIP(), time.Now())

		if !limiter.Allow() {
			AbortWithError(c, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
				"Too many requests. Please try again later.")
			return
		}

		c.Next()
	}
}
