package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/adamwilson22/Velaa-Backend/internal/cache"
	"github.com/adamwilson22/Velaa-Backend/internal/config"
	"github.com/adamwilson22/Velaa-Backend/internal/logger"
)

const sharedWindow = time.Minute

// clientLimiter stores rate limiters for a specific client.
type clientLimiter struct {
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
	lastSeen     time.Time
}

// RateLimiterMiddleware keeps a token bucket per client for reads and a
// stricter one for writes. With a shared counter configured, every instance
// also enforces one per-minute budget per client through Redis.
type RateLimiterMiddleware struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	cfg     *config.Config
	shared  *cache.WindowCounter
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
	log     zerolog.Logger
}

// NewRateLimiterMiddleware creates a new RateLimiterMiddleware and starts its
// cleanup loop. shared may be nil. Call Stop to end the loop.
func NewRateLimiterMiddleware(cfg *config.Config, shared *cache.WindowCounter) *RateLimiterMiddleware {
	ttl := cfg.RateLimitClientTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	rm := &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
		shared:  shared,
		ttl:     ttl,
		stop:    make(chan struct{}),
		log:     logger.WithComponent("ratelimit"),
	}
	go rm.cleanupLoop()
	return rm
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (rm *RateLimiterMiddleware) Stop() {
	rm.once.Do(func() { close(rm.stop) })
}

func (rm *RateLimiterMiddleware) getClientLimiter(identifier string, now time.Time) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	limiter, exists := rm.clients[identifier]
	if !exists {
		limiter = &clientLimiter{
			readLimiter:  rate.NewLimiter(rate.Limit(rm.cfg.RateLimitHardRefillRate), rm.cfg.RateLimitHardBucketSize),
			writeLimiter: rate.NewLimiter(rate.Limit(rm.cfg.RateLimitSoftRefillRate), rm.cfg.RateLimitSoftBucketSize),
		}
		rm.clients[identifier] = limiter
	}
	limiter.lastSeen = now
	return limiter
}

func (rm *RateLimiterMiddleware) cleanupLoop() {
	interval := rm.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rm.stop:
			return
		case now := <-ticker.C:
			if n := rm.Cleanup(now); n > 0 {
				rm.log.Debug().Int("removed", n).Msg("rate limiter cleanup")
			}
		}
	}
}

// Cleanup drops clients not seen within the TTL before now and returns how many were removed.
func (rm *RateLimiterMiddleware) Cleanup(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, client := range rm.clients {
		if now.Sub(client.lastSeen) > rm.ttl {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

// Clients returns the number of tracked clients.
func (rm *RateLimiterMiddleware) Clients() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.clients)
}

// Limit creates the Gin middleware handler.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := c.ClientIP()
		limiter := rm.getClientLimiter(clientKey, time.Now())

		bucket := limiter.readLimiter
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			bucket = limiter.writeLimiter
		}
		if !bucket.Allow() {
			rm.log.Warn().Str("client", clientKey).Str("path", c.FullPath()).Msg("rate limit exceeded")
			abort(c, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		if rm.shared != nil {
			n, err := rm.shared.Hit(c.Request.Context(), clientKey, sharedWindow)
			if err != nil {
				// Fail open: Redis trouble must not take the API down.
				rm.log.Error().Err(err).Msg("shared rate limit unavailable")
			} else if n > int64(rm.cfg.RateLimitHardRefillRate)*int64(sharedWindow/time.Second) {
				abort(c, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
		}

		c.Next()
	}
}
