package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// RateLimitConfig throttles a group of routes per client IP
type RateLimitConfig struct {
	Every time.Duration // one token is refilled per Every
	Burst int
	// IdleAfter drops the bucket of a client unseen for this long
	IdleAfter time.Duration
	Now       func() time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	cfg       RateLimitConfig
	mu        sync.Mutex
	clients   map[string]*clientBucket
	lastSweep time.Time
}

func (l *ipLimiter) allow(ip string) bool {
	now := l.cfg.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.cfg.IdleAfter {
		for key, b := range l.clients {
			if now.Sub(b.lastSeen) > l.cfg.IdleAfter {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.clients[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Every(l.cfg.Every), l.cfg.Burst)}
		l.clients[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// RateLimit answers 429 once a client IP has spent its burst on the wrapped routes.
// Used on the unauthenticated admin endpoints against password guessing.
func RateLimit(cfg RateLimitConfig) fiber.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleAfter == 0 {
		cfg.IdleAfter = 10 * time.Minute
	}
	l := &ipLimiter{cfg: cfg, clients: map[string]*clientBucket{}, lastSweep: cfg.Now()}

	return func(c *fiber.Ctx) error {
		if !l.allow(c.IP()) {
			c.Set(fiber.HeaderRetryAfter, retryAfter(cfg.Every))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many attempts, please try again later",
			})
		}
		return c.Next()
	}
}

func retryAfter(every time.Duration) string {
	secs := int(every / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
