package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/platform"
	"github.com/franzego/tourpush/internal/webpush"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	CorrelationIDKey = "X-Correlation-ID"
	// SubscriptionKey holds the *platform.Subscription a push was addressed to.
	SubscriptionKey = "subscription"
)

// SubscriptionLookup finds the subscription a push endpoint id belongs to.
type SubscriptionLookup interface {
	Lookup(ctx context.Context, id string) (*platform.Subscription, error)
}

// needed to ensure we have the id for tracking every request for its lifetime
func CorrelationID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		correlationId := ctx.GetHeader(CorrelationIDKey)
		if correlationId == "" {
			correlationId = uuid.New().String()
		}
		ctx.Set(CorrelationIDKey, correlationId)
		ctx.Header(CorrelationIDKey, correlationId)
		ctx.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("correlation_id", c.GetString(CorrelationIDKey)),
		)
	}
}

// VAPIDAuth resolves the subscription named by the :id route parameter and
// checks the push service's VAPID header against its application server
// key. Unknown subscriptions get 410 so the sender drops them.
func VAPIDAuth(subs SubscriptionLookup, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := subs.Lookup(c.Request.Context(), c.Param("id"))
		if err != nil {
			log.Error("subscription lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, models.APIResponse{
				Success: false,
				Error:   "subscription lookup failed",
				Message: "Internal Server Error",
			})
			return
		}
		if sub == nil {
			c.AbortWithStatusJSON(http.StatusGone, models.APIResponse{
				Success: false,
				Error:   "subscription expired or unsubscribed",
				Message: "Gone",
			})
			return
		}

		authKey := c.GetHeader("Authorization")
		if authKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.APIResponse{
				Success: false,
				Error:   "Authorization header required",
				Message: "Unauthorized",
			})
			return
		}
		auth, err := webpush.ParseVAPIDAuthorization(authKey)
		if err == nil {
			var serverKey []byte
			if serverKey, err = sub.ServerKey(); err == nil {
				err = auth.Verify(serverKey)
			}
		}
		if err != nil {
			log.Warn("vapid check failed", zap.String("subscription", sub.ID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.APIResponse{
				Success: false,
				Error:   "Invalid VAPID authorization",
				Message: "Unauthorized",
			})
			return
		}

		c.Set(SubscriptionKey, sub)
		c.Next()
	}
}

// limiterIdle is how long an unused per-IP limiter is kept. It is longer
// than the refill window, so an evicted limiter was back to a full bucket.
const limiterIdle = 5 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	every     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newRateLimiterStore(every rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters: make(map[string]*limiterEntry),
		every:    every,
		burst:    burst,
		now:      time.Now,
	}
}

func (s *rateLimiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= limiterIdle {
		for k, e := range s.limiters {
			if now.Sub(e.lastSeen) >= limiterIdle {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}
	e, ok := s.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.every, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimit allows perMinute requests per client IP, with bursts of the same
// size. A non-positive perMinute disables it.
func RateLimit(perMinute int, log *zap.Logger) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	store := newRateLimiterStore(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !store.get(ip).Allow() {
			log.Warn("rate limit exceeded", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.APIResponse{
				Success: false,
				Error:   "rate limit exceeded",
				Message: "Too Many Requests",
			})
			return
		}
		c.Next()
	}
}
