// internal/middleware/rate_limit.go
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/idlabstudio/idlab-backend/internal/i18n"
	"github.com/idlabstudio/idlab-backend/internal/utils"
)

const (
	visitorTTL      = 3 * time.Minute
	cleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	rate     rate.Limit
	burst    int
	janitor  sync.Once
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
	}
}

func (rl *RateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		rl.mtx.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > visitorTTL {
				delete(rl.visitors, ip)
			}
		}
		rl.mtx.Unlock()
	}
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Middleware rejects requests over the limit with 429. Rate limiting is off
// in gin test mode, where every request comes from one address.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	if gin.Mode() == gin.TestMode {
		return func(c *gin.Context) { c.Next() }
	}
	rl.janitor.Do(func() { go rl.cleanupVisitors() })

	return func(c *gin.Context) {
		limiter := rl.getVisitor(c.ClientIP())

		if !limiter.Allow() {
			retryAfter := int(math.Ceil(float64(time.Second) / float64(rl.rate)))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			lang := utils.GetLangFromContext(c)
			utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED", i18n.T(lang, i18n.KeyRateLimited), nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

var (
	generalLimiter = NewRateLimiter(rate.Every(100*time.Millisecond), 20) // 10 requests per second
	authLimiter    = NewRateLimiter(rate.Every(12*time.Second), 5)        // 5 logins per minute
	uploadLimiter  = NewRateLimiter(rate.Every(6*time.Second), 10)        // 10 uploads per minute
	linkLimiter    = NewRateLimiter(rate.Every(2*time.Second), 10)        // approval link clicks
)

func GeneralRateLimit() gin.HandlerFunc {
	return generalLimiter.Middleware()
}

func AuthRateLimit() gin.HandlerFunc {
	return authLimiter.Middleware()
}

func UploadRateLimit() gin.HandlerFunc {
	return uploadLimiter.Middleware()
}

// LinkRateLimit guards the public approval link pages against token guessing.
func LinkRateLimit() gin.HandlerFunc {
	return linkLimiter.Middleware()
}
