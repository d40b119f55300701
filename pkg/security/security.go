package security

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"edu_portal_backend/internal/config"
	"edu_portal_backend/internal/util"
	"edu_portal_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	allowHeaders = "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With"
	allowMethods = "POST, OPTIONS, GET, PUT, DELETE, PATCH"

	defaultMaxRequests        = 6000
	defaultAttemptMaxRequests = 30
)

// CORS 仅允许白名单中的 Origin。白名单外的预检请求直接拒绝，普通请求不返回
// Allow-Origin 头，由浏览器拦截。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[strings.TrimRight(o, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := origin != "" && originSet[origin]

		if allowed {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			if !allowed {
				util.Error(c, http.StatusForbidden, "origin not allowed")
				c.Abort()
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Secure sets browser hardening headers. API responses carry per-student
// attempts and marks, so they are never cached.
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Header("Cache-Control", "no-store")
		}
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}

		c.Next()
	}
}

// visitor 包装限流器和最后活跃时间，用于定期清理
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per key. Buckets idle for three
// windows are dropped by a background sweep.
type limiterStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
}

func newLimiterStore(maxRequests int, window time.Duration) *limiterStore {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	s := &limiterStore{
		visitors: make(map[string]*visitor),
		every:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
	}

	expiry := window * 3
	if expiry < time.Minute {
		expiry = time.Minute
	}
	go s.sweep(expiry)
	return s
}

func (s *limiterStore) sweep(expiry time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		for key, v := range s.visitors {
			if time.Since(v.lastSeen) > expiry {
				delete(s.visitors, key)
			}
		}
		s.mu.Unlock()
	}
}

func (s *limiterStore) allow(key string) bool {
	s.mu.Lock()
	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.every, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = time.Now()
	s.mu.Unlock()
	return v.limiter.Allow()
}

func tooManyRequests(c *gin.Context) {
	util.Error(c, http.StatusTooManyRequests, "too many requests")
	c.Abort()
}

func configWindow(cfg config.RateLimitConfig) time.Duration {
	window := time.Duration(cfg.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	return window
}

// RateLimiterFromConfig builds the per-IP limiter from rate_limit settings.
func RateLimiterFromConfig(cfg config.RateLimitConfig) gin.HandlerFunc {
	maxRequests := cfg.MaxRequests
	if maxRequests <= 0 {
		maxRequests = defaultMaxRequests
	}
	return RateLimiter(maxRequests, configWindow(cfg))
}

// RateLimiter 按IP限流
func RateLimiter(maxRequests int, window time.Duration) gin.HandlerFunc {
	store := newLimiterStore(maxRequests, window)
	return func(c *gin.Context) {
		if !store.allow(c.ClientIP()) {
			tooManyRequests(c)
			return
		}
		c.Next()
	}
}

// attemptKey identifies the caller by token identity so that students
// behind one NAT do not share a bucket. Requests without claims fall back
// to the client IP.
func attemptKey(c *gin.Context) string {
	user := util.GetUserFromContext(c)
	switch {
	case user == nil:
	case user.StudentID != 0:
		return "student:" + strconv.FormatUint(uint64(user.StudentID), 10)
	case user.Email != "":
		return "email:" + strings.ToLower(user.Email)
	case user.UserID != "":
		return "user:" + user.UserID
	}
	return "ip:" + c.ClientIP()
}

// AttemptLimiter throttles one attempt operation (start or complete) per
// student. It must run after the auth middleware. Throttled calls are
// counted as attempt rejections.
func AttemptLimiter(cfg config.RateLimitConfig, op string) gin.HandlerFunc {
	maxRequests := cfg.AttemptMaxRequests
	if maxRequests <= 0 {
		maxRequests = defaultAttemptMaxRequests
	}
	return attemptLimiter(newLimiterStore(maxRequests, configWindow(cfg)), op)
}

func attemptLimiter(store *limiterStore, op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !store.allow(attemptKey(c)) {
			monitoring.AttemptRejections.WithLabelValues(op, "rate_limited").Inc()
			tooManyRequests(c)
			return
		}
		c.Next()
	}
}
