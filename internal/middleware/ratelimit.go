package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitMiddleware limits requests per client IP over a sliding window.
type RateLimitMiddleware struct {
	requests map[string][]time.Time // IP -> request times
	mu       sync.Mutex
	now      func() time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware. A nil now
// uses time.Now.
func NewRateLimitMiddleware(now func() time.Time) *RateLimitMiddleware {
	if now == nil {
		now = time.Now
	}
	return &RateLimitMiddleware{
		requests: make(map[string][]time.Time),
		now:      now,
	}
}

// RateLimit allows maxRequests per client within window. A non-positive
// maxRequests disables limiting.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxRequests <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.allow(getClientIP(r), maxRequests, window) {
				w.Header().Set("Retry-After", retryAfter(window))
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *RateLimitMiddleware) allow(clientIP string, maxRequests int, window time.Duration) bool {
	now := m.now()
	windowStart := now.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	valid := m.requests[clientIP][:0]
	for _, ts := range m.requests[clientIP] {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	if len(valid) >= maxRequests {
		m.requests[clientIP] = valid
		return false
	}
	m.requests[clientIP] = append(valid, now)
	return true
}

func retryAfter(window time.Duration) string {
	secs := int(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}

	ip := r.RemoteAddr
	if colonIndex := strings.LastIndex(ip, ":"); colonIndex != -1 {
		ip = ip[:colonIndex]
	}
	return ip
}
