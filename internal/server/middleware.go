// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// ============================================================================
// Auth Configuration and Middleware
// ============================================================================

// AuthConfig contains authentication configuration options.
type AuthConfig struct {
	// Enabled indicates whether authentication is required.
	Enabled bool

	// BearerToken is the expected token. Enabled with an empty token
	// rejects every request.
	BearerToken string

	// AllowedIPs lists addresses or CIDR ranges. Empty allows all.
	AllowedIPs []string

	parsedCIDRs []*net.IPNet
	parsedOnce  sync.Once
}

// DefaultAuthConfig returns a config with authentication disabled.
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{}
}

// NewAuthConfig enables bearer authentication when token is set.
func NewAuthConfig(token string, allowedIPs []string) *AuthConfig {
	return &AuthConfig{
		Enabled:     token != "",
		BearerToken: token,
		AllowedIPs:  allowedIPs,
	}
}

func (c *AuthConfig) parseCIDRs() {
	c.parsedOnce.Do(func() {
		for _, s := range c.AllowedIPs {
			if strings.Contains(s, "/") {
				if _, ipNet, err := net.ParseCIDR(s); err == nil {
					c.parsedCIDRs = append(c.parsedCIDRs, ipNet)
				}
				continue
			}
			ip := net.ParseIP(s)
			if ip == nil {
				continue
			}
			bits := 128
			if ip.To4() != nil {
				bits = 32
			}
			c.parsedCIDRs = append(c.parsedCIDRs, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	})
}

// isIPAllowed checks the client address against AllowedIPs.
func (c *AuthConfig) isIPAllowed(ipStr string) bool {
	if len(c.AllowedIPs) == 0 {
		return true
	}
	c.parseCIDRs()
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, cidr := range c.parsedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// AuthMiddleware checks the IP allowlist, then the bearer token. /health
// and CORS preflight requests are exempt.
func AuthMiddleware(config *AuthConfig, logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config == nil || !config.Enabled || r.URL.Path == "/health" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			clientIP := GetClientIP(r)
			if !config.isIPAllowed(clientIP) {
				logger.Warn("request denied", "ip", clientIP, "reason", "ip not allowed")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !ValidateBearerToken(token, config.BearerToken) {
				logger.Warn("request denied", "ip", clientIP, "reason", "invalid token")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateBearerToken compares tokens in constant time. Empty tokens never
// match.
func ValidateBearerToken(token, expected string) bool {
	if token == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// ============================================================================
// CORS Configuration and Middleware
// ============================================================================

// CORSConfig lists the browser origins allowed to call the API. A hosted
// virtual tabletop calls from the players' browsers.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig allows a tabletop served on localhost.
func DefaultCORSConfig() *CORSConfig {
	return NewCORSConfig([]string{"http://localhost:30000", "http://127.0.0.1:30000"})
}

// NewCORSConfig allows origins with the standard methods and headers.
func NewCORSConfig(origins []string) *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}
}

// isOriginAllowed supports exact origins, "*" and "*.example.com".
func (c *CORSConfig) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if domain, ok := strings.CutPrefix(allowed, "*"); ok && strings.HasPrefix(domain, ".") && strings.HasSuffix(origin, domain) {
			return true
		}
	}
	return false
}

// CORSMiddleware sets Access-Control headers for allowed origins and
// answers preflight requests.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if config != nil && config.isOriginAllowed(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Rate Limiter
// ============================================================================

// visitorTTL is how long an idle client's limiter is kept.
const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewRateLimiter allows perMinute requests per IP with an equal burst.
// Returns nil when perMinute is not positive.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
		now:      time.Now,
	}
}

// Allow reports whether ip may make a request now.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		rl.sweepLocked(now)
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweepLocked drops visitors idle for longer than visitorTTL.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, ip)
		}
	}
}

// RateLimitMiddleware answers 429 when a client exceeds its budget.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow(GetClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Logging, Headers and Recovery
// ============================================================================

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs method, path, status and duration at debug level.
func LoggingMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"took", time.Since(start),
				"ip", GetClientIP(r),
			)
		})
	}
}

// SecurityHeadersMiddleware sets conservative response headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500.
func RecoveryMiddleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("handler panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares so the first one runs outermost.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// GetClientIP returns the host part of the peer address. Forwarding
// headers are ignored.
func GetClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
