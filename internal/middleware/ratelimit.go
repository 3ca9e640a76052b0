package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/harliandi/go-avif/pkg/metrics"
)

const (
	limiterTTL      = 5 * time.Minute
	cleanupInterval = time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements token bucket rate limiting per IP address
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*ipLimiter
	rate       rate.Limit
	burst      int
	trustProxy bool
	done       chan struct{}
	stop       sync.Once
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP instead of
// the peer address. Enable it only behind a proxy that overwrites them;
// otherwise clients pick their own key.
func TrustProxyHeaders(trust bool) LimiterOption {
	return func(rl *RateLimiter) { rl.trustProxy = trust }
}

// NewRateLimiter creates a limiter allowing perSec requests per second per
// IP with the given burst. Stale entries are evicted until Close.
func NewRateLimiter(perSec, burst int, opts ...LimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(perSec),
		burst:    burst,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}
	go rl.cleanupLoop()
	return rl
}

// Allow checks if a request from the given IP should be allowed
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.limiter(ip).Allow()
}

func (rl *RateLimiter) limiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if l, ok := rl.limiters[ip]; ok {
		l.lastSeen = now
		return l.limiter
	}
	l := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: l, lastSeen: now}
	return l
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.stop.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evict(time.Now())
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, l := range rl.limiters {
		if now.Sub(l.lastSeen) > limiterTTL {
			delete(rl.limiters, ip)
		}
	}
}

// Middleware rejects requests over the per-IP rate with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getIP(r, rl.trustProxy)

		if !rl.Allow(ip) {
			slog.Warn("rate limit exceeded", "ip", ip, "request_id", RequestIDFrom(r.Context()))
			metrics.RecordRateLimitExceeded(getIPPrefix(ip))
			retryAfter := 1
			if rl.rate > 0 && rl.rate < 1 {
				retryAfter = int(1 / float64(rl.rate))
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getIP extracts the client IP from the request. Proxy headers are read
// only when trustProxy is set.
func getIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// first hop set by a proxy or load balancer
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// getIPPrefix keeps only the leading group of an address for metrics labels.
func getIPPrefix(ip string) string {
	parsed := net.ParseIP(ip)
	switch {
	case parsed == nil:
		return "unknown"
	case parsed.To4() != nil:
		return strconv.Itoa(int(parsed.To4()[0])) + ".0.0.0"
	default:
		first, _, _ := strings.Cut(ip, ":")
		return first + ":"
	}
}
