package middleware

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/harliandi/go-avif/pkg/metrics"
)

// ConcurrencyLimiter limits the number of concurrent requests
type ConcurrencyLimiter struct {
	semaphore chan struct{}
	active    atomic.Int64
	max       int
}

// NewConcurrencyLimiter creates a new concurrency limiter
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	if max < 1 {
		max = 1
	}
	return &ConcurrencyLimiter{
		semaphore: make(chan struct{}, max),
		max:       max,
	}
}

// Acquire tries to acquire a slot. Returns false if limit is reached
func (cl *ConcurrencyLimiter) Acquire() bool {
	select {
	case cl.semaphore <- struct{}{}:
		metrics.UpdateConcurrency(int(cl.active.Add(1)))
		return true
	default:
		return false
	}
}

// Release releases a slot
func (cl *ConcurrencyLimiter) Release() {
	<-cl.semaphore
	metrics.UpdateConcurrency(int(cl.active.Add(-1)))
}

// Active returns the number of held slots.
func (cl *ConcurrencyLimiter) Active() int {
	return int(cl.active.Load())
}

// Middleware rejects requests with 503 while all slots are held.
func (cl *ConcurrencyLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cl.Acquire() {
			slog.Warn("concurrency limit reached", "max", cl.max, "request_id", RequestIDFrom(r.Context()))
			metrics.RecordConcurrencyLimitExceeded()
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusServiceUnavailable, "Service busy, please try again")
			return
		}

		defer cl.Release()
		next.ServeHTTP(w, r)
	})
}

// ConcurrencyLimit returns middleware that enforces concurrency limits
func ConcurrencyLimit(max int) func(http.Handler) http.Handler {
	return NewConcurrencyLimiter(max).Middleware
}
