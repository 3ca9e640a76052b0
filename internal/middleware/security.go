package middleware

import (
	"net/http"
	"strings"
)

var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

// exposedHeaders are the conversion headers browser clients may read.
var exposedHeaders = strings.Join([]string{
	"ETag",
	RequestIDHeader,
	"X-Conversion-Id",
	"X-Attempts",
	"X-Quality",
	"X-Target-Met",
	"X-Codec",
	"X-Mode",
}, ", ")

// Security adds security-related headers to all responses
func Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range securityHeaders {
			h.Set(kv[0], kv[1])
		}
		h.Set("Access-Control-Expose-Headers", exposedHeaders)

		// HSTS only makes sense over TLS
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// Chain applies middlewares so that the first one listed is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
