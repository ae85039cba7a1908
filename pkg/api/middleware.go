package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/valee-art/ALXIE/pkg/utils"
)

type limiterPool struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
}

func (s *Server) limiterFor(key string) *rate.Limiter {
	s.limiters.mu.Lock()
	defer s.limiters.mu.Unlock()
	if s.limiters.m == nil {
		s.limiters.m = make(map[string]*rate.Limiter)
	}
	if l, ok := s.limiters.m[key]; ok {
		return l
	}
	rps := s.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := s.RateBurst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	s.limiters.m[key] = l
	return l
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Streams are long-lived; they hold one token at open, not per event.
		if !s.limiterFor(clientIP(r)).Allow() {
			utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Confirm")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// adminKeyMiddleware guards the admin subtree. With no keys configured
// the subtree is closed, not open.
func (s *Server) adminKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" || !s.adminKeyValid(key) {
			utils.JSONError(w, http.StatusUnauthorized, "admin key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) adminKeyValid(key string) bool {
	for _, k := range s.AdminKeys {
		if k != "" && k == key {
			return true
		}
	}
	return false
}
