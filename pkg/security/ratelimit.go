// Package security guards the coordinator API.
package security

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds API rate limiting settings from YAML.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate allowed per client. Zero
	// disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the number of requests a client may make at once.
	Burst int `yaml:"burst"`

	// GlobalRequestsPerSecond caps all clients together. Zero disables it.
	GlobalRequestsPerSecond float64 `yaml:"global_requests_per_second"`

	// ClientTTL is how long an idle client keeps its limiter.
	// Default: 10m.
	ClientTTL time.Duration `yaml:"client_ttl"`
}

// Enabled reports whether limiting is configured.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// RateLimiter applies a token bucket per client plus an optional global one.
type RateLimiter struct {
	global *rate.Limiter
	limit  rate.Limit
	burst  int
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastPrune time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter from cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	ttl := cfg.ClientTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	rl := &RateLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
	if cfg.GlobalRequestsPerSecond > 0 {
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRequestsPerSecond), max(burst, int(cfg.GlobalRequestsPerSecond)))
	}
	rl.lastPrune = rl.now()
	return rl
}

// Allow reports whether clientID may make a request now.
func (rl *RateLimiter) Allow(clientID string) bool {
	now := rl.now()
	if rl.global != nil && !rl.global.AllowN(now, 1) {
		return false
	}
	return rl.client(clientID, now).AllowN(now, 1)
}

// client gets or creates the limiter of clientID.
func (rl *RateLimiter) client(clientID string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastPrune) >= rl.ttl {
		rl.pruneLocked(now)
	}
	c, ok := rl.clients[clientID]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[clientID] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Prune drops the limiters of clients idle longer than the client TTL and
// returns how many were dropped.
func (rl *RateLimiter) Prune() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.pruneLocked(rl.now())
}

func (rl *RateLimiter) pruneLocked(now time.Time) int {
	n := 0
	for id, c := range rl.clients {
		if now.Sub(c.lastSeen) >= rl.ttl {
			delete(rl.clients, id)
			n++
		}
	}
	rl.lastPrune = now
	return n
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware rejects requests over the limit with 429 Too Many Requests.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For address of r, or the host of
// its remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
