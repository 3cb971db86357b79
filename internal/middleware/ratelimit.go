package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages a token bucket per user
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// NewRateLimiter allows rps requests per second with the given burst per key.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Sweep removes limiters idle longer than the idle window.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-rl.idle)
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle limiters every interval until done is closed.
func (rl *RateLimiter) Run(done <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			rl.Sweep()
		}
	}
}

// Allow reports whether key may proceed now, and if not, how long to wait.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	res := rl.get(key).ReserveN(rl.now(), 1)
	if !res.OK() {
		return false, time.Second
	}
	delay := res.DelayFrom(rl.now())
	if delay > 0 {
		res.CancelAt(rl.now())
		return false, delay
	}
	return true, 0
}

// Middleware limits requests per authenticated user, falling back to the
// remote address for public paths.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetUserFromContext(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		ok, wait := rl.Allow(key)
		if !ok {
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "High Demand", "Rate limit exceeded. Please try again in a moment.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// writeError writes the same {"error": {...}} envelope the API handlers use.
func writeError(w http.ResponseWriter, status int, title, message string) {
	kind := "transient"
	switch status {
	case http.StatusUnauthorized:
		kind = "unauthorized"
	case http.StatusTooManyRequests:
		kind = "rate_limited"
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		kind = "invalid_input"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]errorBody{
		"error": {Kind: kind, Title: title, Message: message},
	})
}
