// internal/api/ratelimit.go
package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket limiter.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rate     float64       // tokens per second
	burst    int           // bucket capacity
	idleTTL  time.Duration // buckets idle longer than this are dropped
	stopOnce sync.Once
	stopChan chan struct{}
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per second with
// bursts of up to burst requests.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		buckets:  make(map[string]*bucket),
		rate:     rate,
		burst:    burst,
		idleTTL:  5 * time.Minute,
		stopChan: make(chan struct{}),
	}
	go rl.pruneLoop()
	return rl
}

// Allow reports whether a request from client may proceed, consuming a token
// if so.
func (rl *RateLimiter) Allow(client string) bool {
	ok, _ := rl.reserve(client, time.Now())
	return ok
}

// reserve consumes a token for client. When the bucket is empty it returns
// how long until the next token is available.
func (rl *RateLimiter) reserve(client string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[client]
	if !exists {
		rl.buckets[client] = &bucket{tokens: float64(rl.burst) - 1, lastUpdate: now}
		return true, 0
	}

	b.tokens = math.Min(float64(rl.burst), b.tokens+now.Sub(b.lastUpdate).Seconds()*rl.rate)
	b.lastUpdate = now
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if rl.rate <= 0 {
		return false, time.Second
	}
	wait := time.Duration((1 - b.tokens) / rl.rate * float64(time.Second))
	return false, wait
}

func (rl *RateLimiter) pruneLoop() {
	ticker := time.NewTicker(rl.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.pruneStale(time.Now())
		case <-rl.stopChan:
			return
		}
	}
}

func (rl *RateLimiter) pruneStale(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := now.Add(-rl.idleTTL)
	for client, b := range rl.buckets {
		if b.lastUpdate.Before(threshold) {
			delete(rl.buckets, client)
		}
	}
}

// Stop ends the background pruning. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

// Stats returns current limiter statistics.
func (rl *RateLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return map[string]interface{}{
		"active_clients": len(rl.buckets),
		"rate_per_sec":   rl.rate,
		"burst_size":     rl.burst,
	}
}

// getClientIP extracts the client IP. Proxy headers are only trusted when the
// direct peer is loopback, so remote clients cannot spoof their bucket.
func getClientIP(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	remoteIP := net.ParseIP(remote)
	if remoteIP == nil {
		if host, _, err := net.SplitHostPort(remote); err == nil {
			remoteIP = net.ParseIP(host)
		}
	}

	if remoteIP != nil && remoteIP.IsLoopback() {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			first = strings.TrimSpace(first)
			if net.ParseIP(first) != nil {
				return first
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
			return xri
		}
	}

	if remoteIP != nil {
		return remoteIP.String()
	}
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}

// WithRateLimit returns middleware that applies rate limiting. A nil limiter
// lets every request through.
func WithRateLimit(rl *RateLimiter) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if rl == nil || r.Method == http.MethodOptions {
				next(w, r)
				return
			}
			if ok, wait := rl.reserve(getClientIP(r), time.Now()); !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next(w, r)
		}
	}
}
