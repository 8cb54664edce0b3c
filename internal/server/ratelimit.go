package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/splinter-dev/splinter/internal/config"
)

// RateLimiter applies a token bucket per client to the invocation
// endpoints.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     config.RateLimitConfig
	cleanup *time.Ticker
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
		cleanup: time.NewTicker(cfg.Window * 2),
		stopCh:  make(chan struct{}),
	}

	rl.wg.Add(1)
	go func() {
		defer rl.wg.Done()
		rl.cleanupLoop()
	}()

	return rl
}

// Allow reports whether a request from the given client key fits the
// budget, consuming a token if it does.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.cfg.Max, lastRefill: time.Now()}
		rl.buckets[key] = b
	}

	now := time.Now()
	if now.Sub(b.lastRefill) >= rl.cfg.Window {
		b.tokens = rl.cfg.Max
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanup.C:
			rl.mu.Lock()
			now := time.Now()
			for key, b := range rl.buckets {
				if now.Sub(b.lastRefill) > rl.cfg.Window*2 {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop halts the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	rl.cleanup.Stop()
	rl.wg.Wait()
}

// Middleware rejects clients that exceed the budget with a 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(rl.clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded","code":"rate_limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller. Proxy headers are client-supplied,
// so they only count when the deployment declares a trusted proxy in
// front of the server; otherwise rotating headers would mint a fresh
// bucket per request.
func (rl *RateLimiter) clientKey(r *http.Request) string {
	if rl.cfg.TrustProxyHeaders {
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			return forwarded
		}
	}
	return r.RemoteAddr
}
