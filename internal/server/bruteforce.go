package server

import (
	"sync"
	"time"
)

// LoginGuard blocks accounts that accumulate too many failed login
// attempts within a window.
type LoginGuard struct {
	mu        sync.Mutex
	attempts  map[string]*attemptRecord
	threshold int
	window    time.Duration
	cleanup   *time.Ticker
	wg        sync.WaitGroup
	stopCh    chan struct{}
}

type attemptRecord struct {
	count        int
	firstAttempt time.Time
}

func NewLoginGuard(threshold int, window time.Duration) *LoginGuard {
	g := &LoginGuard{
		attempts:  make(map[string]*attemptRecord),
		threshold: threshold,
		window:    window,
		cleanup:   time.NewTicker(window * 2),
		stopCh:    make(chan struct{}),
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.cleanupLoop()
	}()

	return g
}

// RecordFailure counts one failed login for the key.
func (g *LoginGuard) RecordFailure(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.attempts[key]
	now := time.Now()
	if !ok || now.Sub(record.firstAttempt) >= g.window {
		g.attempts[key] = &attemptRecord{count: 1, firstAttempt: now}
		return
	}
	record.count++
}

// IsBlocked reports whether the key has hit the failure threshold
// within the current window.
func (g *LoginGuard) IsBlocked(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	record, ok := g.attempts[key]
	if !ok {
		return false
	}
	if time.Since(record.firstAttempt) >= g.window {
		return false
	}
	return record.count >= g.threshold
}

// Clear resets the counter after a successful login.
func (g *LoginGuard) Clear(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, key)
}

func (g *LoginGuard) cleanupLoop() {
	for {
		select {
		case <-g.cleanup.C:
			g.mu.Lock()
			now := time.Now()
			for key, record := range g.attempts {
				if now.Sub(record.firstAttempt) > g.window*2 {
					delete(g.attempts, key)
				}
			}
			g.mu.Unlock()
		case <-g.stopCh:
			return
		}
	}
}

// Stop halts the cleanup goroutine.
func (g *LoginGuard) Stop() {
	close(g.stopCh)
	g.cleanup.Stop()
	g.wg.Wait()
}
