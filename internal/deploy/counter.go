package deploy

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Counter hands out sequential app names for direct deployments that
// arrive without one, e.g. python_app_3. Counts are per language and
// safe for concurrent deploys.
type Counter struct {
	mu     sync.Mutex
	counts map[string]*atomic.Int64
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[string]*atomic.Int64)}
}

// NextAppName returns the next generated app name for a language.
func (c *Counter) NextAppName(language string) string {
	c.mu.Lock()
	n, ok := c.counts[language]
	if !ok {
		n = &atomic.Int64{}
		c.counts[language] = n
	}
	c.mu.Unlock()
	return fmt.Sprintf("%s_app_%d", language, n.Add(1))
}
