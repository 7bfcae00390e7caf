// Package health aggregates liveness probes for the engines the service
// depends on.
package health

import (
	"context"
	"sync"
	"time"
)

// Probe reports whether one dependency currently answers.
type Probe func(ctx context.Context) bool

type Checker struct {
	mu      sync.Mutex
	probes  map[string]Probe
	timeout time.Duration
}

func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{probes: make(map[string]Probe), timeout: timeout}
}

func (c *Checker) Register(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// Check runs every probe under the shared timeout and returns the results
// by name.
func (c *Checker) Check(ctx context.Context) map[string]bool {
	c.mu.Lock()
	probes := make(map[string]Probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make(map[string]bool, len(probes))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, p := range probes {
		wg.Add(1)
		go func(name string, p Probe) {
			defer wg.Done()
			ok := p(ctx)
			mu.Lock()
			results[name] = ok
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()
	return results
}

// Ready reports whether every registered probe passes.
func (c *Checker) Ready(ctx context.Context) bool {
	for _, ok := range c.Check(ctx) {
		if !ok {
			return false
		}
	}
	return true
}
