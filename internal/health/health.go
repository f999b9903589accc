// Package health runs the preflight checks behind `cleaniit check`.
package health

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK   Status = "ok"
	StatusDown Status = "down"
)

// CheckFunc probes one dependency. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// Result is the outcome of one named check.
type Result struct {
	Name     string
	Status   Status
	Err      error
	Duration time.Duration
}

// Checker manages the preflight checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
	logger  zerolog.Logger
}

// NewChecker creates a new checker. Each check gets at most timeout.
func NewChecker(timeout time.Duration, logger zerolog.Logger) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RunAll executes all checks concurrently and returns the results sorted by name.
func (c *Checker) RunAll(ctx context.Context) []Result {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make([]Result, 0, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			err := f(checkCtx)
			res := Result{Name: n, Status: StatusOK, Err: err, Duration: time.Since(start)}
			if err != nil {
				res.Status = StatusDown
				c.logger.Warn().Err(err).Str("check", n).Msg("preflight check failed")
			} else {
				c.logger.Debug().Str("check", n).Dur("duration", res.Duration).Msg("preflight check passed")
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(name, fn)
	}

	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// AllOK reports whether every result is healthy.
func AllOK(results []Result) bool {
	for _, r := range results {
		if r.Status != StatusOK {
			return false
		}
	}
	return true
}

// ExecutableCheck verifies that name resolves to an executable on PATH or as a path.
func ExecutableCheck(name string) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("kill command %q not executable: %w", name, err)
		}
		return nil
	}
}
