// Package debounce collapses bursts of validation requests into a single
// delayed background pass. A burst of N schedule calls within the window
// runs validation once; an immediate bypass path exists for callers that
// need a guaranteed up-to-date result.
package debounce

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"gridline/engine/interfaces"

	"github.com/bep/debounce"
)

// DefaultDelay is the debounce window when a caller does not pass one
const DefaultDelay = 300 * time.Millisecond

// ValidateFunc is the validation entry point the coordinator drives
type ValidateFunc func(ctx context.Context, onlyFiltered bool) (bool, error)

// Coordinator collapses rapid repeated validation requests into one delayed
// background pass. Triggers that fire while a pass is already running are
// dropped, not queued; the next scheduled trigger catches remaining work.
type Coordinator struct {
	validate ValidateFunc
	logger   interfaces.Logger

	// runMu guards the actual validation pass. Scheduled triggers
	// try-acquire and drop; ValidateNow waits.
	runMu sync.Mutex

	// generation invalidates pending triggers: a fired trigger whose
	// generation is stale is a no-op
	generation atomic.Uint64

	mu        sync.Mutex
	delay     time.Duration
	debounced func(func())
}

// NewCoordinator creates a coordinator over the given validation function
func NewCoordinator(validate ValidateFunc, logger interfaces.Logger) *Coordinator {
	c := &Coordinator{
		validate: validate,
		logger:   logger,
		delay:    DefaultDelay,
	}
	c.debounced = debounce.New(c.delay)
	return c
}

func (c *Coordinator) log(level, msg string) {
	if c.logger != nil {
		c.logger.Log(level, msg)
		return
	}
	log.Printf("[%s] %s", level, msg)
}

// ScheduleValidation (re)arms the delay window. Every call pushes the firing
// point out; when triggers stop arriving for the window, one background
// validation pass runs. Non-blocking for the caller.
func (c *Coordinator) ScheduleValidation(operationName string, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultDelay
	}

	c.mu.Lock()
	if delay != c.delay {
		// A different window needs a fresh timer; the old one keeps
		// its own schedule but fires as a stale no-op
		c.generation.Add(1)
		c.delay = delay
		c.debounced = debounce.New(delay)
	}
	debounced := c.debounced
	c.mu.Unlock()

	gen := c.generation.Load()
	debounced(func() {
		if c.generation.Load() != gen {
			return
		}
		if !c.runMu.TryLock() {
			// A pass is already running; drop this trigger rather
			// than queueing a duplicate
			c.log("debug", fmt.Sprintf("[DEBOUNCE_DROP] validation busy, dropped trigger for %q", operationName))
			return
		}
		go func() {
			defer c.runMu.Unlock()
			if _, err := c.validate(context.Background(), false); err != nil {
				c.log("warn", fmt.Sprintf("[DEBOUNCE_VALIDATE] scheduled validation for %q failed: %v", operationName, err))
			}
		}()
	})
}

// CancelPendingValidation disarms any pending trigger without running it
func (c *Coordinator) CancelPendingValidation() {
	c.generation.Add(1)
}

// ValidateNow cancels any pending trigger, waits for a running pass to
// finish, and runs validation synchronously. This is the only blocking
// validation entry point.
func (c *Coordinator) ValidateNow(ctx context.Context, onlyFiltered bool) (bool, error) {
	c.generation.Add(1)
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.validate(ctx, onlyFiltered)
}
