package updater

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Checker runs periodic background update checks through the gate. Found
// updates are handed to the callback; deciding what to do with them stays
// with the caller.
type Checker struct {
	gate     *Gate
	interval time.Duration
	callback func(*Descriptor)
	logger   *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a periodic update checker
func NewChecker(gate *Gate, interval time.Duration, callback func(*Descriptor), logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		gate:     gate,
		interval: interval,
		callback: callback,
		logger:   logger.With(slog.String("component", "update_checker")),
		stopChan: make(chan struct{}),
	}
}

// Start launches the background check loop. One check runs immediately,
// then one per interval until Stop is called.
func (c *Checker) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.runOnce(ctx)

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.runOnce(ctx)
			case <-c.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the check loop and waits for it to exit. Safe to call more
// than once.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
}

func (c *Checker) runOnce(ctx context.Context) {
	descriptor, err := c.gate.CheckForUpdate(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "periodic update check failed",
			slog.String("error", err.Error()))
		return
	}
	if descriptor == nil {
		return
	}

	c.logger.InfoContext(ctx, "update available",
		slog.String("new_version", descriptor.NewVersion))
	if c.callback != nil {
		c.callback(descriptor)
	}
}
