// Package resource bounds the concurrency and throughput of bulk work such as
// asynchronous seeding against remote stores and snapshot I/O.
package resource

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxWorkers is the maximum number of concurrent workers.
	// If 0, defaults to 1.
	MaxWorkers int64

	// OpsPerSec caps the rate of individual operations. If 0, unlimited.
	OpsPerSec float64

	// IOLimitBytesPerSec is the maximum IO throughput. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages worker slots and rate limits.
// A nil *Controller imposes no limits.
type Controller struct {
	cfg Config

	workers   *semaphore.Weighted
	opLimiter *rate.Limiter // nil if unlimited
	ioLimiter *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxWorkers),
	}

	if cfg.OpsPerSec > 0 {
		c.opLimiter = rate.NewLimiter(rate.Limit(cfg.OpsPerSec), max(1, int(cfg.OpsPerSec)))
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// MaxWorkers returns the configured worker limit.
func (c *Controller) MaxWorkers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxWorkers)
}

// AcquireWorker reserves a worker slot, blocking until one is free or ctx is canceled.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	return c.workers.Acquire(ctx, 1)
}

// TryAcquireWorker attempts to reserve a worker slot without blocking.
func (c *Controller) TryAcquireWorker() bool {
	if c == nil {
		return true
	}
	return c.workers.TryAcquire(1)
}

// ReleaseWorker releases a worker slot.
func (c *Controller) ReleaseWorker() {
	if c == nil {
		return
	}
	c.workers.Release(1)
}

// WaitOp blocks until the operation rate limit admits one more operation.
func (c *Controller) WaitOp(ctx context.Context) error {
	if c == nil || c.opLimiter == nil {
		return ctx.Err()
	}
	return c.opLimiter.Wait(ctx)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	// WaitN rejects requests larger than the burst; split them.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
