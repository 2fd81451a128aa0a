package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecmem/model"
)

// Seed implements Backend. A failing record never aborts the load.
func (c *Collection) Seed(ctx context.Context, recs []model.Record) SeedResult {
	start := time.Now()

	var res SeedResult
	for i := range recs {
		if _, err := c.Add(ctx, recs[i]); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, seedError(i, recs[i].ID, err))
			continue
		}
		res.Added++
	}

	c.finishSeed(ctx, len(recs), res, time.Since(start))
	return res
}

// SeedAsync implements Backend. Adds run on up to the configured number of
// workers, throttled by the seed rate limit. The returned channel is buffered
// and receives exactly one result.
func (c *Collection) SeedAsync(ctx context.Context, recs []model.Record) <-chan SeedResult {
	out := make(chan SeedResult, 1)

	go func() {
		defer close(out)
		out <- c.seedParallel(ctx, recs)
	}()

	return out
}

func (c *Collection) seedParallel(ctx context.Context, recs []model.Record) SeedResult {
	start := time.Now()

	var (
		mu  sync.Mutex
		res SeedResult
	)

	fail := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		res.Failed++
		res.Errors = append(res.Errors, seedError(i, recs[i].ID, err))
	}

	var g errgroup.Group
	for i := range recs {
		if err := c.rc.AcquireWorker(ctx); err != nil {
			fail(i, err)
			continue
		}

		g.Go(func() error {
			defer c.rc.ReleaseWorker()

			if err := c.rc.WaitOp(ctx); err != nil {
				fail(i, err)
				return nil
			}
			if _, err := c.Add(ctx, recs[i]); err != nil {
				fail(i, err)
				return nil
			}

			mu.Lock()
			res.Added++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	c.finishSeed(ctx, len(recs), res, time.Since(start))
	return res
}

func (c *Collection) finishSeed(ctx context.Context, total int, res SeedResult, d time.Duration) {
	c.metrics.RecordSeed(total, res.Failed, d)
	c.log.LogSeed(ctx, total, res.Failed)
}

func seedError(i int, id string, err error) error {
	if id == "" {
		return fmt.Errorf("record %d: %w", i, err)
	}
	return fmt.Errorf("record %d (%s): %w", i, id, err)
}
