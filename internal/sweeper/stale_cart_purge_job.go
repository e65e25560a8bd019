package sweeper

import (
	"context"
	"fmt"
	"time"
)

const defaultCartPurgeBatchSize = 500

type staleCartStore interface {
	PurgeStaleItems(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// StaleCartPurgeJob deletes cart lines left behind by closed and expired
// sessions once the retention window has passed.
type StaleCartPurgeJob struct {
	carts     staleCartStore
	retention time.Duration
	batchSize int
	now       func() time.Time
}

// NewStaleCartPurgeJob builds the cart purge job.
func NewStaleCartPurgeJob(carts staleCartStore, retention time.Duration, batchSize int) (*StaleCartPurgeJob, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	if batchSize <= 0 {
		batchSize = defaultCartPurgeBatchSize
	}
	return &StaleCartPurgeJob{
		carts:     carts,
		retention: retention,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// Name implements Job.
func (j *StaleCartPurgeJob) Name() string {
	return "stale-cart-purge"
}

// Run purges one batch of stale cart lines and returns how many were deleted.
func (j *StaleCartPurgeJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.carts.PurgeStaleItems(ctx, cutoff, j.batchSize)
	if err != nil {
		return 0, fmt.Errorf("purging stale cart items: %w", err)
	}
	return int(deleted), nil
}
