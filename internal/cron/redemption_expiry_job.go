package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/loyalty-backend/pkg/logger"
)

const (
	defaultRedemptionTTL    = 30 * 24 * time.Hour
	defaultMaxExpiryBatches = 20
)

type RedemptionExpiryJobParams struct {
	Logger     *logger.Logger
	Expirer    redemptionExpirer
	TTL        time.Duration
	MaxBatches int
}

type redemptionExpirer interface {
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}

func NewRedemptionExpiryJob(params RedemptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("redemption expirer required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultRedemptionTTL
	}
	maxBatches := params.MaxBatches
	if maxBatches <= 0 {
		maxBatches = defaultMaxExpiryBatches
	}
	return &redemptionExpiryJob{
		logg:       params.Logger,
		expirer:    params.Expirer,
		ttl:        ttl,
		maxBatches: maxBatches,
		now:        time.Now,
	}, nil
}

type redemptionExpiryJob struct {
	logg       *logger.Logger
	expirer    redemptionExpirer
	ttl        time.Duration
	maxBatches int
	now        func() time.Time
}

func (j *redemptionExpiryJob) Name() string { return "redemption-expiry" }

// Run expires pending redemptions older than the TTL, one batch per
// transaction, until a batch comes back empty. The cutoff is fixed for the
// whole run.
func (j *redemptionExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	total := 0
	batches := 0
	for batches < j.maxBatches {
		n, err := j.expirer.ExpirePending(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("expire redemptions after %d rows: %w", total, err)
		}
		batches++
		total += n
		if n == 0 {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": total,
		"batches": batches,
	}), "redemption expiry complete")
	return nil
}
