// Package retry holds the read retry policy. Reads that hit a transient backend
// failure are retried at most once. Writes never go through this package.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/angelmondragon/loyalty-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
)

const (
	DefaultReadRetries = 1
	DefaultReadDelay   = 100 * time.Millisecond
)

// Policy decides how many times an idempotent read is re-attempted.
type Policy struct {
	MaxRetries uint64
	Delay      time.Duration
	Retryable  func(error) bool
}

// Read returns the single-retry policy used for configuration, customer, menu
// item and reward catalog reads.
func Read(delay time.Duration) Policy {
	if delay <= 0 {
		delay = DefaultReadDelay
	}
	return Policy{
		MaxRetries: DefaultReadRetries,
		Delay:      delay,
		Retryable:  IsRetryable,
	}
}

// IsRetryable reports whether err is a transient infrastructure failure.
// Domain errors are surfaced immediately.
func IsRetryable(err error) bool {
	if err == nil || pkgerrors.IsDomain(err) {
		return false
	}
	return db.IsTransient(err) || pkgerrors.IsCode(err, pkgerrors.CodeDependency)
}

// Do runs fn, re-running it on retryable errors until the policy is exhausted.
// The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := p.Delay
	if delay <= 0 {
		delay = DefaultReadDelay
	}
	classify := p.Retryable
	if classify == nil {
		classify = IsRetryable
	}

	backoff := goretry.WithMaxRetries(p.MaxRetries, goretry.NewConstant(delay))
	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && classify(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}
