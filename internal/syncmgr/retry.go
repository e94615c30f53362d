package syncmgr

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

// RetryPolicy bounds in-pass retries of transient remote failures. Once
// exhausted the event goes back to pending for the next pass.
type RetryPolicy struct {
	MaxAttempts     int // including the first; <= 1 disables retries
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy tries three times within 250ms..2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 250 * time.Millisecond, MaxInterval: 2 * time.Second, Multiplier: 2}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		exp.Multiplier = p.Multiplier
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

// Do runs op until it succeeds, fails with a non-transient error or the
// attempts run out. Only *model.TransientRemoteError is retried.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil || model.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, p.backOff(ctx))
}
