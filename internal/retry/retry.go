package retry

import (
	"context"
	"time"

	"go.brendoncarroll.net/p2p/s/swarmutil/retry"
)

type (
	RetryOption = retry.RetryOption
	BackoffFunc = retry.BackoffFunc
)

func Retry(ctx context.Context, fn func() error, opts ...RetryOption) error {
	return retry.Retry(ctx, fn, opts...)
}

func RetryRet1[T any](ctx context.Context, fn func() (T, error), opts ...RetryOption) (T, error) {
	return retry.RetryRet1(ctx, fn, opts...)
}

// Poll retries fn every period, for as long as it fails with an error matching keepGoing.
func Poll(ctx context.Context, period time.Duration, keepGoing func(error) bool, fn func() error) error {
	return Retry(ctx, fn, WithBackoff(NewConstantBackoff(period)), WithPredicate(keepGoing))
}

func WithBackoff(bf BackoffFunc) RetryOption {
	return retry.WithBackoff(bf)
}

func NewConstantBackoff(d time.Duration) BackoffFunc {
	return retry.NewConstantBackoff(d)
}

func WithPredicate(fn func(error) bool) RetryOption {
	return retry.WithPredicate(fn)
}
