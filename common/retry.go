package common

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryForever repeats the operation with a constant delay until it succeeds
// or the context is done.
func RetryForever(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	return retry.Do(ctx, retry.NewConstant(interval), func(ctx context.Context) error {
		return retry.RetryableError(fn(ctx))
	})
}
