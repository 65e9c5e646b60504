package services

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"github.com/sethvargo/go-retry"
)

const (
	transientRetries = 3
	transientBackoff = 2 * time.Millisecond
)

// retryTransient reruns fn while it fails with pg.ErrTransient, waiting 2, 4
// and 8ms between attempts. Semantic errors are returned on the first try.
// fn must be a whole unit of work, usually a WithinTransaction call.
func retryTransient(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(transientRetries, retry.NewExponential(transientBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && errors.Is(err, pg.ErrTransient) {
			logger.Warn("transient store error", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}
