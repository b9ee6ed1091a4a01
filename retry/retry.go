package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// ErrInvariant is returned when a retry loop ends without producing a result
// or an error. It indicates a bug (or a negative MaxRetries), never a
// runtime failure of the wrapped call.
var ErrInvariant = errors.New("retry: loop exited without a result")

// Operation is a single attempt of a retried call.
type Operation[T any] func(ctx context.Context) (T, error)

// Overridable for tests.
var (
	sleep      = sleepContext
	jitterFunc = randomJitter
)

// Do runs op until it succeeds, fails with a non-retryable error, or the
// transport retry budget is spent. Options are applied over TransportDefaults.
// The error of the last attempt is returned unchanged.
func Do[T any](ctx context.Context, op Operation[T], opts ...Option) (T, error) {
	s := newSettings(TransportDefaults(), opts)
	return do(ctx, op, s)
}

func do[T any](ctx context.Context, op Operation[T], s settings) (T, error) {
	var zero T
	cfg := s.cfg

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if attempt == cfg.MaxRetries {
			return zero, err
		}
		if !IsRetryable(err) {
			return zero, err
		}

		delay := Backoff(cfg, attempt)
		if s.notify != nil {
			s.notify(attempt+1, err, delay)
		}
		if delay > 0 {
			if serr := sleep(ctx, delay); serr != nil {
				return zero, serr
			}
		}
	}
	return zero, ErrInvariant
}

// Backoff computes min(BaseDelay*2^attempt, MaxDelay) plus a random jitter in
// [0, Jitter).
func Backoff(cfg Config, attempt int) time.Duration {
	exp := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if exp > float64(cfg.MaxDelay) {
		exp = float64(cfg.MaxDelay)
	}
	// Guard against overflow
	if exp < 0 || exp > float64(math.MaxInt64) {
		exp = float64(cfg.MaxDelay)
	}
	return time.Duration(exp) + jitterFunc(cfg.Jitter)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
