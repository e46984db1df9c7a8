package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func nextBackoff(current, floor, ceiling time.Duration) time.Duration {
	if floor <= 0 {
		floor = time.Second
	}
	if current < floor {
		return floor
	}
	next := current * 2
	if ceiling > 0 && next > ceiling {
		return ceiling
	}
	return next
}

// withRetry runs call until it succeeds, the attempts are used up, or ctx ends.
// rpc.ErrNotFound is final.
func withRetry[T any](ctx context.Context, policy retryPolicy, logger *slog.Logger, op string, call func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		backoff time.Duration
	)
	for attempt := 0; ; attempt++ {
		out, err := call(ctx)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, rpc.ErrNotFound) || ctx.Err() != nil || attempt >= policy.maxRetries {
			return zero, err
		}

		backoff = nextBackoff(backoff, policy.baseDelay, policy.maxDelay)
		logger.Debug("rpc call failed, retrying", "op", op, "attempt", attempt+1, "backoff", backoff.String(), "err", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
