package backoff

import (
	"context"
	"errors"
	"time"
)

// ErrPollTimeout is returned by Poll when the deadline elapses before the
// check reports a terminal state. Callers branch on this to distinguish a
// slow upstream job from one that actually failed.
var ErrPollTimeout = errors.New("polling deadline exceeded")

// Poll invokes check at a fixed interval until it reports done, an error, the
// deadline elapses, or the context is cancelled. The first check runs after
// one interval, matching the behavior of waiting on a job that was just
// created and cannot already be finished.
//
// check returns (value, true, nil) when the job reached a terminal state,
// (zero, false, nil) to keep waiting, or an error to abort immediately.
func Poll[T any](
	ctx context.Context,
	interval, deadline time.Duration,
	check func(ctx context.Context) (T, bool, error),
) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	policy := FixedPolicy(interval)
	for attempt := 1; ; attempt++ {
		if err := SleepAttempt(ctx, policy, attempt); err != nil {
			return zero, mapDeadline(err)
		}

		value, done, err := check(ctx)
		if err != nil {
			return zero, mapDeadline(err)
		}
		if done {
			return value, nil
		}
	}
}

func mapDeadline(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrPollTimeout
	}
	return err
}
