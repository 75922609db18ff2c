package runner

import (
	"context"
	"log/slog"
	"time"

	recerr "github.com/robotdad/amplifier-collection-recipes/internal/errors"
	"github.com/robotdad/amplifier-collection-recipes/internal/types"
)

// Retrier wraps a Runner with a retry policy for transient failures.
// Non-transient failures return immediately; transient ones are retried
// up to the policy's attempt count with backoff between attempts.
type Retrier struct {
	Inner  Runner
	Logger *slog.Logger
}

// NewRetrier wraps inner with retry handling.
func NewRetrier(inner Runner, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{Inner: inner, Logger: logger}
}

// Invoke runs the request under the given retry policy. A nil policy
// means a single attempt. Each attempt gets its own timeout from the
// request; the delay between attempts follows the policy's backoff and
// is cut short if ctx is cancelled.
func (r *Retrier) Invoke(ctx context.Context, req *Request, policy *types.RetryConfig) (any, error) {
	p := policy.Normalized()

	var lastErr error
	delay := time.Duration(p.InitialDelay) * time.Second
	maxDelay := time.Duration(p.MaxDelay) * time.Second

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := r.Inner.Invoke(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !recerr.IsTransient(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		r.Logger.Warn("transient failure, retrying",
			"agent", req.Agent,
			"attempt", attempt,
			"max_attempts", p.MaxAttempts,
			"delay", delay.String(),
			"error", err)

		if err := sleep(ctx, delay); err != nil {
			return nil, lastErr
		}

		switch p.Backoff {
		case types.BackoffLinear:
			delay += time.Duration(p.InitialDelay) * time.Second
		default:
			delay *= 2
		}
		if delay > maxDelay {
			delay = maxDelay
		}
	}

	if p.MaxAttempts > 1 {
		return nil, recerr.RetriesExhausted(req.Agent, p.MaxAttempts, lastErr)
	}
	return nil, lastErr
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
