package resilience

import (
	"context"
	"time"

	"portfolio_aggregator/internal/domain/entity"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how a failing call is retried.
type Policy struct {
	MaxRetries      int
	ShouldRetry     func(err error) bool
	DelayForAttempt func(attempt int) time.Duration
	// OnRetry is called before each backoff sleep. It cannot influence the loop.
	OnRetry func(attempt, maxRetries int, err error)
	Sleep   SleepFunc
}

// RetryState is the position of a call inside its retry budget.
// Attempt is 1-based and names the attempt that is about to run or just failed.
type RetryState struct {
	Attempt    int
	MaxRetries int
	LastErr    error
}

// Decision is the outcome of a state transition.
type Decision struct {
	Retry     bool
	Delay     time.Duration
	Exhausted bool
}

// Next computes the transition after attempt state.Attempt failed with err.
// It is pure: no sleeping, no clock.
func Next(state RetryState, err error, p Policy) (RetryState, Decision) {
	state.LastErr = err
	if !p.shouldRetry(err) {
		return state, Decision{}
	}
	if state.Attempt > state.MaxRetries {
		return state, Decision{Exhausted: true}
	}
	delay := p.delay(state.Attempt)
	return RetryState{Attempt: state.Attempt + 1, MaxRetries: state.MaxRetries, LastErr: err}, Decision{Retry: true, Delay: delay}
}

// Call runs op until it succeeds, fails with a non-retryable error, or the
// retry budget is spent. A permanently failing op runs MaxRetries+1 times.
func Call[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	state := RetryState{Attempt: 1, MaxRetries: p.MaxRetries}
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		next, d := Next(state, err, p)
		if d.Exhausted {
			return zero, entity.Exhausted(err, state.Attempt)
		}
		if !d.Retry {
			return zero, err
		}
		if p.OnRetry != nil {
			p.OnRetry(state.Attempt, p.MaxRetries, err)
		}
		if err := p.sleep(ctx, d.Delay); err != nil {
			return zero, err
		}
		state = next
	}
}

// Do is Call for operations without a result.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Call(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// LinearBackoff waits base*attempt.
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt)
	}
}

// ExponentialBackoff waits base*2^(attempt-1).
func ExponentialBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base * time.Duration(1<<uint(attempt-1))
	}
}

func (p Policy) shouldRetry(err error) bool {
	if p.ShouldRetry == nil {
		return entity.IsRetryable(err)
	}
	return p.ShouldRetry(err)
}

func (p Policy) delay(attempt int) time.Duration {
	if p.DelayForAttempt == nil {
		return 0
	}
	return p.DelayForAttempt(attempt)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext blocks for delay unless ctx finishes first.
func SleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
