package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"portfolio_aggregator/internal/domain/entity"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestCallPermanentFailureAttemptsMaxRetriesPlusOne(t *testing.T) {
	t.Parallel()

	for _, maxRetries := range []int{0, 1, 3, 5} {
		sleeps := &recordedSleeps{}
		calls := 0
		policy := Policy{
			MaxRetries:      maxRetries,
			DelayForAttempt: LinearBackoff(time.Second),
			Sleep:           sleeps.sleep,
		}

		_, err := Call(context.Background(), policy, func(context.Context) (int, error) {
			calls++
			return 0, entity.NewTransportError(entity.ProviderZerion, 0, errors.New("connection reset"))
		})
		if err == nil {
			t.Fatalf("maxRetries=%d: expected error", maxRetries)
		}
		if calls != maxRetries+1 {
			t.Fatalf("maxRetries=%d: expected %d attempts, got %d", maxRetries, maxRetries+1, calls)
		}
		if len(sleeps.delays) != maxRetries {
			t.Fatalf("maxRetries=%d: expected %d sleeps, got %d", maxRetries, maxRetries, len(sleeps.delays))
		}
		if entity.KindOf(err) != entity.KindApplication || entity.IsRetryable(err) {
			t.Fatalf("maxRetries=%d: exhausted error should be terminal application error, got %v", maxRetries, err)
		}
	}
}

func TestCallStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	want := entity.NewValidationError(entity.ProviderAlchemy, "bad address", nil)

	_, err := Call(context.Background(), Policy{MaxRetries: 5, Sleep: sleeps.sleep}, func(context.Context) (string, error) {
		calls++
		return "", want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if calls != 1 || len(sleeps.delays) != 0 {
		t.Fatalf("expected a single attempt without sleeping, got %d calls, %d sleeps", calls, len(sleeps.delays))
	}
}

func TestCallRecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	policy := Policy{
		MaxRetries:      3,
		DelayForAttempt: ExponentialBackoff(time.Second),
		Sleep:           sleeps.sleep,
	}

	got, err := Call(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, entity.NewRateLimitedError(entity.ProviderEtherscan, 200, "Max rate limit reached")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeps.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, sleeps.delays)
	}
	for i := range want {
		if sleeps.delays[i] != want[i] {
			t.Fatalf("expected delays %v, got %v", want, sleeps.delays)
		}
	}
}

func TestCallOnRetryHookDoesNotChangeFlow(t *testing.T) {
	t.Parallel()

	var hookAttempts []int
	calls := 0
	policy := Policy{
		MaxRetries: 2,
		Sleep:      func(context.Context, time.Duration) error { return nil },
		OnRetry: func(attempt, maxRetries int, err error) {
			hookAttempts = append(hookAttempts, attempt)
			if maxRetries != 2 {
				t.Errorf("expected maxRetries 2 in hook, got %d", maxRetries)
			}
		},
	}

	_ = Do(context.Background(), policy, func(context.Context) error {
		calls++
		return entity.NewTransportError(entity.ProviderZerion, 503, errors.New("unavailable"))
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(hookAttempts) != 2 || hookAttempts[0] != 1 || hookAttempts[1] != 2 {
		t.Fatalf("unexpected hook attempts: %v", hookAttempts)
	}
}

func TestCallHonoursContextDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := Policy{
		MaxRetries:      10,
		DelayForAttempt: LinearBackoff(time.Hour),
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Call(ctx, policy, func(context.Context) (int, error) {
		calls++
		return 0, entity.NewTransportError(entity.ProviderZerion, 0, errors.New("timeout"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one attempt before cancellation, got %d", calls)
	}
}

func TestNextIsPure(t *testing.T) {
	t.Parallel()

	policy := Policy{MaxRetries: 2, DelayForAttempt: ExponentialBackoff(100 * time.Millisecond)}
	transient := entity.NewTransportError(entity.ProviderAlchemy, 0, errors.New("eof"))

	state := RetryState{Attempt: 1, MaxRetries: 2}
	state, d := Next(state, transient, policy)
	if !d.Retry || d.Delay != 100*time.Millisecond || state.Attempt != 2 {
		t.Fatalf("unexpected first transition: %+v %+v", state, d)
	}
	state, d = Next(state, transient, policy)
	if !d.Retry || d.Delay != 200*time.Millisecond || state.Attempt != 3 {
		t.Fatalf("unexpected second transition: %+v %+v", state, d)
	}
	state, d = Next(state, transient, policy)
	if d.Retry || !d.Exhausted {
		t.Fatalf("expected terminal exhausted decision, got %+v", d)
	}
	if !errors.Is(state.LastErr, transient) {
		t.Fatalf("state should carry the last error")
	}

	_, d = Next(RetryState{Attempt: 1, MaxRetries: 2}, errors.New("fatal"), policy)
	if d.Retry || d.Exhausted {
		t.Fatalf("non-retryable error must be terminal without exhaustion, got %+v", d)
	}
}

func TestBackoffShapes(t *testing.T) {
	t.Parallel()

	linear := LinearBackoff(time.Second)
	exp := ExponentialBackoff(time.Second)
	for attempt, want := range map[int][2]time.Duration{
		1: {time.Second, time.Second},
		2: {2 * time.Second, 2 * time.Second},
		3: {3 * time.Second, 4 * time.Second},
		4: {4 * time.Second, 8 * time.Second},
	} {
		if got := linear(attempt); got != want[0] {
			t.Fatalf("linear(%d): expected %v, got %v", attempt, want[0], got)
		}
		if got := exp(attempt); got != want[1] {
			t.Fatalf("exponential(%d): expected %v, got %v", attempt, want[1], got)
		}
	}
}
