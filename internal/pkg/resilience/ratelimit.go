package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits calls to an upstream.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// RateWindow is a snapshot of a sliding window's state.
type RateWindow struct {
	Window     time.Duration
	MaxCalls   int
	Timestamps []time.Time
}

const defaultMinWait = 50 * time.Millisecond

// SlidingWindowLimiter admits at most maxCalls calls in any window of the given length.
// One instance is shared by every caller of the same upstream.
type SlidingWindowLimiter struct {
	mu         sync.Mutex
	window     time.Duration
	maxCalls   int
	minWait    time.Duration
	timestamps []time.Time

	now    func() time.Time
	sleep  SleepFunc
	onWait func(time.Duration)
}

// LimiterOption customises a SlidingWindowLimiter.
type LimiterOption func(*SlidingWindowLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.now = now }
}

// WithSleep replaces the context-aware sleep.
func WithSleep(sleep SleepFunc) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.sleep = sleep }
}

// WithMinWait sets the floor applied to every wait.
func WithMinWait(d time.Duration) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.minWait = d }
}

// WithWaitObserver is called with each wait the limiter imposes.
func WithWaitObserver(fn func(time.Duration)) LimiterOption {
	return func(l *SlidingWindowLimiter) { l.onWait = fn }
}

// NewSlidingWindowLimiter creates a limiter allowing maxCalls per window.
func NewSlidingWindowLimiter(window time.Duration, maxCalls int, opts ...LimiterOption) *SlidingWindowLimiter {
	if maxCalls <= 0 {
		maxCalls = 1
	}
	l := &SlidingWindowLimiter{
		window:     window,
		maxCalls:   maxCalls,
		minWait:    defaultMinWait,
		timestamps: make([]time.Time, 0, maxCalls),
		now:        time.Now,
		sleep:      SleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until a call may proceed and records it.
func (l *SlidingWindowLimiter) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.timestamps) < l.maxCalls {
			l.timestamps = append(l.timestamps, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.window - now.Sub(l.timestamps[0])
		l.mu.Unlock()

		if wait < l.minWait {
			wait = l.minWait
		}
		if l.onWait != nil {
			l.onWait(wait)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Snapshot returns a copy of the current window after pruning.
func (l *SlidingWindowLimiter) Snapshot() RateWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	ts := make([]time.Time, len(l.timestamps))
	copy(ts, l.timestamps)
	return RateWindow{Window: l.window, MaxCalls: l.maxCalls, Timestamps: ts}
}

// prune drops timestamps that are at least one window old. Callers hold mu.
func (l *SlidingWindowLimiter) prune(now time.Time) {
	i := 0
	for i < len(l.timestamps) && now.Sub(l.timestamps[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[i:]...)
	}
}

var errSpacingReservation = errors.New("spacing limiter: reservation not possible")

// SpacingLimiter enforces a minimum interval between consecutive calls.
type SpacingLimiter struct {
	limiter *rate.Limiter
	onWait  func(time.Duration)
}

// NewSpacingLimiter allows one call every minDelay with no bursting.
func NewSpacingLimiter(minDelay time.Duration, onWait func(time.Duration)) *SpacingLimiter {
	return &SpacingLimiter{
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
		onWait:  onWait,
	}
}

// Acquire blocks until minDelay has passed since the previous admitted call.
func (s *SpacingLimiter) Acquire(ctx context.Context) error {
	r := s.limiter.Reserve()
	if !r.OK() {
		return errSpacingReservation
	}
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	if s.onWait != nil {
		s.onWait(delay)
	}
	if err := SleepContext(ctx, delay); err != nil {
		r.Cancel()
		return err
	}
	return nil
}
