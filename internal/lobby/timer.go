package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultTickInterval samples the clock at 2 Hz, enough for a smooth
// countdown display.
const DefaultTickInterval = 500 * time.Millisecond

// ErrSubmissionClosed rejects a submission once the quiz window has expired.
// This is a courtesy guard that saves a pointless network call; the backend
// independently rejects late submissions.
var ErrSubmissionClosed = errors.New("submission window has closed")

// QuizTimer derives the remaining time and the hard submission cutoff from a
// session's end timestamp. Once expired it is terminal: there is no reset.
type QuizTimer struct {
	clock  clockwork.Clock
	endsAt time.Time
	tick   time.Duration

	onTick   func(remaining time.Duration)
	onExpire func()

	mu      sync.Mutex
	expired bool

	stopOnce sync.Once
	done     chan struct{}
}

// TimerOption customizes a QuizTimer.
type TimerOption func(*QuizTimer)

// WithTimerClock swaps the wall clock, typically for a fake clock in tests.
func WithTimerClock(clock clockwork.Clock) TimerOption {
	return func(t *QuizTimer) { t.clock = clock }
}

// WithTickInterval overrides the sampling interval.
func WithTickInterval(d time.Duration) TimerOption {
	return func(t *QuizTimer) {
		if d > 0 {
			t.tick = d
		}
	}
}

// OnTick registers a callback invoked with the remaining time on every
// sample. OnExpire fires exactly once when the window closes.
func OnTick(fn func(remaining time.Duration)) TimerOption {
	return func(t *QuizTimer) { t.onTick = fn }
}

func OnExpire(fn func()) TimerOption {
	return func(t *QuizTimer) { t.onExpire = fn }
}

func NewQuizTimer(endsAt time.Time, opts ...TimerOption) *QuizTimer {
	t := &QuizTimer{
		clock:  clockwork.NewRealClock(),
		endsAt: endsAt,
		tick:   DefaultTickInterval,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Remaining is max(0, endsAt-now). It is monotonically non-increasing while
// endsAt is fixed and never goes negative.
func (t *QuizTimer) Remaining() time.Duration {
	remaining := t.endsAt.Sub(t.clock.Now())
	if remaining <= 0 {
		t.markExpired()
		return 0
	}
	return remaining
}

// Expired reports whether the cutoff has been reached.
func (t *QuizTimer) Expired() bool {
	t.mu.Lock()
	expired := t.expired
	t.mu.Unlock()
	if expired {
		return true
	}
	return t.Remaining() == 0
}

// GuardSubmit returns ErrSubmissionClosed once the window has expired, so
// callers can refuse a submission before any network I/O.
func (t *QuizTimer) GuardSubmit() error {
	if t.Expired() {
		return ErrSubmissionClosed
	}
	return nil
}

// Run samples the clock on the tick interval until the window expires, the
// timer is stopped, or ctx is cancelled. Expiry is terminal; the loop exits
// after reporting it.
func (t *QuizTimer) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		remaining := t.Remaining()
		if t.onTick != nil {
			t.onTick(remaining)
		}
		if remaining == 0 {
			log.Debug().Time("ends_at", t.endsAt).Msg("quiz window expired")
			return
		}

		select {
		case <-ticker.Chan():
		case <-t.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the sampling loop. Expiry state is retained; Stop does not
// reopen the window.
func (t *QuizTimer) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

func (t *QuizTimer) markExpired() {
	t.mu.Lock()
	already := t.expired
	t.expired = true
	fn := t.onExpire
	t.mu.Unlock()

	if !already && fn != nil {
		fn()
	}
}
