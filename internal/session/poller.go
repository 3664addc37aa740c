package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrutinyhq/proctor-go/clients"
)

// DefaultPollInterval is the gap between the end of one poll attempt and the
// start of the next. Ticks are chained, not fixed-rate, so a slow backend can
// never make attempts overlap.
const DefaultPollInterval = 1500 * time.Millisecond

// Outcome classifies one poll attempt.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeServerError  Outcome = "server_error"
	OutcomeMalformed    Outcome = "malformed"
	OutcomeNoCredential Outcome = "no_credential"
	OutcomeNetworkError Outcome = "network_error"
)

// PollAttempt is the result of one HTTP round trip against the status
// endpoints. It lives for one loop iteration and is folded into subscription
// state, never persisted.
type PollAttempt struct {
	Outcome    Outcome
	Session    *Session // set only on success
	StatusCode int      // set on server_error
	Message    string   // server-provided error message, when any
	Raw        string   // unparseable body text, on malformed
	Err        error
}

// StatusFetcher is the slice of the API client the poller needs.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, endpoint string) ([]byte, error)
}

// Listener receives subscription callbacks. Both fields are optional.
// OnSession fires only when the canonical session's serialized form differs
// from the previously emitted one; OnAttempt fires for every non-success
// attempt so UIs can show an inline error next to the retained snapshot.
type Listener struct {
	OnSession func(*Session)
	OnAttempt func(PollAttempt)
}

// Poller creates polling subscriptions over a shared fetcher and clock.
type Poller struct {
	fetcher  StatusFetcher
	clock    clockwork.Clock
	interval time.Duration
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithClock swaps the wall clock, typically for a fake clock in tests.
func WithClock(clock clockwork.Clock) PollerOption {
	return func(p *Poller) { p.clock = clock }
}

// WithInterval overrides the default poll interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func NewPoller(fetcher StatusFetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		clock:    clockwork.NewRealClock(),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscription is one live polling loop for one session id. At most one
// attempt is in flight at any time; results are applied in completion order,
// which is also temporal order.
type Subscription struct {
	instanceID string // short id for logging
	sessionID  string
	poller     *Poller
	listener   Listener

	candidates []string
	preferred  int // index of the sticky endpoint

	mu     sync.Mutex
	last   *Session
	lastFP string

	stopOnce sync.Once
	done     chan struct{}
}

// Subscribe starts polling sessionID until Stop is called or ctx is
// cancelled. Candidate endpoints come from the shared endpoint table; the
// winner of each attempt becomes the sticky preference for the next.
func (p *Poller) Subscribe(ctx context.Context, sessionID string, listener Listener) *Subscription {
	return p.SubscribeEndpoints(ctx, sessionID, clients.StatusEndpoints(sessionID), listener)
}

// SubscribeEndpoints is Subscribe with an explicit candidate list, in
// preference order. The list must be non-empty.
func (p *Poller) SubscribeEndpoints(ctx context.Context, sessionID string, candidates []string, listener Listener) *Subscription {
	s := &Subscription{
		instanceID: uuid.New().String()[:8],
		sessionID:  sessionID,
		poller:     p,
		listener:   listener,
		candidates: candidates,
		done:       make(chan struct{}),
	}

	log.Debug().
		Str("instance", s.instanceID).
		Str("session_id", sessionID).
		Int("candidates", len(candidates)).
		Msg("subscription started")

	go s.run(ctx)
	return s
}

// Stop ends the subscription. It is idempotent; an attempt already in flight
// is allowed to finish but its result is discarded, and no further ticks are
// scheduled.
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		log.Debug().
			Str("instance", s.instanceID).
			Str("session_id", s.sessionID).
			Msg("subscription stopped")
	})
}

// Last returns the most recently emitted canonical session, or nil before
// the first successful poll.
func (s *Subscription) Last() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// run is the self-resuming poll chain: each iteration performs one attempt
// and only then schedules the next tick, so ticks can never overlap.
func (s *Subscription) run(ctx context.Context) {
	timer := s.poller.clock.NewTimer(0) // first attempt fires immediately
	defer timer.Stop()

	for {
		select {
		case <-timer.Chan():
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}

		attempt := s.attempt(ctx)

		// A stop that raced the attempt wins: the late result is discarded.
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.apply(attempt)
		timer.Reset(s.poller.interval)
	}
}

// attempt performs one poll cycle: the sticky endpoint first, then the
// remaining candidates in order, but only a 404 moves the walk along — any
// other failure is the attempt's outcome. No error here kills the loop.
func (s *Subscription) attempt(ctx context.Context) PollAttempt {
	order := make([]int, 0, len(s.candidates))
	order = append(order, s.preferred)
	for i := range s.candidates {
		if i != s.preferred {
			order = append(order, i)
		}
	}

	for _, idx := range order {
		endpoint := s.candidates[idx]
		body, err := s.poller.fetcher.FetchStatus(ctx, endpoint)
		if err != nil {
			if errors.Is(err, clients.ErrNoCredential) {
				return PollAttempt{Outcome: OutcomeNoCredential, Err: err}
			}
			var apiErr *clients.APIError
			if errors.As(err, &apiErr) {
				if apiErr.NotFound() {
					continue // fall back within the same attempt
				}
				return PollAttempt{
					Outcome:    OutcomeServerError,
					StatusCode: apiErr.StatusCode,
					Message:    apiErr.Message,
					Err:        err,
				}
			}
			return PollAttempt{Outcome: OutcomeNetworkError, Err: err}
		}

		var decoded any
		if err := json.Unmarshal(body, &decoded); err != nil {
			return PollAttempt{Outcome: OutcomeMalformed, Raw: string(body), Err: err}
		}

		snap := Normalize(decoded)
		if snap == nil {
			return PollAttempt{Outcome: OutcomeMalformed, Raw: string(body)}
		}
		if snap.ID == "" {
			// The subscription knows which session it asked about.
			snap.ID = s.sessionID
		}

		s.preferred = idx // sticky: winner goes first next time
		return PollAttempt{Outcome: OutcomeSuccess, Session: snap}
	}

	return PollAttempt{Outcome: OutcomeNotFound}
}

// apply folds one attempt into subscription state and notifies the listener.
// Successful attempts emit only when the canonical session actually changed;
// failures leave the last known-good session in place.
func (s *Subscription) apply(attempt PollAttempt) {
	if attempt.Outcome != OutcomeSuccess {
		log.Debug().
			Str("instance", s.instanceID).
			Str("session_id", s.sessionID).
			Str("outcome", string(attempt.Outcome)).
			Int("status_code", attempt.StatusCode).
			Msg("poll attempt failed")
		if s.listener.OnAttempt != nil {
			s.listener.OnAttempt(attempt)
		}
		return
	}

	fp := attempt.Session.Fingerprint()

	s.mu.Lock()
	changed := fp != s.lastFP
	if changed {
		s.last = attempt.Session
		s.lastFP = fp
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	log.Debug().
		Str("instance", s.instanceID).
		Str("session_id", s.sessionID).
		Str("status", string(attempt.Session.Status)).
		Msg("session changed")

	if s.listener.OnSession != nil {
		s.listener.OnSession(attempt.Session)
	}
}
