package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/scrutinyhq/proctor-go/internal/session"
)

// Role is the viewer's role in a lobby. Only teachers may issue lifecycle
// commands.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// State is the lobby's lifecycle state as the UI should render it. Unknown
// is a pseudostate shown before the first successful poll; it is never
// transitioned from programmatically.
type State string

const (
	StateUnknown State = "unknown"
	StateWaiting State = "waiting"
	StateActive  State = "active"
	StateEnded   State = "ended"
)

// stateRank orders states along the lifecycle so stale optimistic echoes can
// be recognized: a command response never moves the lobby backwards.
func stateRank(s State) int {
	switch s {
	case StateWaiting:
		return 1
	case StateActive:
		return 2
	case StateEnded:
		return 3
	default:
		return 0
	}
}

func stateFor(status session.Status) State {
	switch status {
	case session.StatusPending:
		return StateWaiting
	case session.StatusActive:
		return StateActive
	case session.StatusEnded:
		return StateEnded
	default:
		return StateUnknown
	}
}

var (
	// ErrNotTeacher rejects lifecycle commands from non-teacher roles.
	ErrNotTeacher = errors.New("only the teacher may control the session")
	// ErrCommandInFlight rejects a command while another of the same kind
	// has not settled, so the backend never sees concurrent duplicates.
	ErrCommandInFlight = errors.New("command already in flight")
)

// Commander is the slice of the API client the controller needs.
type Commander interface {
	Start(ctx context.Context, sessionID string, durationSec int) ([]byte, error)
	End(ctx context.Context, sessionID string) ([]byte, error)
	Submit(ctx context.Context, sessionID string, answers []int) error
}

// Snapshot is what the controller pushes to render callbacks.
type Snapshot struct {
	State   State
	Session *session.Session

	// QuizReady signals downstream views to open the quiz. QuizPending is
	// the degraded "started but not ready" condition: active session, no
	// quiz id yet — the UI shows a waiting indicator instead of failing to
	// route.
	QuizReady   bool
	QuizPending bool
}

// Controller is the role-aware state machine layered over polled snapshots.
// It holds a working copy of the session it may optimistically override; the
// next poll-derived session always wins on conflict.
type Controller struct {
	sessionID string
	role      Role
	cmd       Commander

	mu       sync.Mutex
	state    State
	working  *session.Session
	inFlight map[string]bool

	subs    map[int]func(Snapshot)
	nextSub int
}

func NewController(sessionID string, role Role, cmd Commander) *Controller {
	return &Controller{
		sessionID: sessionID,
		role:      role,
		cmd:       cmd,
		state:     StateUnknown,
		inFlight:  make(map[string]bool),
		subs:      make(map[int]func(Snapshot)),
	}
}

// Subscribe registers a render callback and returns its unsubscribe func.
// The callback is invoked immediately with the current snapshot so late
// subscribers do not miss state.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	snap := c.snapshotLocked()
	c.mu.Unlock()

	fn(snap)
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the current render state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		State:       c.state,
		Session:     c.working,
		QuizReady:   c.working.QuizReady(),
		QuizPending: c.working.QuizPending(),
	}
}

// ApplyPoll folds an authoritative poll-derived session into the controller.
// It is always applied, even when it contradicts a pending optimistic guess:
// the server is eventually right.
func (c *Controller) ApplyPoll(s *session.Session) {
	if s == nil {
		return
	}

	c.mu.Lock()
	c.working = s
	next := stateFor(s.Status)
	if next != StateUnknown {
		c.state = next
	}
	snap := c.snapshotLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	log.Debug().
		Str("session_id", c.sessionID).
		Str("state", string(snap.State)).
		Bool("quiz_ready", snap.QuizReady).
		Msg("applied poll snapshot")

	for _, fn := range subs {
		fn(snap)
	}
}

// Start issues the teacher's start command. The response body is folded into
// the working session immediately so the UI updates before the next poll
// confirms it. A positive durationSec is forwarded as the quiz window.
func (c *Controller) Start(ctx context.Context, durationSec int) error {
	return c.command(ctx, "start", func(ctx context.Context) ([]byte, error) {
		return c.cmd.Start(ctx, c.sessionID, durationSec)
	}, session.StatusActive)
}

// End issues the teacher's end command.
func (c *Controller) End(ctx context.Context) error {
	return c.command(ctx, "end", func(ctx context.Context) ([]byte, error) {
		return c.cmd.End(ctx, c.sessionID)
	}, session.StatusEnded)
}

func (c *Controller) command(ctx context.Context, kind string, send func(context.Context) ([]byte, error), optimistic session.Status) error {
	if c.role != RoleTeacher {
		return ErrNotTeacher
	}

	c.mu.Lock()
	if c.inFlight[kind] {
		c.mu.Unlock()
		return ErrCommandInFlight
	}
	c.inFlight[kind] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, kind)
		c.mu.Unlock()
	}()

	body, err := send(ctx)
	if err != nil {
		// Working session is left unchanged; the caller surfaces the error
		// and may re-trigger. No automatic retry.
		log.Warn().
			Err(err).
			Str("session_id", c.sessionID).
			Str("command", kind).
			Msg("session command failed")
		return err
	}

	c.seedFromCommand(body, optimistic)
	return nil
}

// seedFromCommand applies a command response optimistically. The echoed
// session seeds the working copy, but never moves the lobby backwards: a
// transition already observed from a poll prevails over a stale echo.
func (c *Controller) seedFromCommand(body []byte, optimistic session.Status) {
	var decoded any
	_ = json.Unmarshal(body, &decoded)
	echo := session.Normalize(decoded)
	if echo == nil || echo.ID == "" {
		if echo == nil {
			echo = &session.Session{ID: c.sessionID, Status: optimistic}
		} else {
			echo.ID = c.sessionID
		}
	}
	if echo.Status == session.StatusUnknown {
		echo.Status = optimistic
	}

	c.mu.Lock()
	next := stateFor(echo.Status)
	if stateRank(next) < stateRank(c.state) {
		c.mu.Unlock()
		log.Debug().
			Str("session_id", c.sessionID).
			Str("echo_state", string(next)).
			Str("state", string(c.state)).
			Msg("ignoring stale command echo")
		return
	}
	c.working = echo
	c.state = next
	snap := c.snapshotLocked()
	subs := c.subscribersLocked()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Submit posts the student's answers, refusing locally once the quiz timer
// has expired so no pointless call reaches the backend. The backend remains
// the true authority on late submissions.
func (c *Controller) Submit(ctx context.Context, timer *QuizTimer, answers []int) error {
	if timer != nil {
		if err := timer.GuardSubmit(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	if c.inFlight["submit"] {
		c.mu.Unlock()
		return ErrCommandInFlight
	}
	c.inFlight["submit"] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, "submit")
		c.mu.Unlock()
	}()

	return c.cmd.Submit(ctx, c.sessionID, answers)
}

func (c *Controller) subscribersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		out = append(out, fn)
	}
	return out
}
