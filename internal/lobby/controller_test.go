package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/scrutinyhq/proctor-go/internal/session"
)

// stubCommander fakes the API client slice the controller drives.
type stubCommander struct {
	mu          sync.Mutex
	startBody   string
	startErr    error
	endBody     string
	endErr      error
	submitErr   error
	startCalls  int
	endCalls    int
	submitCalls int
	startGate   chan struct{} // when set, Start blocks until closed
	startEnter  chan struct{} // when set, receives once per Start call
}

func (c *stubCommander) Start(ctx context.Context, sessionID string, durationSec int) ([]byte, error) {
	c.mu.Lock()
	c.startCalls++
	gate := c.startGate
	enter := c.startEnter
	c.mu.Unlock()
	if enter != nil {
		enter <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return []byte(c.startBody), c.startErr
}

func (c *stubCommander) End(ctx context.Context, sessionID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endCalls++
	return []byte(c.endBody), c.endErr
}

func (c *stubCommander) Submit(ctx context.Context, sessionID string, answers []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitCalls++
	return c.submitErr
}

func pollSession(t *testing.T, raw map[string]any) *session.Session {
	t.Helper()
	s := session.Normalize(raw)
	if s == nil {
		t.Fatal("fixture normalized to nil")
	}
	return s
}

func TestControllerStartsUnknown(t *testing.T) {
	c := NewController("s1", RoleTeacher, &stubCommander{})
	if snap := c.Snapshot(); snap.State != StateUnknown {
		t.Errorf("expected unknown before first poll, got %s", snap.State)
	}
}

func TestControllerInitialStateFromFirstPoll(t *testing.T) {
	c := NewController("s1", RoleStudent, &stubCommander{})
	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "waiting", "pin": "1234"}))

	snap := c.Snapshot()
	if snap.State != StateWaiting {
		t.Errorf("expected waiting, got %s", snap.State)
	}
	if snap.Session.PIN != "1234" {
		t.Errorf("expected pin carried into snapshot, got %+v", snap.Session)
	}
}

// Waiting lobby, start command applies
// optimistically, next poll confirms and attaches the quiz.
func TestControllerOptimisticStartThenPollConfirms(t *testing.T) {
	cmd := &stubCommander{startBody: `{"id":"s1","status":"active"}`}
	c := NewController("s1", RoleTeacher, cmd)

	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "waiting", "pin": "1234"}))

	if err := c.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateActive {
		t.Fatalf("expected immediate optimistic active, got %s", snap.State)
	}
	if !snap.QuizPending || snap.QuizReady {
		t.Errorf("active without quiz must surface as pending, got %+v", snap)
	}

	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "active", "quizId": "q9"}))
	snap = c.Snapshot()
	if !snap.QuizReady || snap.Session.QuizID != "q9" {
		t.Errorf("expected ready to open quiz q9, got %+v", snap)
	}
}

func TestControllerPollWinsOverStaleEcho(t *testing.T) {
	// The start echo reports a pre-activation state; by the time it lands the
	// poll has already observed active. The echo must not revert it.
	cmd := &stubCommander{startBody: `{"id":"s1","status":"waiting"}`}
	c := NewController("s1", RoleTeacher, cmd)

	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "active", "quizId": "q9"}))

	if err := c.Start(context.Background(), 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateActive {
		t.Errorf("stale echo reverted an authoritative transition: %s", snap.State)
	}
	if snap.Session.QuizID != "q9" {
		t.Errorf("stale echo replaced the working session: %+v", snap.Session)
	}
}

func TestControllerRejectsNonTeacherCommands(t *testing.T) {
	cmd := &stubCommander{}
	c := NewController("s1", RoleStudent, cmd)

	if err := c.Start(context.Background(), 0); !errors.Is(err, ErrNotTeacher) {
		t.Errorf("expected ErrNotTeacher, got %v", err)
	}
	if err := c.End(context.Background()); !errors.Is(err, ErrNotTeacher) {
		t.Errorf("expected ErrNotTeacher, got %v", err)
	}
	if cmd.startCalls != 0 || cmd.endCalls != 0 {
		t.Error("commands from a student must never reach the backend")
	}
}

func TestControllerRejectsConcurrentDuplicateCommand(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	cmd := &stubCommander{startBody: `{"status":"active"}`, startGate: gate, startEnter: entered}
	c := NewController("s1", RoleTeacher, cmd)
	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "waiting"}))

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Start(context.Background(), 0) }()

	// Wait for the first command to be in flight.
	<-entered

	if err := c.Start(context.Background(), 0); !errors.Is(err, ErrCommandInFlight) {
		t.Errorf("expected ErrCommandInFlight, got %v", err)
	}

	close(gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if cmd.startCalls != 1 {
		t.Errorf("duplicate command reached the backend %d times", cmd.startCalls)
	}

	// Once settled, the same command kind may be issued again.
	cmd.mu.Lock()
	cmd.startGate = nil
	cmd.mu.Unlock()
	if err := c.Start(context.Background(), 0); err != nil {
		t.Errorf("post-settle start failed: %v", err)
	}
}

func TestControllerCommandFailureLeavesWorkingSession(t *testing.T) {
	cmd := &stubCommander{startErr: errors.New("500: nope")}
	c := NewController("s1", RoleTeacher, cmd)
	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "waiting", "pin": "1234"}))

	before := c.Snapshot()
	if err := c.Start(context.Background(), 0); err == nil {
		t.Fatal("expected command error to surface")
	}
	after := c.Snapshot()
	if after.State != before.State || after.Session.Fingerprint() != before.Session.Fingerprint() {
		t.Error("failed command mutated the working session")
	}
}

func TestControllerEndTransition(t *testing.T) {
	cmd := &stubCommander{endBody: `{"id":"s1","status":"ended"}`}
	c := NewController("s1", RoleTeacher, cmd)
	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "active", "quizId": "q1"}))

	if err := c.End(context.Background()); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if snap := c.Snapshot(); snap.State != StateEnded {
		t.Errorf("expected ended, got %s", snap.State)
	}
}

func TestControllerSubscribeAndUnsubscribe(t *testing.T) {
	c := NewController("s1", RoleStudent, &stubCommander{})

	var mu sync.Mutex
	var seen []State
	unsubscribe := c.Subscribe(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap.State)
		mu.Unlock()
	})

	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "waiting"}))
	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "active"}))
	unsubscribe()
	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "ended"}))

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateUnknown, StateWaiting, StateActive}
	if len(seen) != len(want) {
		t.Fatalf("expected callbacks %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected callbacks %v, got %v", want, seen)
		}
	}
}

func TestControllerUnknownPollStatusKeepsState(t *testing.T) {
	c := NewController("s1", RoleStudent, &stubCommander{})
	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "active"}))
	c.ApplyPoll(pollSession(t, map[string]any{"id": "s1", "status": "archived"}))

	if snap := c.Snapshot(); snap.State != StateActive {
		t.Errorf("unrecognized poll status must not regress state, got %s", snap.State)
	}
}
