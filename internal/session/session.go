package session

import (
	"encoding/json"
	"time"
)

// Status is the canonical lifecycle state of a session. The backend reports
// status under several spellings; Normalize folds them all into these four.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
	StatusUnknown Status = "unknown"
)

// Participant is one entry in a session's roster. All fields are optional;
// insertion order mirrors server order and duplicates are kept as-is.
type Participant struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Session is the canonical snapshot of one quiz lobby/run instance. It is
// produced only by Normalize and is immutable once produced — state changes
// are new Session values, never in-place mutation.
type Session struct {
	ID           string        `json:"id"`
	Status       Status        `json:"status"`
	PIN          string        `json:"pin,omitempty"`
	QuizID       string        `json:"quizId,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	StartsAt     *time.Time    `json:"startsAt,omitempty"`
	EndsAt       *time.Time    `json:"endsAt,omitempty"`

	// Raw carries top-level backend fields that normalization did not
	// consume, so callers needing backend-specific extras are not blocked.
	Raw map[string]any `json:"raw,omitempty"`
}

// Fingerprint returns the serialized canonical form of the session, used for
// content-based change detection. Two sessions with equal fingerprints are
// considered the same snapshot regardless of pointer identity.
func (s *Session) Fingerprint() string {
	if s == nil {
		return ""
	}
	b, err := json.Marshal(s)
	if err != nil {
		// Session only holds JSON-decoded values, so this cannot happen in
		// practice; fall back to the ID so comparisons stay stable.
		return s.ID
	}
	return string(b)
}

// QuizReady reports whether the session is active with a quiz attached.
func (s *Session) QuizReady() bool {
	return s != nil && s.Status == StatusActive && s.QuizID != ""
}

// QuizPending reports the degraded "started but not ready" condition: the
// backend confirmed the session is active but has not produced a quiz id yet.
func (s *Session) QuizPending() bool {
	return s != nil && s.Status == StatusActive && s.QuizID == ""
}
