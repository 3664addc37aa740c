package session

import (
	"encoding/json"
	"testing"
	"time"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("failed to decode fixture: %v", err)
	}
	return v
}

func TestNormalizeNilInput(t *testing.T) {
	if got := Normalize(nil); got != nil {
		t.Fatalf("expected nil for nil input, got %+v", got)
	}
}

func TestNormalizeNonObjectInput(t *testing.T) {
	for _, raw := range []string{`"just a string"`, `[1,2,3]`, `42`} {
		s := Normalize(decode(t, raw))
		if s == nil {
			t.Fatalf("expected best-effort session for %s, got nil", raw)
		}
		if s.Status != StatusUnknown {
			t.Errorf("expected unknown status for %s, got %s", raw, s.Status)
		}
	}
}

func TestNormalizeBasicFields(t *testing.T) {
	s := Normalize(decode(t, `{
		"id": "s1",
		"status": "waiting",
		"pin": "1234",
		"quizId": "q9"
	}`))

	if s.ID != "s1" {
		t.Errorf("expected id s1, got %q", s.ID)
	}
	if s.Status != StatusPending {
		t.Errorf("expected pending, got %s", s.Status)
	}
	if s.PIN != "1234" {
		t.Errorf("expected pin 1234, got %q", s.PIN)
	}
	if s.QuizID != "q9" {
		t.Errorf("expected quiz q9, got %q", s.QuizID)
	}
}

func TestNormalizeStatusMapping(t *testing.T) {
	cases := map[string]Status{
		"pending":   StatusPending,
		"waiting":   StatusPending,
		"  Waiting ": StatusPending,
		"active":    StatusActive,
		"STARTED":   StatusActive,
		"ended":     StatusEnded,
		"completed": StatusEnded,
		"Finished":  StatusEnded,
		"archived":  StatusUnknown,
		"":          StatusUnknown,
	}
	for raw, want := range cases {
		s := Normalize(map[string]any{"id": "s1", "status": raw})
		if s.Status != want {
			t.Errorf("status %q: expected %s, got %s", raw, want, s.Status)
		}
	}
}

func TestNormalizeQuizIDAliasPriority(t *testing.T) {
	// quizId wins over every later alias even when both are present.
	s := Normalize(decode(t, `{
		"id": "s1",
		"quizId": "primary",
		"quiz_id": "snake",
		"quiz": {"id": "nested"}
	}`))
	if s.QuizID != "primary" {
		t.Errorf("expected primary, got %q", s.QuizID)
	}

	// With the primary alias absent the search keeps walking.
	s = Normalize(decode(t, `{
		"id": "s1",
		"quiz": {"id": "nested"},
		"session": {"quiz_id": "deep"}
	}`))
	if s.QuizID != "nested" {
		t.Errorf("expected nested, got %q", s.QuizID)
	}

	// Null values do not win.
	s = Normalize(decode(t, `{
		"id": "s1",
		"quizId": null,
		"quiz_id": "snake"
	}`))
	if s.QuizID != "snake" {
		t.Errorf("expected snake after null primary, got %q", s.QuizID)
	}
}

func TestNormalizeNestedSessionEnvelope(t *testing.T) {
	s := Normalize(decode(t, `{
		"session": {
			"id": "s7",
			"status": "Active",
			"quizId": "q1"
		}
	}`))
	if s.ID != "s7" || s.Status != StatusActive || s.QuizID != "q1" {
		t.Errorf("unexpected session: %+v", s)
	}
}

func TestNormalizeNumericID(t *testing.T) {
	s := Normalize(decode(t, `{"id": 42, "status": "active"}`))
	if s.ID != "42" {
		t.Errorf("expected numeric id coerced to string, got %q", s.ID)
	}
}

func TestNormalizeParticipantsOrderAndDuplicates(t *testing.T) {
	s := Normalize(decode(t, `{
		"id": "s1",
		"participants": [
			{"id": "u1", "name": "Ada"},
			{"id": "u2", "email": "bo@example.com"},
			{"id": "u1", "name": "Ada"}
		]
	}`))
	if len(s.Participants) != 3 {
		t.Fatalf("expected duplicates preserved, got %d participants", len(s.Participants))
	}
	if s.Participants[0].ID != "u1" || s.Participants[1].ID != "u2" || s.Participants[2].ID != "u1" {
		t.Errorf("server order not preserved: %+v", s.Participants)
	}
	if s.Participants[1].Email != "bo@example.com" {
		t.Errorf("expected email resolved, got %+v", s.Participants[1])
	}
}

func TestNormalizeTimestamps(t *testing.T) {
	s := Normalize(decode(t, `{
		"id": "s1",
		"startsAt": "2026-03-01T10:00:00Z",
		"endsAt": 1772355600000
	}`))
	if s.StartsAt == nil || !s.StartsAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected startsAt: %v", s.StartsAt)
	}
	if s.EndsAt == nil || s.EndsAt.UnixMilli() != 1772355600000 {
		t.Errorf("unexpected endsAt: %v", s.EndsAt)
	}
}

func TestNormalizeRawPassthrough(t *testing.T) {
	s := Normalize(decode(t, `{
		"id": "s1",
		"status": "active",
		"teacherId": "t9",
		"warnings": 3
	}`))
	if s.Raw["teacherId"] != "t9" {
		t.Errorf("expected teacherId passed through, got %v", s.Raw)
	}
	if _, ok := s.Raw["status"]; ok {
		t.Errorf("consumed field leaked into raw: %v", s.Raw)
	}
}

func TestNormalizePartialPayloadNeverFails(t *testing.T) {
	s := Normalize(decode(t, `{"unexpected": {"deeply": ["nested", 1, null]}}`))
	if s == nil {
		t.Fatal("expected best-effort session, got nil")
	}
	if s.ID != "" || s.QuizID != "" || s.StartsAt != nil {
		t.Errorf("expected unresolved fields to stay zero: %+v", s)
	}
	if s.Status != StatusUnknown {
		t.Errorf("expected unknown status, got %s", s.Status)
	}
}

func TestFingerprintContentBased(t *testing.T) {
	a := Normalize(decode(t, `{"id": "s1", "status": "active", "quizId": "q1"}`))
	b := Normalize(decode(t, `{"id": "s1", "status": "active", "quizId": "q1"}`))
	c := Normalize(decode(t, `{"id": "s1", "status": "ended", "quizId": "q1"}`))

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical content produced different fingerprints")
	}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different content produced equal fingerprints")
	}
}
