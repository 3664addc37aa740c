package session

import (
	"strconv"
	"strings"
	"time"
)

// Field alias tables, in priority order. The backend surface is not
// contractually stable across deployments, so each canonical field is
// resolved by walking its aliases and taking the first defined, non-null
// value; later aliases are never consulted once one matches.
var (
	idAliases = []string{
		"id", "sessionId", "session_id",
		"session.id", "payload.id", "data.id",
	}
	statusAliases = []string{
		"status", "state",
		"session.status", "payload.status", "meta.status", "data.status",
	}
	pinAliases = []string{
		"pin", "joinPin", "join_pin",
		"session.pin", "payload.pin",
	}
	quizIDAliases = []string{
		"quizId", "quiz_id", "quiz.id", "quiz.quizId",
		"payload.quizId", "payload.quiz_id",
		"meta.quizId", "data.quizId",
		"session.quizId", "session.quiz_id",
	}
	participantsAliases = []string{
		"participants", "players", "members", "session.participants",
	}
	startsAtAliases = []string{
		"startsAt", "starts_at", "startedAt", "started_at",
		"session.startsAt", "session.starts_at",
	}
	endsAtAliases = []string{
		"endsAt", "ends_at", "endTime", "end_time",
		"session.endsAt", "session.ends_at",
	}
)

// consumedKeys are the top-level keys normalization may have read; anything
// else passes through Session.Raw untouched.
var consumedKeys = map[string]bool{
	"id": true, "sessionId": true, "session_id": true,
	"status": true, "state": true,
	"pin": true, "joinPin": true, "join_pin": true,
	"quizId": true, "quiz_id": true, "quiz": true,
	"participants": true, "players": true, "members": true,
	"startsAt": true, "starts_at": true, "startedAt": true, "started_at": true,
	"endsAt": true, "ends_at": true, "endTime": true, "end_time": true,
	"session": true, "payload": true, "meta": true, "data": true,
}

// Normalize maps an arbitrary decoded backend payload into a canonical
// Session. It returns nil only when raw itself is nil; any other input —
// partial, misshapen, or entirely foreign — yields a best-effort Session with
// unresolved fields left zero and Status falling back to unknown.
func Normalize(raw any) *Session {
	if raw == nil {
		return nil
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return &Session{Status: StatusUnknown}
	}

	s := &Session{
		ID:           firstString(m, idAliases),
		Status:       normalizeStatus(firstString(m, statusAliases)),
		PIN:          firstString(m, pinAliases),
		QuizID:       firstString(m, quizIDAliases),
		Participants: resolveParticipants(m),
		StartsAt:     firstTime(m, startsAtAliases),
		EndsAt:       firstTime(m, endsAtAliases),
	}

	for k, v := range m {
		if consumedKeys[k] {
			continue
		}
		if s.Raw == nil {
			s.Raw = make(map[string]any)
		}
		s.Raw[k] = v
	}

	return s
}

// normalizeStatus lower-cases and trims the reported status and folds the
// recognized spellings; anything unrecognized maps to unknown rather than
// failing.
func normalizeStatus(v string) Status {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "pending", "waiting":
		return StatusPending
	case "active", "started":
		return StatusActive
	case "ended", "completed", "finished":
		return StatusEnded
	default:
		return StatusUnknown
	}
}

func resolveParticipants(m map[string]any) []Participant {
	v, ok := lookupFirst(m, participantsAliases)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Participant, 0, len(list))
	for _, entry := range list {
		em, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Participant{
			ID:    firstString(em, []string{"id", "userId", "user_id"}),
			Name:  firstString(em, []string{"name", "username", "displayName"}),
			Email: firstString(em, []string{"email"}),
		})
	}
	return out
}

// lookupFirst walks the alias list and returns the first defined, non-null
// value. Aliases may be dot paths into nested objects.
func lookupFirst(m map[string]any, aliases []string) (any, bool) {
	for _, alias := range aliases {
		if v, ok := lookupPath(m, alias); ok {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(m map[string]any, path string) (any, bool) {
	cur := any(m)
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func firstString(m map[string]any, aliases []string) string {
	v, ok := lookupFirst(m, aliases)
	if !ok {
		return ""
	}
	return stringify(v)
}

// stringify coerces scalar JSON values to their string form. Backends have
// been observed returning numeric ids.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func firstTime(m map[string]any, aliases []string) *time.Time {
	v, ok := lookupFirst(m, aliases)
	if !ok {
		return nil
	}
	return parseTime(v)
}

// parseTime accepts RFC 3339 strings and epoch numbers. Numbers above 1e11
// are treated as milliseconds, matching the JavaScript Date convention the
// backend uses; smaller numbers are whole seconds.
func parseTime(v any) *time.Time {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if ts, err := time.Parse(layout, t); err == nil {
				return &ts
			}
		}
		return nil
	case float64:
		if t <= 0 {
			return nil
		}
		var ts time.Time
		if t > 1e11 {
			ts = time.UnixMilli(int64(t)).UTC()
		} else {
			ts = time.Unix(int64(t), 0).UTC()
		}
		return &ts
	default:
		return nil
	}
}
