package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// SessionClient talks to the session surface of the Scrutiny backend. All
// calls are bearer-authenticated through the embedded BaseClient.
type SessionClient struct {
	*BaseClient
}

// NewSessionClient builds a client over the resolved API base; see
// ResolveAPIBase for the fallback rules.
func NewSessionClient(apiBase string, tokens TokenProvider) *SessionClient {
	return &SessionClient{
		BaseClient: NewBaseClient(ResolveAPIBase(apiBase), tokens),
	}
}

// FetchStatus performs one GET against a status endpoint candidate and
// returns the raw body. Interpretation (JSON parse + normalization) is the
// poller's job so it can classify malformed bodies without losing the text.
func (c *SessionClient) FetchStatus(ctx context.Context, endpoint string) ([]byte, error) {
	return c.Get(ctx, endpoint)
}

// Start activates a session. A positive durationSec is sent as `{duration}`;
// zero sends an empty body and lets the backend apply its default.
func (c *SessionClient) Start(ctx context.Context, sessionID string, durationSec int) ([]byte, error) {
	endpoint := fmt.Sprintf(StartEndpointFmt, url.PathEscape(sessionID))

	if durationSec <= 0 {
		return c.Post(ctx, endpoint, nil)
	}
	payload, err := json.Marshal(map[string]int{"duration": durationSec})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal start payload: %w", err)
	}
	return c.Post(ctx, endpoint, bytes.NewReader(payload))
}

// End closes a session.
func (c *SessionClient) End(ctx context.Context, sessionID string) ([]byte, error) {
	return c.Post(ctx, fmt.Sprintf(EndEndpointFmt, url.PathEscape(sessionID)), nil)
}

// JoinResult is the outcome of a successful PIN join. QuizID may be empty;
// students can sit in the lobby before the teacher attaches a quiz.
type JoinResult struct {
	SessionID string
	QuizID    string
}

// Join exchanges a one-time PIN for a session membership. The session
// identifier is resolved under sessionId|session.id|id and the quiz
// identifier under quizId|quiz_id|quiz.id, whichever the deployment returns.
func (c *SessionClient) Join(ctx context.Context, pin string) (*JoinResult, error) {
	payload, err := json.Marshal(map[string]string{"pin": pin})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal join payload: %w", err)
	}

	body, err := c.Post(ctx, JoinEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &MalformedError{Raw: string(body), Err: err}
	}

	result := &JoinResult{
		SessionID: firstJoinField(decoded, "sessionId", "session.id", "id"),
		QuizID:    firstJoinField(decoded, "quizId", "quiz_id", "quiz.id"),
	}
	if result.SessionID == "" {
		return nil, &MalformedError{
			Raw: string(body),
			Err: fmt.Errorf("join response carries no session identifier"),
		}
	}
	return result, nil
}

// Submit posts the selected option indexes for a session's quiz.
func (c *SessionClient) Submit(ctx context.Context, sessionID string, answers []int) error {
	payload, err := json.Marshal(map[string][]int{"answers": answers})
	if err != nil {
		return fmt.Errorf("failed to marshal submit payload: %w", err)
	}
	_, err = c.Post(ctx, fmt.Sprintf(SubmitEndpointFmt, url.PathEscape(sessionID)), bytes.NewReader(payload))
	return err
}

// firstJoinField resolves a value under the given aliases, where an alias of
// the form "a.b" looks one object deep. First defined, non-empty value wins.
func firstJoinField(m map[string]any, aliases ...string) string {
	for _, alias := range aliases {
		cur := m
		key := alias
		if dot := strings.IndexByte(alias, '.'); dot >= 0 {
			nested, ok := m[alias[:dot]].(map[string]any)
			if !ok {
				continue
			}
			cur, key = nested, alias[dot+1:]
		}
		switch v := cur[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
