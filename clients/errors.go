package clients

import (
	"errors"
	"fmt"
)

// ErrNoCredential is returned when the token provider has nothing to offer.
// It is recoverable: credentials may appear before the next poll tick, so
// callers treat it as fatal for the current cycle only.
var ErrNoCredential = errors.New("no credential available")

// APIError is a non-2xx response from the backend. Message holds the decoded
// `{message}` field when the body was JSON, otherwise the raw body text, so
// UIs can surface exactly what the server said.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

// NotFound reports whether the error is a 404, which drives endpoint
// fallback in the poller.
func (e *APIError) NotFound() bool {
	return e.StatusCode == 404
}

// MalformedError is a 2xx response whose body could not be parsed as JSON.
// The raw text is preserved for diagnostics.
type MalformedError struct {
	Raw string
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed response body: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
