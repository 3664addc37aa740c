package clients

import (
	"fmt"
	"net/url"
)

const (
	// Session endpoints
	JoinEndpoint      = "/api/sessions/join"
	StatusEndpointFmt = "/api/sessions/%s/status"
	StartEndpointFmt  = "/api/sessions/%s/start"
	EndEndpointFmt    = "/api/sessions/%s/end"
	SubmitEndpointFmt = "/api/sessions/%s/submit"

	// Bare session resource, served instead of /status by some deployments
	SessionEndpointFmt = "/api/sessions/%s"
)

// StatusEndpoints returns the ordered candidate endpoints for polling a
// session's status. The /status route is preferred; the bare resource is the
// fallback for deployments that never shipped it.
func StatusEndpoints(sessionID string) []string {
	id := url.PathEscape(sessionID)
	return []string{
		fmt.Sprintf(StatusEndpointFmt, id),
		fmt.Sprintf(SessionEndpointFmt, id),
	}
}
