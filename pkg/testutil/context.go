package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"claimgate/pkg/requestcontext"
)

// WithSession simulates what the session middleware does for a guarded route.
func WithSession(req *http.Request, sessionID uuid.UUID) *http.Request {
	return req.WithContext(requestcontext.WithSessionID(req.Context(), sessionID))
}
