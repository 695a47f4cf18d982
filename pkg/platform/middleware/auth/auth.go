package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	dErrors "claimgate/pkg/domain-errors"
	"claimgate/pkg/platform/httputil"
	"claimgate/pkg/requestcontext"
)

// SessionValidator checks a bearer token and returns the session it is bound to.
type SessionValidator interface {
	Validate(token string) (uuid.UUID, error)
}

const bearerPrefix = "Bearer "

// RequireSession rejects requests without a valid session token and binds the
// session id to the context of those that have one.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			sessionID, err := validator.Validate(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					err = dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid session token")
				}
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(ctx, sessionID)))
		})
	}
}
