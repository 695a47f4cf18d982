// Package requestcontext provides HTTP-independent accessors for request-scoped
// values set by middleware and read by services.
//
//	sessionID := requestcontext.SessionID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	device := requestcontext.Device(ctx)
package requestcontext

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type (
	sessionIDKey   struct{}
	requestIDKey   struct{}
	deviceKey      struct{}
	requestTimeKey struct{}
)

// SessionID returns the wizard session bound to the request, or uuid.Nil.
func SessionID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(sessionIDKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// WithSessionID binds a wizard session to ctx.
func WithSessionID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// RequestID returns the request correlation ID.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request correlation ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Device returns the parsed device label ("Chrome on Windows"), or "".
func Device(ctx context.Context) string {
	if d, ok := ctx.Value(deviceKey{}).(string); ok {
		return d
	}
	return ""
}

// WithDevice injects a device label.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceKey{}, device)
}

// Now returns the request-scoped time, falling back to time.Now outside HTTP.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request time. Tests use it for deterministic timestamps.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
