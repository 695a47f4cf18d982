package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Cause classifies a failed upload for the user.
type Cause string

const (
	CauseTimeout   Cause = "timeout"
	CauseOversized Cause = "oversized"
	CauseMalformed Cause = "malformed"
	CauseServer    Cause = "server"
	CauseGeneric   Cause = "generic"
)

var causeMessages = map[Cause]string{
	CauseTimeout:   "The network is slow. Please try again in a moment.",
	CauseOversized: "The file is too large. Please attach a smaller file.",
	CauseMalformed: "This file cannot be read. Please check the file format and try again.",
	CauseServer:    "The server could not accept the file. Please try again later.",
	CauseGeneric:   "The upload failed. Please try again.",
}

// Message is the user-facing text for c.
func (c Cause) Message() string {
	if msg, ok := causeMessages[c]; ok {
		return msg
	}
	return causeMessages[CauseGeneric]
}

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Error reports the first failure of a batch. Files before it stay committed.
type Error struct {
	Cause     Cause
	Category  string
	File      string
	Index     int
	Status    int
	Committed []string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("upload %s[%d] %q: %s: %v", e.Category, e.Index, e.File, e.Cause, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Message() string {
	return e.Cause.Message()
}

// classify maps a failed request to its cause. fileCtx is the per-file context,
// so its deadline distinguishes a slow upload from a caller cancellation.
func classify(fileCtx context.Context, err error) (Cause, int) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		status := sc.StatusCode()
		switch {
		case status == http.StatusRequestEntityTooLarge:
			return CauseOversized, status
		case status == http.StatusBadRequest,
			status == http.StatusUnsupportedMediaType,
			status == http.StatusUnprocessableEntity:
			return CauseMalformed, status
		case status >= 500:
			return CauseServer, status
		default:
			return CauseGeneric, status
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(fileCtx.Err(), context.DeadlineExceeded) {
		return CauseTimeout, 0
	}
	return CauseGeneric, 0
}
