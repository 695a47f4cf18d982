package portal

import (
	"fmt"

	"claimgate/pkg/platform/sentinel"
)

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("portal %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("portal %s: status %d", e.Op, e.Status)
}

func (e *StatusError) StatusCode() int {
	return e.Status
}

// Is lets callers match on the infrastructure sentinels.
func (e *StatusError) Is(target error) bool {
	switch {
	case e.Status == 404:
		return target == sentinel.ErrNotFound
	case e.Status >= 500:
		return target == sentinel.ErrUnavailable
	}
	return false
}

// NetworkError is a failure before any HTTP status was received.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("portal %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Is(target error) bool {
	return target == sentinel.ErrUnavailable
}
