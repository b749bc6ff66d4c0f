package session

import (
	"errors"
	"fmt"
)

// ErrSessionCreate wraps any failure of the session-creation call so
// callers can distinguish "never got a session" from mid-session faults.
var ErrSessionCreate = errors.New("session create failed")

// ErrNoActiveSession is returned by operations that need a created
// session before they can run.
var ErrNoActiveSession = errors.New("no active session")

// APIError carries a non-2xx control-plane response. Control calls are
// not retried; the status and raw body are preserved for the caller.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed: status %d: %s", e.Status, e.Body)
}
